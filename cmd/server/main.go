package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fetchbox/internal/admission"
	"fetchbox/internal/config"
	"fetchbox/internal/downloader"
	apphttp "fetchbox/internal/http"
	"fetchbox/internal/registry"
	"fetchbox/internal/repository/sqlite"
	"fetchbox/internal/service"
	"fetchbox/internal/swarm"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if strings.TrimSpace(cfg.Auth.RegisterPassword) == "" {
		logger.Fatalf("auth registration password is required")
	}

	folders := admission.ParseFolders(cfg.Jobs.Folders)
	if len(folders) == 0 {
		logger.Fatalf("no destination folders configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	userService := service.NewUserService(userRepo, cfg.Auth.RegisterPassword)

	pipeline := admission.NewPipeline(folders, cfg.ExtensionList(), cfg.Jobs.UploadMaxBytes)
	jobRegistry := registry.New(time.Duration(cfg.Jobs.RetentionHours) * time.Hour)

	swarmService := swarm.NewService(swarm.Config{
		ScratchDir: cfg.Torrent.ScratchDir,
		Trackers:   cfg.TrackerList(),
		Logger:     logger,
	})
	defer swarmService.Close()

	manager := downloader.NewManager(downloader.Config{
		MaxConcurrent:  cfg.Jobs.MaxConcurrent,
		SampleInterval: 500 * time.Millisecond,
		Logger:         logger,
	}, jobRegistry, swarmService)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start manager: %v", err)
	}

	jobService := service.NewJobService(pipeline, jobRegistry, manager, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		jobService,
		userService,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
		cfg.Jobs.UploadMaxBytes,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}
