package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fetchbox/internal/admission"
	"fetchbox/internal/domain"
	"fetchbox/internal/registry"
	"fetchbox/internal/service"
)

const (
	// multipartOverhead pads the transport-level body cap so the form
	// boundaries and folder/filename fields still fit next to a payload
	// sitting exactly at the upload cap.
	multipartOverhead = 1 << 20

	// maxTorrentFileBytes bounds an uploaded metainfo file. Real .torrent
	// files are a few hundred KiB at most.
	maxTorrentFileBytes = 10 << 20
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	jobs      service.JobService
	users     service.UserService
	jwtSecret string
	tokenTTL  time.Duration
	uploadCap int64
	logins    *loginLimiter
}

func NewHandler(jobs service.JobService, users service.UserService, jwtSecret string, tokenTTL time.Duration, uploadCap int64) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Handler{
		jobs:      jobs,
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		uploadCap: uploadCap,
		logins:    newLoginLimiter(),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.register)
			auth.POST("/login", h.logins.middleware(), h.login)
			auth.GET("/me", h.authRequired(), h.me)
		}

		jobs := api.Group("/jobs", h.authRequired())
		{
			jobs.POST("/http", h.createHTTPJob)
			jobs.POST("/upload", h.createUploadJob)
			jobs.POST("/torrent", h.createTorrentJob)
			jobs.GET("", h.listJobs)
			jobs.GET("/:id", h.getJob)
			jobs.POST("/:id/cancel", h.cancelJob)
		}

		api.GET("/folders", h.authRequired(), h.listFolders)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusAccepted, gin.H{"ok": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type createHTTPJobRequest struct {
	URL      string `json:"url"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
}

type createTorrentJobRequest struct {
	Magnet string `json:"magnet"`
	Folder string `json:"folder"`
}

func (h *Handler) createHTTPJob(c *gin.Context) {
	var req createHTTPJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.AdmitHTTPJob(req.URL, req.Folder, req.Filename)
	if err != nil {
		h.respondJobError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (h *Handler) createUploadJob(c *gin.Context) {
	if h.uploadCap > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadCap+multipartOverhead)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":  fmt.Sprintf("upload exceeds the %d byte cap", h.uploadCap),
				"reason": string(admission.ReasonPayloadTooLarge),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	defer file.Close()

	data, err := readCapped(file, h.uploadCap)
	if err != nil {
		h.respondJobError(c, err)
		return
	}

	job, err := h.jobs.AdmitUploadJob(data, header.Filename, c.PostForm("folder"), c.PostForm("filename"))
	if err != nil {
		h.respondJobError(c, err)
		return
	}

	c.JSON(http.StatusCreated, jobToResponse(job))
}

// readCapped buffers at most limit bytes. Reading one byte past the limit
// detects an oversized payload without holding all of it in memory.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, admission.NewError(admission.ReasonPayloadTooLarge,
			fmt.Sprintf("upload exceeds the %d byte cap", limit))
	}
	return data, nil
}

func (h *Handler) createTorrentJob(c *gin.Context) {
	if c.ContentType() == "multipart/form-data" {
		file, _, err := c.Request.FormFile("torrent")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "torrent field is required"})
			return
		}
		defer file.Close()

		raw, err := io.ReadAll(io.LimitReader(file, maxTorrentFileBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read torrent file: %v", err)})
			return
		}

		job, err := h.jobs.AdmitTorrentJob(c.PostForm("magnet"), raw, c.PostForm("folder"))
		if err != nil {
			h.respondJobError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, jobToResponse(job))
		return
	}

	var req createTorrentJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.AdmitTorrentJob(req.Magnet, nil, req.Folder)
	if err != nil {
		h.respondJobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs := h.jobs.ListJobs()

	resp := make([]JobResponse, len(jobs))
	for i := range jobs {
		resp[i] = jobToResponse(jobs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Param("id"))
	if err != nil {
		h.respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *Handler) cancelJob(c *gin.Context) {
	job, err := h.jobs.CancelJob(c.Param("id"))
	if err != nil {
		h.respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *Handler) listFolders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"folders": h.jobs.FolderKeys()})
}

// respondJobError maps service errors onto HTTP statuses: admission
// rejections are the client's fault, registry sentinels say whether the
// job is missing or already settled, anything else is ours.
func (h *Handler) respondJobError(c *gin.Context, err error) {
	var admitErr *admission.Error
	switch {
	case errors.As(err, &admitErr):
		status := http.StatusBadRequest
		if admitErr.Reason == admission.ReasonPayloadTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": admitErr.Detail, "reason": string(admitErr.Reason)})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// JobResponse is the wire shape of a job. Torrent progress and the file
// listing only appear on torrent jobs once swarm metadata has arrived.
type JobResponse struct {
	ID              string                   `json:"id"`
	Kind            string                   `json:"kind"`
	Source          string                   `json:"source"`
	Folder          string                   `json:"folder"`
	Filename        string                   `json:"filename,omitempty"`
	Path            string                   `json:"path,omitempty"`
	Status          string                   `json:"status"`
	Message         string                   `json:"message,omitempty"`
	TotalBytes      int64                    `json:"total_bytes"`
	DownloadedBytes int64                    `json:"downloaded_bytes"`
	Torrent         *TorrentProgressResponse `json:"torrent,omitempty"`
	Files           []JobFileResponse        `json:"files,omitempty"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at"`
}

type TorrentProgressResponse struct {
	PeerCount    int   `json:"peer_count"`
	DownloadRate int64 `json:"download_rate"`
}

type JobFileResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func jobToResponse(job domain.Job) JobResponse {
	resp := JobResponse{
		ID:              job.ID,
		Kind:            string(job.Kind),
		Source:          job.Source,
		Folder:          job.FolderKey,
		Filename:        job.Filename,
		Path:            job.DestinationPath,
		Status:          string(job.Status),
		Message:         job.Message,
		TotalBytes:      job.TotalBytes,
		DownloadedBytes: job.DownloadedBytes,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Torrent != nil {
		resp.Torrent = &TorrentProgressResponse{
			PeerCount:    job.Torrent.PeerCount,
			DownloadRate: job.Torrent.DownloadRate,
		}
	}
	if len(job.Files) > 0 {
		resp.Files = make([]JobFileResponse, len(job.Files))
		for i := range job.Files {
			resp.Files[i] = JobFileResponse{Path: job.Files[i].Path, Size: job.Files[i].Size}
		}
	}
	return resp
}
