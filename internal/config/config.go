package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Jobs struct {
		// Folders maps folder keys to directories, "key:path;key:path".
		Folders string
		// Extensions is a comma separated allow-list; empty admits any.
		Extensions     string
		MaxConcurrent  int
		RetentionHours int
		UploadMaxBytes int64
	}
	Torrent struct {
		ScratchDir string
		// Trackers is a comma separated list of extra announce URLs.
		Trackers string
	}
	Auth struct {
		JWTSecret        string
		RegisterPassword string
		TokenTTLMinutes  int
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// Variables already present in the environment win over .env entries.
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	v := viper.New()
	v.SetEnvPrefix("FETCHBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/fetchbox.db")
	v.SetDefault("jobs.folders", "files:data/files")
	v.SetDefault("jobs.extensions", "")
	v.SetDefault("jobs.maxconcurrent", 3)
	v.SetDefault("jobs.retentionhours", 24)
	v.SetDefault("jobs.uploadmaxbytes", int64(512<<20))
	v.SetDefault("torrent.scratchdir", "data/torrents")
	v.SetDefault("torrent.trackers", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.registerpassword", "")
	v.SetDefault("auth.tokenttlminutes", 720)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// ExtensionList returns the parsed extension allow-list.
func (c Config) ExtensionList() []string {
	return splitList(c.Jobs.Extensions)
}

// TrackerList returns the parsed extra tracker URLs.
func (c Config) TrackerList() []string {
	return splitList(c.Torrent.Trackers)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
