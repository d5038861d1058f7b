package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is read from SPARSIFY_* environment variables
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DatasetRoot  string
	RunLogFile   string
	LogLevel     string
	Jobs         JobConfig
}

// LoadServerConfig reads the server configuration, e.g. SPARSIFY_SERVER_ADDRESS
// or SPARSIFY_JOBS_MAX_WORKERS
func LoadServerConfig() ServerConfig {
	v := viper.New()
	v.SetEnvPrefix("SPARSIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// synchronous optimize sweeps can take minutes
	v.SetDefault("server.write_timeout", 30*time.Minute)
	v.SetDefault("dataset.root", "data")
	v.SetDefault("analysis.output_file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("jobs.max_workers", 2)
	v.SetDefault("jobs.timeout", time.Hour)
	v.SetDefault("jobs.result_ttl", time.Hour)
	v.SetDefault("jobs.cleanup_interval", 5*time.Minute)

	return ServerConfig{
		Address:      v.GetString("server.address"),
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		DatasetRoot:  v.GetString("dataset.root"),
		RunLogFile:   v.GetString("analysis.output_file"),
		LogLevel:     v.GetString("logging.level"),
		Jobs: JobConfig{
			MaxWorkers:      v.GetInt("jobs.max_workers"),
			JobTimeout:      v.GetDuration("jobs.timeout"),
			ResultTTL:       v.GetDuration("jobs.result_ttl"),
			CleanupInterval: v.GetDuration("jobs.cleanup_interval"),
		},
	}
}

// NewServer creates the HTTP server with the configured timeouts
func NewServer(cfg ServerConfig, handlers *Handlers) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      NewRouter(handlers),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
