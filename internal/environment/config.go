// Package environment resolves run configuration from defaults, an optional
// .env file and environment variables. CLI flags override all of these.
package environment

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultServerURL  = "https://hwa.jellyfin.org"
	DefaultFFmpegPath = "./ffmpeg"
	DefaultVideoPath  = "./videos"
	DefaultOutputPath = "./output.json"
	DefaultLogDir     = "./jellybench-log"
)

// Config is passed explicitly into every constructor that needs it; nothing
// reads ambient globals below the CLI layer.
type Config struct {
	ServerURL  string
	FFmpegPath string
	VideoPath  string
	OutputPath string
	LogDir     string
	// Timeout bounds each worker process; zero selects the runner default.
	Timeout time.Duration

	DisableCPU bool
	GPUIndex   int
	Debug      bool
	AssumeYes  bool
}

// Load builds a Config from defaults, then the .env file if present, then
// environment variables. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:  DefaultServerURL,
		FFmpegPath: DefaultFFmpegPath,
		VideoPath:  DefaultVideoPath,
		OutputPath: DefaultOutputPath,
		LogDir:     DefaultLogDir,
		GPUIndex:   -1,
	}
	if v := os.Getenv("JELLYBENCH_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("JELLYBENCH_FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("JELLYBENCH_VIDEO_PATH"); v != "" {
		cfg.VideoPath = v
	}
	if v := os.Getenv("JELLYBENCH_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("JELLYBENCH_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("JELLYBENCH_WORKER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}
