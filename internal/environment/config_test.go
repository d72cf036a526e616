package environment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BotBlake/jellybench/internal/environment"
)

func TestLoadDefaults(t *testing.T) {
	cfg := environment.Load()
	assert.Equal(t, environment.DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, environment.DefaultFFmpegPath, cfg.FFmpegPath)
	assert.Equal(t, environment.DefaultVideoPath, cfg.VideoPath)
	assert.Equal(t, environment.DefaultOutputPath, cfg.OutputPath)
	assert.Equal(t, -1, cfg.GPUIndex, "no GPU is selected until the user picks one")
	assert.Zero(t, cfg.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JELLYBENCH_SERVER_URL", "http://localhost:8080")
	t.Setenv("JELLYBENCH_FFMPEG_PATH", "/opt/ffmpeg")
	t.Setenv("JELLYBENCH_WORKER_TIMEOUT", "3m")

	cfg := environment.Load()
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "/opt/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 3*time.Minute, cfg.Timeout)
}

func TestLoadIgnoresInvalidTimeout(t *testing.T) {
	t.Setenv("JELLYBENCH_WORKER_TIMEOUT", "not-a-duration")
	cfg := environment.Load()
	assert.Zero(t, cfg.Timeout)
}
