package nvenc_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/nvenc"
)

type runnerFunc func(ctx context.Context, cmd ffmpeg.Command) (string, error)

func (f runnerFunc) Run(ctx context.Context, cmd ffmpeg.Command) (string, error) {
	return f(ctx, cmd)
}

func streamMarkers(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("Output #0, null, to 'pipe:':\n")
	}
	return b.String()
}

func TestDefaultCeiling(t *testing.T) {
	cases := []struct {
		version string
		want    int
	}{
		{"390.157", 3},
		{"469.99", 3},
		{"470.02", 5},
		{"525.147.05", 5},
		{"530.30.02", 8},
		{"560.35.03", 8},
		{"", 8},
		{"unknown", 8},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nvenc.DefaultCeiling(tc.version), "driver %q", tc.version)
	}
}

func TestProbeDriverNotLimiting(t *testing.T) {
	// Driver band says 5, so 6 streams are requested; all 6 open.
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return streamMarkers(6), nil
	})

	limit, err := nvenc.NewProbe(runner, nil, nil).Run(context.Background(), "/usr/bin/ffmpeg", "linux", "0", "525.147.05")
	require.NoError(t, err)
	assert.Equal(t, 5, limit.Ceiling)
	assert.Equal(t, 6, limit.Observed)
	assert.False(t, limit.Limiting)
	assert.False(t, limit.SkipDevice)
}

func TestProbeDriverLimiting(t *testing.T) {
	// The oversubscribed request fails as expected, but five sessions did
	// open before the driver refused the sixth.
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "", &ffmpeg.RunError{
			Kind:   ffmpeg.FailProcess,
			Reason: "OpenEncodeSessionEx failed: incompatible client key (21)",
			Output: streamMarkers(5),
		}
	})

	var prompted string
	confirm := func(prompt string) bool {
		prompted = prompt
		return true
	}

	limit, err := nvenc.NewProbe(runner, nil, confirm).Run(context.Background(), "/usr/bin/ffmpeg", "linux", "0", "525.147.05")
	require.NoError(t, err)
	assert.True(t, limit.Limiting)
	assert.Equal(t, 5, limit.Observed)
	assert.True(t, limit.SkipDevice)
	assert.Contains(t, prompted, "5 concurrent sessions")
}

func TestProbeLimitingWithoutConfirm(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "", &ffmpeg.RunError{
			Kind:   ffmpeg.FailProcess,
			Reason: "out of memory",
			Output: streamMarkers(3),
		}
	})

	limit, err := nvenc.NewProbe(runner, nil, nil).Run(context.Background(), "/usr/bin/ffmpeg", "linux", "0", "390.157")
	require.NoError(t, err)
	assert.True(t, limit.Limiting)
	assert.Equal(t, 3, limit.Observed)
	assert.False(t, limit.SkipDevice, "nil confirm must never skip a device")
}

func TestProbeNoSessions(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "", &ffmpeg.RunError{
			Kind:   ffmpeg.FailProcess,
			Reason: "incompatible client key",
			Output: "",
		}
	})

	limit, err := nvenc.NewProbe(runner, nil, nil).Run(context.Background(), "/usr/bin/ffmpeg", "linux", "0", "560.35.03")
	assert.Nil(t, limit)
	assert.ErrorIs(t, err, nvenc.ErrNoSessions)
}

func TestProbeUnexpectedFailureSurfaces(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "", &ffmpeg.RunError{
			Kind:   ffmpeg.FailProcess,
			Reason: "No such file or directory",
			Output: streamMarkers(2),
		}
	})

	limit, err := nvenc.NewProbe(runner, nil, nil).Run(context.Background(), "/usr/bin/ffmpeg", "linux", "0", "560.35.03")
	assert.Nil(t, limit)
	require.Error(t, err)
	assert.NotErrorIs(t, err, nvenc.ErrNoSessions)
}

func TestBuildProbeCommandStreamCount(t *testing.T) {
	cmd, err := nvenc.BuildProbeCommand("/opt/ffmpeg", "linux", "0000:01:00.0", 4)
	require.NoError(t, err)

	argv := cmd.Argv()
	assert.Equal(t, "/opt/ffmpeg", argv[0])

	encoders := 0
	for _, arg := range argv {
		if arg == "h264_nvenc" {
			encoders++
		}
	}
	assert.Equal(t, 4, encoders)
	assert.Contains(t, argv, "0000:01:00.0")
	assert.NotContains(t, argv, "-fps_mode", "linux template has no fps_mode flag")
}

func TestBuildProbeCommandWindows(t *testing.T) {
	cmd, err := nvenc.BuildProbeCommand("ffmpeg.exe", "windows", "0", 2)
	require.NoError(t, err)
	assert.Contains(t, cmd.Argv(), "-fps_mode")

	_, err = nvenc.BuildProbeCommand("ffmpeg.exe", "windows", "0", 0)
	assert.Error(t, err)
}
