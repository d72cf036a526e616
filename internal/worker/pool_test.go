package worker_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/worker"
)

type runnerFunc func(ctx context.Context, cmd ffmpeg.Command) (string, error)

func (f runnerFunc) Run(ctx context.Context, cmd ffmpeg.Command) (string, error) {
	return f(ctx, cmd)
}

func benchOutput(speed, rss float64) string {
	return fmt.Sprintf(
		"frame= 1000 fps=100 speed=%.1fx\nbench: utime=10.0s stime=1.0s rtime=20.0s\nbench: maxrss=%.0fkB\n",
		speed, rss,
	)
}

func testCommand(t *testing.T) ffmpeg.Command {
	t.Helper()
	cmd, err := ffmpeg.NewCommand([]string{"ffmpeg", "-i", "in.mkv", "-f", "null", "-"})
	require.NoError(t, err)
	return cmd
}

func TestPoolAggregatesAllWorkers(t *testing.T) {
	var calls atomic.Int64
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		n := calls.Add(1)
		// Distinct per-worker metrics: speeds 1,2,3 and rss 100,200,300.
		return benchOutput(float64(n), float64(n)*100), nil
	})

	pool := worker.NewPool(runner, nil)
	agg, fail := pool.RunTrial(context.Background(), 3, testCommand(t))
	require.Nil(t, fail)
	require.NotNil(t, agg)

	assert.Equal(t, 3, agg.Workers)
	assert.Equal(t, int64(1000), agg.MaxFrames)
	assert.InDelta(t, 2.0, agg.Speed, 1e-9, "speed is the mean, not max or min")
	assert.InDelta(t, 300.0, agg.MaxRSSKB, 1e-9, "memory is the max across workers")
	assert.InDelta(t, 10.0, agg.TimeSec, 1e-9)
	assert.InDelta(t, 100.0, agg.FPS, 1e-9)
}

func TestPoolFailFast(t *testing.T) {
	var calls, cancelled atomic.Int64
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		if calls.Add(1) == 1 {
			return "", &ffmpeg.RunError{Kind: ffmpeg.FailProcess, Reason: "License issue", ExitCode: 21}
		}
		// Siblings block until the failing worker cancels the group.
		<-ctx.Done()
		cancelled.Add(1)
		return "", ctx.Err()
	})

	pool := worker.NewPool(runner, nil)
	agg, fail := pool.RunTrial(context.Background(), 4, testCommand(t))

	assert.Nil(t, agg, "a failed trial must never yield partial metrics")
	require.NotNil(t, fail)
	assert.Equal(t, worker.ReasonProcess, fail.Kind)
	assert.Equal(t, "License issue", fail.Message)
	assert.Equal(t, int64(3), cancelled.Load(), "all siblings must be cancelled")
}

func TestPoolTimeoutReason(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "", &ffmpeg.RunError{Kind: ffmpeg.FailTimeout, Reason: "timeout"}
	})

	pool := worker.NewPool(runner, nil)
	agg, fail := pool.RunTrial(context.Background(), 1, testCommand(t))
	assert.Nil(t, agg)
	require.NotNil(t, fail)
	assert.Equal(t, worker.ReasonTimeout, fail.Kind)
	assert.Equal(t, "failed_timeout", fail.String())
}

func TestPoolParseFailureFailsTrial(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, cmd ffmpeg.Command) (string, error) {
		return "exit ok but no benchmark report\n", nil
	})

	pool := worker.NewPool(runner, nil)
	agg, fail := pool.RunTrial(context.Background(), 2, testCommand(t))
	assert.Nil(t, agg)
	require.NotNil(t, fail)
	assert.Equal(t, worker.ReasonProcess, fail.Kind)
	assert.Contains(t, fail.Message, "incomplete ffmpeg metrics output")
}

func TestPoolRejectsInvalidWorkerCount(t *testing.T) {
	pool := worker.NewPool(runnerFunc(func(context.Context, ffmpeg.Command) (string, error) {
		t.Fatal("runner must not be called")
		return "", nil
	}), nil)

	agg, fail := pool.RunTrial(context.Background(), 0, testCommand(t))
	assert.Nil(t, agg)
	require.NotNil(t, fail)
	assert.Equal(t, worker.ReasonInconclusive, fail.Kind)
}
