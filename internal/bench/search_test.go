package bench_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BotBlake/jellybench/internal/bench"
	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/worker"
)

// speedPool reports a fixed speed curve: trial at n workers runs at
// speeds[n]. Counts without an entry fail at the process level.
type speedPool struct {
	speeds map[int]float64
	trials []int
}

func (p *speedPool) RunTrial(ctx context.Context, workers int, cmd ffmpeg.Command) (*worker.RunAggregate, *worker.FailureReason) {
	p.trials = append(p.trials, workers)
	speed, ok := p.speeds[workers]
	if !ok {
		return nil, &worker.FailureReason{Kind: worker.ReasonProcess, Message: "License issue"}
	}
	return &worker.RunAggregate{Workers: workers, Speed: speed, MaxFrames: 1000}, nil
}

func testCmd(t *testing.T) ffmpeg.Command {
	t.Helper()
	cmd, err := ffmpeg.NewCommand([]string{"ffmpeg", "-f", "null", "-"})
	require.NoError(t, err)
	return cmd
}

func TestSearchFirstTrialErrors(t *testing.T) {
	pool := &speedPool{speeds: map[int]float64{}}
	s := bench.NewSearch(pool, bench.Config{})

	res := s.Run(context.Background(), testCmd(t))

	assert.Equal(t, bench.OutcomeErrored, res.Outcome)
	assert.Equal(t, 0, res.MaxStreams)
	assert.Nil(t, res.Best)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, "License issue", res.Reasons[0].Message)
	assert.Equal(t, []int{1}, pool.trials)
}

func TestSearchStopsAtCeiling(t *testing.T) {
	// Overprovisioned hardware: every count up to the ceiling passes easily.
	pool := &speedPool{speeds: map[int]float64{1: 2.5, 3: 2.5, 4: 2.5}}
	s := bench.NewSearch(pool, bench.Config{Ceiling: 4})

	res := s.Run(context.Background(), testCmd(t))

	assert.Equal(t, bench.OutcomeLimited, res.Outcome)
	assert.Equal(t, 4, res.MaxStreams)
	require.NotNil(t, res.Best)
	assert.Equal(t, 4, res.Best.Workers)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, worker.ReasonExternalLimit, res.Reasons[0].Kind)
	// Growth by ceil(speed) would overshoot to 9; the ceiling clamps to 4.
	assert.Equal(t, []int{1, 3, 4}, pool.trials)
}

func TestSearchConvergesOnNarrowBracket(t *testing.T) {
	// One worker holds exactly real time, two fall behind.
	pool := &speedPool{speeds: map[int]float64{1: 1.0, 2: 0.6}}
	s := bench.NewSearch(pool, bench.Config{})

	res := s.Run(context.Background(), testCmd(t))

	assert.Equal(t, bench.OutcomeConverged, res.Outcome)
	assert.Equal(t, 1, res.MaxStreams)
	require.NotNil(t, res.Best)
	assert.Equal(t, 1, res.Best.Workers)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, worker.ReasonPerformance, res.Reasons[0].Kind)
	assert.Equal(t, []int{1, 2}, pool.trials)
}

func TestSearchBracketsLargeCapacity(t *testing.T) {
	speeds := map[int]float64{}
	// Capacity 12: speed scales down linearly and crosses 1.0 past 12 workers.
	for n := 1; n <= 64; n++ {
		speeds[n] = 12.0 / float64(n)
	}
	pool := &speedPool{speeds: speeds}
	s := bench.NewSearch(pool, bench.Config{})

	res := s.Run(context.Background(), testCmd(t))

	assert.Equal(t, bench.OutcomeConverged, res.Outcome)
	assert.Equal(t, 12, res.MaxStreams)
	require.NotNil(t, res.Best)
	assert.Equal(t, 12, res.Best.Workers)
	assert.LessOrEqual(t, len(pool.trials), 10, "bracketing must not degrade to a linear scan")
	for _, n := range pool.trials {
		assert.Positive(t, n)
	}
}

func TestSearchRecordsHistory(t *testing.T) {
	pool := &speedPool{speeds: map[int]float64{1: 1.0, 2: 0.5}}
	s := bench.NewSearch(pool, bench.Config{})

	res := s.Run(context.Background(), testCmd(t))

	require.Len(t, res.History, 2)
	assert.Equal(t, 1, res.History[0].Workers)
	require.NotNil(t, res.History[0].Aggregate)
	assert.Empty(t, res.History[0].Reason)
	assert.Equal(t, 2, res.History[1].Workers)
	require.NotNil(t, res.History[1].Aggregate)
}

func TestSearchProgressCallback(t *testing.T) {
	pool := &speedPool{speeds: map[int]float64{1: 1.0, 2: 0.5}}
	var seen []int
	s := bench.NewSearch(pool, bench.Config{
		Progress: func(workers int, speed float64) { seen = append(seen, workers) },
	})

	s.Run(context.Background(), testCmd(t))

	assert.Equal(t, []int{1, 2}, seen)
}
