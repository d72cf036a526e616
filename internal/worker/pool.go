// Package worker fans one transcode command out to N concurrent ffmpeg
// processes and aggregates their metrics into a single trial result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
)

// ProcessRunner runs one external process and returns its captured output.
type ProcessRunner interface {
	Run(ctx context.Context, cmd ffmpeg.Command) (string, error)
}

// Pool runs trials: a fixed number of identical, independent processes.
// A trial only yields data when every worker succeeds; the first failure
// cancels all siblings.
type Pool struct {
	runner ProcessRunner
	log    *slog.Logger
}

func NewPool(runner ProcessRunner, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{runner: runner, log: log}
}

// RunTrial executes the command workers times concurrently. On success it
// returns the aggregate; on any worker failure it returns the reason and no
// aggregate, never partial data.
func (p *Pool) RunTrial(ctx context.Context, workers int, cmd ffmpeg.Command) (*RunAggregate, *FailureReason) {
	if workers < 1 {
		reason := FailureReason{Kind: ReasonInconclusive, Message: fmt.Sprintf("invalid worker count %d", workers)}
		return nil, &reason
	}

	p.log.Debug("starting trial", slog.Int("workers", workers))

	results := xsync.NewMapOf[int, ffmpeg.WorkerMetrics]()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			out, err := p.runner.Run(gctx, cmd)
			if err != nil {
				return err
			}
			metrics, err := ffmpeg.ParseMetrics(out)
			if err != nil {
				return err
			}
			results.Store(i, metrics)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		reason := failureFromError(err)
		p.log.Debug("trial failed",
			slog.Int("workers", workers),
			slog.String("reason", reason.String()),
		)
		return nil, &reason
	}

	all := make([]ffmpeg.WorkerMetrics, 0, workers)
	results.Range(func(_ int, m ffmpeg.WorkerMetrics) bool {
		all = append(all, m)
		return true
	})
	return aggregate(all), nil
}

func failureFromError(err error) FailureReason {
	var runErr *ffmpeg.RunError
	switch {
	case errors.As(err, &runErr):
		if runErr.Kind == ffmpeg.FailTimeout {
			return FailureReason{Kind: ReasonTimeout, Message: "timeout"}
		}
		return FailureReason{Kind: ReasonProcess, Message: runErr.Reason}
	case errors.Is(err, ffmpeg.ErrParse):
		return FailureReason{Kind: ReasonProcess, Message: err.Error()}
	default:
		return FailureReason{Kind: ReasonProcess, Message: err.Error()}
	}
}

func aggregate(all []ffmpeg.WorkerMetrics) *RunAggregate {
	n := float64(len(all))
	return &RunAggregate{
		Workers: len(all),
		MaxFrames: lo.Max(lo.Map(all, func(m ffmpeg.WorkerMetrics, _ int) int64 {
			return m.Frames
		})),
		Speed: lo.Sum(lo.Map(all, func(m ffmpeg.WorkerMetrics, _ int) float64 {
			return m.Speed
		})) / n,
		TimeSec: lo.Sum(lo.Map(all, func(m ffmpeg.WorkerMetrics, _ int) float64 {
			return m.TimeSec
		})) / n,
		MaxRSSKB: lo.Max(lo.Map(all, func(m ffmpeg.WorkerMetrics, _ int) float64 {
			return m.MaxRSSKB
		})),
		FPS: lo.Sum(lo.Map(all, func(m ffmpeg.WorkerMetrics, _ int) float64 {
			return m.FPS
		})) / n,
	}
}
