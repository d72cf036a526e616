// Package bench brackets the maximum number of concurrent transcode
// workers that still sustain real-time speed for one command.
package bench

import (
	"context"
	"log/slog"
	"math"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/worker"
)

// unboundedFail is the min-fail sentinel before any failing count is known.
const unboundedFail = math.MaxInt32

// Outcome classifies how a search terminated.
type Outcome string

const (
	// OutcomeConverged means the pass/fail bracket closed to width one.
	OutcomeConverged Outcome = "converged"
	// OutcomeLimited means the search was stopped by an external ceiling.
	OutcomeLimited Outcome = "limited"
	// OutcomeErrored means a trial failed at the process level.
	OutcomeErrored Outcome = "errored"
	// OutcomeInconclusive is the defensive fallback for a broken bracket.
	OutcomeInconclusive Outcome = "inconclusive"
)

// Trial records one pool invocation for diagnostics, successful or not.
type Trial struct {
	Workers   int                   `json:"workers"`
	Aggregate *worker.RunAggregate  `json:"aggregate,omitempty"`
	Failure   *worker.FailureReason `json:"-"`
	Reason    string                `json:"failure,omitempty"`
}

// Result is the final verdict for one command on one device.
type Result struct {
	MaxStreams int
	Outcome    Outcome
	Reasons    []worker.FailureReason
	// Best holds the metrics recorded at MaxStreams; nil when the very
	// first trial already failed.
	Best    *worker.RunAggregate
	History []Trial
}

// TrialRunner runs one trial at a fixed worker count.
type TrialRunner interface {
	RunTrial(ctx context.Context, workers int, cmd ffmpeg.Command) (*worker.RunAggregate, *worker.FailureReason)
}

// Progress is called after every finished trial; used for the console
// status line.
type Progress func(workers int, speed float64)

// Config carries the collaborators of one search. Ceiling <= 0 means no
// external limit.
type Config struct {
	Ceiling  int
	Logger   *slog.Logger
	Progress Progress
}

// Search drives trials at varying worker counts until the bracket
// (maxPass, minFail) closes, a ceiling is hit, or a trial errors. Trials
// run strictly sequentially so they never contend with each other.
type Search struct {
	pool     TrialRunner
	ceiling  int
	log      *slog.Logger
	progress Progress
}

func NewSearch(pool TrialRunner, cfg Config) *Search {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Search{pool: pool, ceiling: cfg.Ceiling, log: log, progress: cfg.Progress}
}

// Run executes the adaptive search for one command.
//
// The loop keeps the invariant maxPass < minFail. A passing trial (mean
// speed >= 1.0) raises maxPass and grows the candidate multiplicatively by
// ceil(speed), or by one near the boundary. A failing-but-running trial
// lowers minFail and pulls the candidate back proportionally. The candidate
// is always clamped strictly inside the open bracket, and never above the
// external ceiling.
func (s *Search) Run(ctx context.Context, cmd ffmpeg.Command) Result {
	var res Result

	total := 1
	maxPass := 0
	minFail := unboundedFail
	atCeiling := false

	for {
		if maxPass >= minFail {
			// Broken bracket; report, don't guess.
			res.Outcome = OutcomeInconclusive
			res.Reasons = append(res.Reasons, worker.FailureReason{
				Kind:    worker.ReasonInconclusive,
				Message: "search bracket collapsed",
			})
			break
		}

		agg, fail := s.pool.RunTrial(ctx, total, cmd)
		res.History = append(res.History, newTrial(total, agg, fail))

		if fail != nil {
			res.Reasons = append(res.Reasons, *fail)
			res.Outcome = OutcomeErrored
			break
		}

		s.log.Debug("trial finished",
			slog.Int("workers", total),
			slog.Float64("speed", agg.Speed),
		)
		if s.progress != nil {
			s.progress(total, agg.Speed)
		}

		if agg.Speed >= 1.0 {
			maxPass = total
			res.Best = agg
			if atCeiling {
				res.Reasons = append(res.Reasons, worker.FailureReason{Kind: worker.ReasonExternalLimit, Message: "limited"})
				res.Outcome = OutcomeLimited
				break
			}
			if agg.Speed > 1 {
				total *= int(math.Ceil(agg.Speed))
			} else {
				total++
			}
		} else {
			minFail = total
			total = int(math.Floor(float64(total) * agg.Speed))
		}

		// Keep the candidate strictly inside the open bracket.
		if total >= minFail {
			total = minFail - 1
		}
		if total <= maxPass {
			total = maxPass + 1
		}

		atCeiling = false
		if s.ceiling > 0 && total > s.ceiling {
			total = s.ceiling
			atCeiling = true
		}

		if minFail-maxPass == 1 {
			res.Reasons = append(res.Reasons, worker.FailureReason{Kind: worker.ReasonPerformance, Message: "performance"})
			res.Outcome = OutcomeConverged
			break
		}
	}

	res.MaxStreams = maxPass
	return res
}

func newTrial(workers int, agg *worker.RunAggregate, fail *worker.FailureReason) Trial {
	t := Trial{Workers: workers, Aggregate: agg, Failure: fail}
	if fail != nil {
		t.Reason = fail.String()
	}
	return t
}
