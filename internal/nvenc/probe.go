// Package nvenc probes the hard cap NVIDIA drivers place on concurrent
// encode sessions, so the concurrency search never chases a driver limit.
package nvenc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
)

// ErrNoSessions means the device opened zero encode sessions; testing it
// is pointless and this device's path must be skipped entirely.
var ErrNoSessions = errors.New("device cannot open any nvenc session")

var streamOpenRe = regexp.MustCompile(`Output #\d+, null, to 'pipe:'`)

// Failure reasons that the probe expects when it deliberately oversubscribes
// the session limit; they still leave countable stream-open markers.
var expectedLimitReasons = []string{
	"incompatible client key",
	"out of memory",
}

// DriverLimit reports what the probe observed.
type DriverLimit struct {
	// Ceiling is the session count estimated from the driver version.
	Ceiling int
	// Observed is how many output streams actually opened.
	Observed int
	// Limiting is true when the driver stopped streams short of the request;
	// Observed is then the real cap to pass into the search.
	Limiting bool
	// SkipDevice is set when the caller confirmed skipping the device after
	// a limit was found.
	SkipDevice bool
}

// DefaultCeiling maps a driver version string onto the published nvenc
// session-limit bands. Unparseable versions take the most permissive band.
func DefaultCeiling(driverVersion string) int {
	major, err := strconv.Atoi(firstNumber(driverVersion))
	if err != nil {
		return 8
	}
	switch {
	case major < 470:
		return 3
	case major < 530:
		return 5
	default:
		return 8
	}
}

func firstNumber(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// ProcessRunner runs one external process and returns its captured output.
type ProcessRunner interface {
	Run(ctx context.Context, cmd ffmpeg.Command) (string, error)
}

// Confirm asks the user a yes/no question. A nil Confirm never skips.
type Confirm func(prompt string) bool

// Probe issues one deliberately oversubscribed multi-stream encode and
// counts how many sessions the driver actually granted.
type Probe struct {
	runner  ProcessRunner
	log     *slog.Logger
	confirm Confirm
}

func NewProbe(runner ProcessRunner, log *slog.Logger, confirm Confirm) *Probe {
	if log == nil {
		log = slog.Default()
	}
	return &Probe{runner: runner, log: log, confirm: confirm}
}

// Run probes the device once. It requests ceiling+1 output streams from a
// single process (intra-process multi-stream, not the worker pool) and
// counts the stream-open markers in the output.
func (p *Probe) Run(ctx context.Context, ffmpegPath, osID, gpuArg, driverVersion string) (*DriverLimit, error) {
	ceiling := DefaultCeiling(driverVersion)
	requested := ceiling + 1

	cmd, err := BuildProbeCommand(ffmpegPath, osID, gpuArg, requested)
	if err != nil {
		return nil, err
	}

	p.log.Debug("probing nvenc session limit",
		slog.Int("requested_streams", requested),
		slog.String("driver", driverVersion),
	)

	output, err := p.runner.Run(ctx, cmd)
	if err != nil {
		var runErr *ffmpeg.RunError
		if !errors.As(err, &runErr) {
			return nil, fmt.Errorf("session probe: %w", err)
		}
		if !isExpectedLimitFailure(runErr.Reason) {
			return nil, fmt.Errorf("session probe: %w", runErr)
		}
		output = runErr.Output
	}

	observed := len(streamOpenRe.FindAllString(output, -1))
	switch {
	case observed == 0:
		return nil, ErrNoSessions
	case observed < requested:
		p.log.Info("driver enforces a session limit",
			slog.Int("observed", observed),
			slog.Int("requested", requested),
		)
		limit := &DriverLimit{Ceiling: ceiling, Observed: observed, Limiting: true}
		if p.confirm != nil {
			prompt := fmt.Sprintf("Driver limits this device to %d concurrent sessions. Skip its tests?", observed)
			limit.SkipDevice = p.confirm(prompt)
		}
		return limit, nil
	default:
		return &DriverLimit{Ceiling: ceiling, Observed: observed, Limiting: false}, nil
	}
}

func isExpectedLimitFailure(reason string) bool {
	reason = strings.ToLower(reason)
	for _, expected := range expectedLimitReasons {
		if strings.Contains(reason, expected) {
			return true
		}
	}
	return false
}
