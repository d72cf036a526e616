package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrParse marks metrics output that is missing a required report line.
var ErrParse = errors.New("incomplete ffmpeg metrics output")

// frameSampleThreshold excludes encoder ramp-up noise: progress lines must
// exceed this frame count to be sampled.
const frameSampleThreshold = 500

// WorkerMetrics holds the measurements of one successful process run.
type WorkerMetrics struct {
	Frames   int64   // max frame count across sampled progress lines
	Speed    float64 // mean speed multiplier; >= 1.0 means real time
	FPS      float64 // mean instantaneous frame rate
	TimeSec  float64 // elapsed user time from the benchmark report
	MaxRSSKB float64 // peak resident memory in kB
	// Sampled is false when no progress line crossed the threshold and the
	// frame count fell back to its degenerate value of 1.
	Sampled bool
}

var (
	frameRe  = regexp.MustCompile(`^frame=\s*(\d+)`)
	fpsRe    = regexp.MustCompile(`\bfps=\s*([0-9.]+)`)
	speedRe  = regexp.MustCompile(`\bspeed=\s*([0-9.]+)x`)
	maxrssRe = regexp.MustCompile(`^bench: maxrss=\s*([0-9.]+)\s*(kB|KiB)`)
	utimeRe  = regexp.MustCompile(`^bench: utime=\s*([0-9.]+)s`)
)

// ParseMetrics extracts WorkerMetrics from the captured output of one
// successful run. Both "kB" and "KiB" maxrss unit tags carry kB values in
// the ffmpeg builds the survey ships, so they are read verbatim. A missing
// maxrss or utime report line is an ErrParse, never a silent zero.
func ParseMetrics(output string) (WorkerMetrics, error) {
	var (
		frames []int64
		speeds []float64
		rates  []float64

		m          WorkerMetrics
		rssFound   bool
		utimeFound bool
	)

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "frame="):
			fm := frameRe.FindStringSubmatch(line)
			if fm == nil {
				continue
			}
			frame, err := strconv.ParseInt(fm[1], 10, 64)
			if err != nil || frame <= frameSampleThreshold {
				continue
			}
			sm := speedRe.FindStringSubmatch(line)
			rm := fpsRe.FindStringSubmatch(line)
			if sm == nil || rm == nil {
				continue
			}
			speed, err := strconv.ParseFloat(sm[1], 64)
			if err != nil {
				continue
			}
			rate, err := strconv.ParseFloat(rm[1], 64)
			if err != nil {
				continue
			}
			frames = append(frames, frame)
			speeds = append(speeds, speed)
			rates = append(rates, rate)

		case strings.HasPrefix(line, "bench: maxrss"):
			bm := maxrssRe.FindStringSubmatch(line)
			if bm == nil {
				return m, fmt.Errorf("%w: malformed maxrss line %q", ErrParse, line)
			}
			m.MaxRSSKB, _ = strconv.ParseFloat(bm[1], 64)
			rssFound = true

		case strings.HasPrefix(line, "bench: utime"):
			bm := utimeRe.FindStringSubmatch(line)
			if bm == nil {
				return m, fmt.Errorf("%w: malformed utime line %q", ErrParse, line)
			}
			m.TimeSec, _ = strconv.ParseFloat(bm[1], 64)
			utimeFound = true
		}
	}
	if err := sc.Err(); err != nil {
		return m, fmt.Errorf("scan ffmpeg output: %w", err)
	}
	if !rssFound {
		return m, fmt.Errorf("%w: no maxrss report line", ErrParse)
	}
	if !utimeFound {
		return m, fmt.Errorf("%w: no utime report line", ErrParse)
	}

	divisor := float64(len(speeds))
	if divisor == 0 {
		divisor = 1
	}
	m.Speed = lo.Sum(speeds) / divisor
	m.FPS = lo.Sum(rates) / divisor
	if len(frames) > 0 {
		m.Frames = lo.Max(frames)
		m.Sampled = true
	} else {
		m.Frames = 1
	}
	return m, nil
}
