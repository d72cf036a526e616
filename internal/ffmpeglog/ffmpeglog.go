// Package ffmpeglog collects the raw output of failed ffmpeg runs into one
// append-only log file for later bug reports.
package ffmpeglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileName = "ffmpeg_err_log.txt"

// Log is safe for concurrent use; workers of one trial may fail together.
type Log struct {
	mu   sync.Mutex
	path string
}

// Create starts a fresh error log under dir, writing a timestamp header.
func Create(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	l := &Log{path: filepath.Join(dir, fileName)}
	header := fmt.Sprintf("jellybench: ffmpeg error log from %s\n", time.Now().Format(time.ANSIC))
	if err := os.WriteFile(l.path, []byte(header), 0o644); err != nil {
		return nil, fmt.Errorf("create error log: %w", err)
	}
	return l, nil
}

// Path returns the log file location, for the end-of-run summary.
func (l *Log) Path() string { return l.path }

// SetTestHeader records which test file the following entries belong to.
func (l *Log) SetTestHeader(header string) {
	l.append(header + "\n")
}

// TestError appends one failure block: the originating command, the raw
// output indented line by line, and a separator.
func (l *Log) TestError(command string, output string) {
	var b strings.Builder
	fmt.Fprintf(&b, "    -> %s\n", command)
	for _, line := range strings.Split(output, "\n") {
		fmt.Fprintf(&b, "        -| %s\n", line)
	}
	b.WriteString("        ----\n")
	l.append(b.String())
}

func (l *Log) append(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(s)
}
