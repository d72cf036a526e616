// Package output assembles the survey submission document and writes it to
// disk or hands it to the API client.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/BotBlake/jellybench/api"
	"github.com/BotBlake/jellybench/internal/bench"
	"github.com/BotBlake/jellybench/internal/hwinfo"
	"github.com/BotBlake/jellybench/internal/plan"
	"github.com/BotBlake/jellybench/internal/worker"
)

// HWInfo pairs the benchmarked ffmpeg build with the machine inventory.
type HWInfo struct {
	FFmpeg api.FFmpegSource   `json:"ffmpeg"`
	System *hwinfo.SystemInfo `json:"system"`
}

// Summary is the per-test verdict block.
type Summary struct {
	MaxStreams        int      `json:"max_streams"`
	FailureReasons    []string `json:"failure_reasons"`
	SingleWorkerSpeed float64  `json:"single_worker_speed"`
	SingleWorkerRSSKB float64  `json:"single_worker_rss_kb"`
}

// TestResult is one (test, device) entry of the submission.
type TestResult struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	SelectedGPU *int                  `json:"selected_gpu"`
	SelectedCPU *int                  `json:"selected_cpu"`
	Runs        []worker.RunAggregate `json:"runs"`
	Trials      []bench.Trial         `json:"trials"`
	Results     *Summary              `json:"results"`
}

// Document is the full submission.
type Document struct {
	RunID  string       `json:"run_id"`
	Token  string       `json:"token"`
	HWInfo HWInfo       `json:"hwinfo"`
	Tests  []TestResult `json:"tests"`
}

// NewDocument starts an empty submission with a fresh client-side run id.
func NewDocument(token string, ffmpegSource api.FFmpegSource, system *hwinfo.SystemInfo) *Document {
	return &Document{
		RunID:  uuid.NewString(),
		Token:  token,
		HWInfo: HWInfo{FFmpeg: ffmpegSource, System: system},
	}
}

// Append records one finished search. Failed searches still produce an
// entry: the failure reasons are never dropped.
func (d *Document) Append(job plan.Job, res bench.Result) {
	entry := TestResult{
		ID:          job.TestID,
		Type:        job.DeviceType,
		SelectedGPU: job.GPUIndex,
		Trials:      res.History,
	}
	if job.DeviceType == "cpu" {
		zero := 0
		entry.SelectedCPU = &zero
	}

	reasons := make([]string, 0, len(res.Reasons))
	for _, r := range res.Reasons {
		reasons = append(reasons, r.String())
	}
	summary := &Summary{
		MaxStreams:     res.MaxStreams,
		FailureReasons: reasons,
	}
	for _, trial := range res.History {
		if trial.Aggregate != nil {
			entry.Runs = append(entry.Runs, *trial.Aggregate)
			if trial.Workers == 1 {
				summary.SingleWorkerSpeed = trial.Aggregate.Speed
				summary.SingleWorkerRSSKB = trial.Aggregate.MaxRSSKB
			}
		}
	}
	entry.Results = summary
	d.Tests = append(d.Tests, entry)
}

// WriteFile stores the document as indented JSON.
func WriteFile(path string, doc *Document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
