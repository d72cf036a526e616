// Package plan turns server test definitions into executable benchmark
// jobs: commands fully substituted per device, filtered to the device
// types enabled for this run.
package plan

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/BotBlake/jellybench/api"
	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/hwinfo"
)

// Job is one fully substituted benchmark unit: a command to search plus the
// identity it is reported under.
type Job struct {
	TestID   string
	FileName string
	// DeviceType is the command's declared device tag ("cpu", "nvidia", ...).
	DeviceType string
	// GPUIndex is the selected GPU for hardware jobs, nil for CPU jobs.
	GPUIndex *int
	Command  ffmpeg.Command
}

// Options select which jobs are built.
type Options struct {
	FFmpegPath string
	VideoDir   string
	OSID       string
	// Enabled holds the device-type tags to benchmark.
	Enabled mapset.Set[string]
	// GPU is the selected adapter, nil when only the CPU is tested.
	GPU      *hwinfo.GPU
	GPUIndex int
}

// EnabledTypes assembles the device-type set for the run.
func EnabledTypes(disableCPU bool, gpu *hwinfo.GPU) mapset.Set[string] {
	enabled := mapset.NewSet[string]()
	if !disableCPU {
		enabled.Add("cpu")
	}
	if gpu != nil {
		enabled.Add(gpu.DeviceType())
	}
	return enabled
}

// Build expands the test definitions into jobs, one per (test, enabled
// device type) pair, with {video_file} and {gpu} substituted.
func Build(files []api.TestFile, opts Options) ([]Job, error) {
	var jobs []Job
	for _, file := range files {
		videoFile, err := filepath.Abs(filepath.Join(opts.VideoDir, filepath.Base(file.SourceURL)))
		if err != nil {
			return nil, fmt.Errorf("resolve video path for %s: %w", file.Name, err)
		}
		for _, test := range file.Data {
			for _, spec := range test.Arguments {
				if !opts.Enabled.Contains(spec.Type) {
					continue
				}
				cmd, err := buildCommand(spec, videoFile, opts)
				if err != nil {
					return nil, fmt.Errorf("test %s (%s): %w", test.ID, spec.Type, err)
				}
				job := Job{
					TestID:     test.ID,
					FileName:   file.Name,
					DeviceType: spec.Type,
					Command:    cmd,
				}
				if spec.Type != "cpu" {
					idx := opts.GPUIndex
					job.GPUIndex = &idx
				}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

func buildCommand(spec api.CommandSpec, videoFile string, opts Options) (ffmpeg.Command, error) {
	gpuArg := ""
	if spec.Type != "cpu" {
		if opts.GPU == nil {
			return ffmpeg.Command{}, fmt.Errorf("no gpu selected for device type %s", spec.Type)
		}
		gpuArg = FormatGPUArg(opts.OSID, *opts.GPU, opts.GPUIndex)
	}
	args := Substitute(spec.Args, videoFile, gpuArg)
	return ffmpeg.ParseCommand(opts.FFmpegPath + " " + args)
}

// Substitute fills the {video_file} and {gpu} placeholders of a command
// template.
func Substitute(template, videoFile, gpuArg string) string {
	return strings.NewReplacer(
		"{video_file}", videoFile,
		"{gpu}", gpuArg,
	).Replace(template)
}

// FormatGPUArg renders the device selector ffmpeg expects: a numeric
// adapter index on Windows, the PCI bus identifier elsewhere.
func FormatGPUArg(osID string, gpu hwinfo.GPU, index int) string {
	if strings.EqualFold(osID, "windows") {
		return strconv.Itoa(index)
	}
	return strings.ReplaceAll(gpu.BusInfo, "@", "-")
}
