package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"

	"github.com/BotBlake/jellybench/api"
	"github.com/BotBlake/jellybench/internal/bench"
	"github.com/BotBlake/jellybench/internal/environment"
	"github.com/BotBlake/jellybench/internal/ffmpeg"
	"github.com/BotBlake/jellybench/internal/ffmpeglog"
	"github.com/BotBlake/jellybench/internal/hwinfo"
	"github.com/BotBlake/jellybench/internal/nvenc"
	"github.com/BotBlake/jellybench/internal/output"
	"github.com/BotBlake/jellybench/internal/plan"
	"github.com/BotBlake/jellybench/internal/sourcefetch"
	"github.com/BotBlake/jellybench/internal/worker"
)

var (
	bold    = color.New(color.Bold)
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	section = func(name string) { bold.Println(name) }
)

// run is the single boundary where errors become process exit behavior;
// everything below returns them.
func run(ctx context.Context, cfg *environment.Config, planPath string) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	fmt.Println()
	bold.Println("Welcome to jellybench")
	fmt.Println()

	section("Disclaimer")
	fmt.Println("| Please close all background programs and plug the device into a")
	fmt.Println("| power source if it is running on battery before starting.")
	if !confirm("Confirm?", cfg.AssumeYes) {
		return fmt.Errorf("benchmark not confirmed")
	}
	fmt.Println()

	errLog, err := ffmpeglog.Create(cfg.LogDir)
	if err != nil {
		return err
	}

	section("System Initialization")
	system, err := hwinfo.Collect(ctx, log)
	if err != nil {
		return err
	}
	printSystem(system)

	gpu, gpuIndex, err := selectGPU(system.GPUs, cfg)
	if err != nil {
		return err
	}
	if gpu == nil && cfg.DisableCPU {
		return fmt.Errorf("all hardware disabled, nothing to test")
	}

	data, err := loadTestData(ctx, cfg, planPath, log)
	if err != nil {
		return err
	}
	green.Println("Done")
	fmt.Println()

	fetcher := sourcefetch.NewFetcher(log)

	section("Loading ffmpeg")
	ffmpegBinary, err := obtainFFmpeg(ctx, fetcher, cfg, data.FFmpeg)
	if err != nil {
		return err
	}
	green.Println("Done")
	fmt.Println()

	section("Obtaining Test-Files")
	for _, file := range data.Tests {
		fmt.Printf("| %q -", file.Name)
		if _, err := fetcher.Obtain(ctx, cfg.VideoPath, file.SourceURL, file.Hashes, nil); err != nil {
			fmt.Println(" error")
			return fmt.Errorf("obtain %s: %w", file.Name, err)
		}
		fmt.Println(" success!")
	}
	green.Println("Done")
	fmt.Println()

	runner := ffmpeg.NewRunner(cfg.Timeout, log, errLog)

	// A GPU with a driver-imposed session cap feeds a ceiling into every
	// search on that device; a GPU with no working sessions is dropped.
	ceiling := 0
	if gpu != nil && gpu.DeviceType() == "nvidia" {
		limit, err := probeSessionLimit(ctx, runner, cfg, log, ffmpegBinary, *gpu, gpuIndex)
		switch {
		case errors.Is(err, nvenc.ErrNoSessions):
			yellow.Println("Device cannot open any encode session; skipping its tests.")
			gpu = nil
		case err != nil:
			return err
		case limit.Limiting && limit.SkipDevice:
			yellow.Println("Skipping GPU tests on user request.")
			gpu = nil
		case limit.Limiting:
			ceiling = limit.Observed
		}
	}

	jobs, err := plan.Build(data.Tests, plan.Options{
		FFmpegPath: ffmpegBinary,
		VideoDir:   cfg.VideoPath,
		OSID:       system.OS.ID,
		Enabled:    plan.EnabledTypes(cfg.DisableCPU, gpu),
		GPU:        gpu,
		GPUIndex:   gpuIndex,
	})
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no tests match the enabled device types")
	}

	fmt.Printf("We will run %d tests.\n", len(jobs))
	if !confirm("Do you want to continue?", cfg.AssumeYes) {
		return fmt.Errorf("benchmark not confirmed")
	}
	fmt.Println()

	doc := output.NewDocument(data.Token, data.FFmpeg, system)
	pool := worker.NewPool(runner, log)

	// Jobs run strictly one at a time; concurrent searches would contend
	// for the device under measurement.
	lastFile := ""
	for i, job := range jobs {
		if job.FileName != lastFile {
			errLog.SetTestHeader(job.FileName)
			lastFile = job.FileName
		}
		fmt.Printf("[%d/%d] %s (%s)\n", i+1, len(jobs), job.TestID, job.DeviceType)

		searchCeiling := 0
		if job.DeviceType != "cpu" {
			searchCeiling = ceiling
		}
		search := bench.NewSearch(pool, bench.Config{
			Ceiling: searchCeiling,
			Logger:  log.With(slog.String("test", job.TestID), slog.String("device", job.DeviceType)),
			Progress: func(workers int, speed float64) {
				fmt.Printf("\r  Testing | Workers: %02d | Last Speed: %05.2f", workers, speed)
			},
		})
		res := search.Run(ctx, job.Command)
		fmt.Printf("\r  %-12s | Max Streams: %d                  \n", res.Outcome, res.MaxStreams)

		doc.Append(job, res)
	}

	fmt.Println()
	fmt.Println("Benchmark done. Writing results.")
	if err := output.WriteFile(cfg.OutputPath, doc); err != nil {
		return err
	}
	fmt.Printf("Results saved to %s\n", cfg.OutputPath)

	if planPath == "" && confirm("Upload results to the server?", false) {
		client := api.NewClient(cfg.ServerURL, log)
		if err := client.Submit(ctx, doc); err != nil {
			return err
		}
		green.Println("Uploaded.")
	}
	return nil
}

func loadTestData(ctx context.Context, cfg *environment.Config, planPath string, log *slog.Logger) (*api.TestData, error) {
	if planPath != "" {
		yellow.Println("| Using local plan file. DO NOT UPLOAD RESULTS!")
		return plan.LoadLocal(planPath)
	}
	if cfg.ServerURL != environment.DefaultServerURL {
		yellow.Println("| Not using the official server! DO NOT UPLOAD RESULTS!")
	}

	client := api.NewClient(cfg.ServerURL, log)
	fmt.Print("| Fetch supported platforms...")
	platforms, err := client.Platforms(ctx)
	if err != nil {
		fmt.Println(" error")
		return nil, err
	}
	fmt.Println(" success!")

	platformID, err := pickPlatform(platforms)
	if err != nil {
		return nil, err
	}

	fmt.Print("| Loading tests...")
	data, err := client.TestData(ctx, platformID)
	if err != nil {
		fmt.Println(" error")
		var rateErr *api.RateLimitError
		if errors.As(err, &rateErr) {
			return nil, fmt.Errorf("server is rate limiting: %w", rateErr)
		}
		return nil, err
	}
	fmt.Println(" success!")
	return data, nil
}

func pickPlatform(platforms []api.Platform) (string, error) {
	osArch := fmt.Sprintf("%s-%s", osID(), archID())
	for _, p := range platforms {
		if p.Supported && strings.EqualFold(p.ID, osArch) {
			return p.ID, nil
		}
	}
	for _, p := range platforms {
		if p.Supported && strings.Contains(strings.ToLower(p.ID), osID()) {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("platform %s is not supported by the server", osArch)
}

func obtainFFmpeg(ctx context.Context, fetcher *sourcefetch.Fetcher, cfg *environment.Config, src api.FFmpegSource) (string, error) {
	fmt.Print("| Searching local ffmpeg -")
	path, err := fetcher.Obtain(ctx, cfg.FFmpegPath, src.SourceURL, src.Hashes, downloadProgress())
	if err != nil {
		fmt.Println(" error")
		return "", fmt.Errorf("obtain ffmpeg: %w", err)
	}
	fmt.Println(" success!")

	if sourcefetch.IsArchive(path) {
		fmt.Print("Unpacking archive...")
		dir := filepath.Join(cfg.FFmpegPath, "ffmpeg_files")
		if err := sourcefetch.Unpack(path, dir); err != nil {
			fmt.Println(" error")
			return "", err
		}
		fmt.Println(" success!")
		path = filepath.Join(dir, "ffmpeg")
		if osID() == "windows" {
			path += ".exe"
		}
	}
	return path, nil
}

func probeSessionLimit(ctx context.Context, runner *ffmpeg.Runner, cfg *environment.Config, log *slog.Logger, ffmpegBinary string, gpu hwinfo.GPU, gpuIndex int) (*nvenc.DriverLimit, error) {
	probe := nvenc.NewProbe(runner, log, func(prompt string) bool {
		return confirm(prompt, cfg.AssumeYes)
	})
	gpuArg := plan.FormatGPUArg(osID(), gpu, gpuIndex)
	return probe.Run(ctx, ffmpegBinary, osID(), gpuArg, gpu.DriverVersion)
}

func selectGPU(gpus []hwinfo.GPU, cfg *environment.Config) (*hwinfo.GPU, int, error) {
	if len(gpus) == 0 {
		return nil, 0, nil
	}
	idx := cfg.GPUIndex
	if idx < 0 {
		if len(gpus) == 1 || cfg.AssumeYes {
			idx = 0
		} else {
			fmt.Println("Multiple GPUs detected. Select one to continue (0 disables GPU tests).")
			choice, err := promptIndex(len(gpus))
			if err != nil {
				return nil, 0, err
			}
			if choice == 0 {
				return nil, 0, nil
			}
			idx = choice - 1
		}
	}
	if idx >= len(gpus) {
		return nil, 0, fmt.Errorf("gpu index %d out of range, %d available", idx, len(gpus))
	}
	return &gpus[idx], idx, nil
}

func promptIndex(max int) (int, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("Select GPU [0-%d]: ", max)
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read selection: %w", err)
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && choice >= 0 && choice <= max {
			return choice, nil
		}
		fmt.Println("Error: invalid input")
	}
}

func confirm(message string, assumeYes bool) bool {
	if assumeYes {
		return true
	}
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s (y/n): ", message)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Println("Error: invalid input")
	}
}

func printSystem(system *hwinfo.SystemInfo) {
	fmt.Println("| Detected system config:")
	fmt.Printf("|   OS: %s\n", system.OS.PrettyName)
	for _, cpu := range system.CPUs {
		fmt.Printf("|   CPU: %s (%d threads, %s)\n", cpu.Product, cpu.Cores, cpu.Architecture)
	}
	for _, bank := range system.Memory {
		fmt.Printf("|   RAM: %d %s\n", bank.Size, bank.Units)
	}
	for i, gpu := range system.GPUs {
		fmt.Printf("|   GPU %d: %s %s\n", i+1, gpu.Vendor, gpu.Product)
	}
}

func downloadProgress() sourcefetch.Progress {
	lastPercent := -1
	return func(done, total int64) {
		if total <= 0 {
			return
		}
		percent := int(done * 100 / total)
		if percent != lastPercent {
			fmt.Printf("\r| Downloading: %3d%%", percent)
			lastPercent = percent
		}
		if done >= total {
			fmt.Print("\r")
		}
	}
}

func osID() string { return runtime.GOOS }

func archID() string { return runtime.GOARCH }
