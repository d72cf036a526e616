package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/BotBlake/jellybench/internal/environment"
)

func main() {
	cfg := environment.Load()

	cmd := &cli.Command{
		Name:  "jellybench",
		Usage: "transcoding hardware benchmark client for the Jellyfin hardware survey",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "ffmpeg",
				Value: cfg.FFmpegPath,
				Usage: "path for ffmpeg download/execution",
			},
			&cli.StringFlag{
				Name:  "videos",
				Value: cfg.VideoPath,
				Usage: "path for download of test files (SSD recommended)",
			},
			&cli.StringFlag{
				Name:  "server",
				Value: cfg.ServerURL,
				Usage: "server URL for test data and result submission",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: cfg.OutputPath,
				Usage: "path of the output JSON file",
			},
			&cli.StringFlag{
				Name:  "plan",
				Usage: "local TOML plan file instead of server test data (debug)",
			},
			&cli.IntFlag{
				Name:  "gpu",
				Value: -1,
				Usage: "index of the GPU to test",
			},
			&cli.BoolFlag{
				Name:  "nocpu",
				Usage: "skip CPU transcode tests",
			},
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "answer prompts with their default",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug output",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.FFmpegPath = cmd.String("ffmpeg")
			cfg.VideoPath = cmd.String("videos")
			cfg.ServerURL = cmd.String("server")
			cfg.OutputPath = cmd.String("output")
			cfg.GPUIndex = int(cmd.Int("gpu"))
			cfg.DisableCPU = cmd.Bool("nocpu")
			cfg.AssumeYes = cmd.Bool("yes")
			cfg.Debug = cmd.Bool("debug")
			return run(ctx, cfg, cmd.String("plan"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
