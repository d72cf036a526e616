package nvenc

import (
	"fmt"
	"strings"

	"github.com/BotBlake/jellybench/internal/ffmpeg"
)

// Probe command templates. The input is a synthetic test source so the
// probe needs no media file; each appended worker block opens one more
// hardware encode session writing to the null muxer.
const (
	baseLinux   = "{ffmpeg} -y -vsync 0 -hwaccel cuda -hwaccel_output_format cuda -t 50 -hwaccel_device {gpu} -f lavfi -i testsrc"
	baseWindows = "{ffmpeg} -y -hwaccel cuda -hwaccel_output_format cuda -t 50 -hwaccel_device {gpu} -f lavfi -i testsrc"

	workerLinux   = "-vf hwupload -c:a copy -c:v h264_nvenc -b:v {bitrate} -f null -"
	workerWindows = "-vf hwupload -fps_mode passthrough -c:a copy -c:v h264_nvenc -b:v {bitrate} -f null -"

	probeBitrate = "8M"
)

// BuildProbeCommand assembles one ffmpeg invocation that opens streams
// simultaneous nvenc outputs from a single test source.
func BuildProbeCommand(ffmpegPath, osID string, gpuArg string, streams int) (ffmpeg.Command, error) {
	if streams < 1 {
		return ffmpeg.Command{}, fmt.Errorf("probe needs at least one stream, got %d", streams)
	}

	base, worker := baseLinux, workerLinux
	if strings.EqualFold(osID, "windows") {
		base, worker = baseWindows, workerWindows
	}

	line := strings.NewReplacer(
		"{ffmpeg}", ffmpegPath,
		"{gpu}", gpuArg,
	).Replace(base)
	workerBlock := strings.ReplaceAll(worker, "{bitrate}", probeBitrate)
	for i := 0; i < streams; i++ {
		line += " " + workerBlock
	}
	return ffmpeg.ParseCommand(line)
}
