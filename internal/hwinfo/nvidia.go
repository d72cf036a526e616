package hwinfo

import (
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strings"
)

// Minimal XML mapping for `nvidia-smi -x -q`.
type smiLog struct {
	XMLName       xml.Name `xml:"nvidia_smi_log"`
	DriverVersion string   `xml:"driver_version"`
}

func nvidiaDriverVersion(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return "", fmt.Errorf("nvidia-smi not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, "nvidia-smi", "-x", "-q").Output()
	if err != nil {
		return "", fmt.Errorf("run nvidia-smi: %w", err)
	}
	return parseDriverVersion(out)
}

func parseDriverVersion(data []byte) (string, error) {
	var log smiLog
	if err := xml.Unmarshal(data, &log); err != nil {
		return "", fmt.Errorf("decode nvidia-smi output: %w", err)
	}
	version := strings.TrimSpace(log.DriverVersion)
	if version == "" {
		return "", fmt.Errorf("nvidia-smi reported no driver version")
	}
	return version, nil
}
