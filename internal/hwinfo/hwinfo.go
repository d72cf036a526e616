// Package hwinfo collects the hardware inventory the benchmark reports and
// selects devices from: OS, CPU, memory and display adapters.
package hwinfo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// OSInfo identifies the operating system.
type OSInfo struct {
	ID         string `json:"id"`
	PrettyName string `json:"pretty_name"`
}

// CPUInfo describes one CPU package.
type CPUInfo struct {
	Product      string `json:"product"`
	Cores        int    `json:"cores"`
	Architecture string `json:"architecture"`
}

// MemoryBank is one installed memory module or, when the platform cannot
// enumerate modules, the total as a single bank.
type MemoryBank struct {
	Vendor string `json:"vendor,omitempty"`
	Size   int64  `json:"size"`
	Units  string `json:"units"`
}

// GPU describes one display adapter.
type GPU struct {
	Vendor        string `json:"vendor"`
	Product       string `json:"product"`
	BusInfo       string `json:"businfo"`
	DriverVersion string `json:"driver_version,omitempty"`
}

// SystemInfo is the full inventory as submitted to the survey.
type SystemInfo struct {
	OS     OSInfo       `json:"os"`
	CPUs   []CPUInfo    `json:"cpu"`
	Memory []MemoryBank `json:"memory"`
	GPUs   []GPU        `json:"gpu"`
}

// DeviceType normalizes a GPU vendor string to the device-type tags used in
// the server's command specs ("nvidia", "amd", "intel").
func (g GPU) DeviceType() string {
	vendor := strings.ToLower(g.Vendor)
	switch {
	case strings.Contains(vendor, "nvidia"):
		return "nvidia"
	case strings.Contains(vendor, "advanced micro devices"), strings.Contains(vendor, "amd"), strings.Contains(vendor, "ati"):
		return "amd"
	case strings.Contains(vendor, "intel"):
		return "intel"
	default:
		return vendor
	}
}

// Collect gathers the inventory. GPU discovery degrades gracefully: a
// machine without lshw or nvidia-smi still reports OS, CPU and memory.
func Collect(ctx context.Context, log *slog.Logger) (*SystemInfo, error) {
	if log == nil {
		log = slog.Default()
	}

	info := &SystemInfo{
		OS: readOSInfo(),
		CPUs: []CPUInfo{{
			Product:      readCPUModel(),
			Cores:        runtime.NumCPU(),
			Architecture: runtime.GOARCH,
		}},
		Memory: readMemory(),
	}

	gpus, err := listGPUs(ctx)
	if err != nil {
		log.Warn("gpu discovery failed", slog.String("error", err.Error()))
	}
	for i := range gpus {
		if gpus[i].DeviceType() == "nvidia" {
			version, err := nvidiaDriverVersion(ctx)
			if err != nil {
				log.Warn("nvidia driver version lookup failed", slog.String("error", err.Error()))
				continue
			}
			gpus[i].DriverVersion = version
		}
	}
	info.GPUs = gpus
	return info, nil
}

func readOSInfo() OSInfo {
	if runtime.GOOS == "windows" {
		return OSInfo{ID: "windows", PrettyName: "Windows"}
	}
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return OSInfo{ID: runtime.GOOS, PrettyName: runtime.GOOS}
	}
	defer f.Close()
	return parseOSRelease(f)
}

func parseOSRelease(r io.Reader) OSInfo {
	info := OSInfo{ID: runtime.GOOS, PrettyName: runtime.GOOS}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, found := strings.Cut(sc.Text(), "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "ID":
			info.ID = value
		case "PRETTY_NAME":
			info.PrettyName = value
		}
	}
	return info
}

func readCPUModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, found := strings.Cut(sc.Text(), ":")
		if found && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return "unknown"
}

func readMemory() []MemoryBank {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return nil
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, found := strings.Cut(sc.Text(), ":")
		if !found || key != "MemTotal" {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) < 1 {
			break
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			break
		}
		return []MemoryBank{{Size: kb, Units: "kb"}}
	}
	return nil
}

// lshwNode is the subset of `lshw -C display -json` output we read.
type lshwNode struct {
	Class   string `json:"class"`
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
	BusInfo string `json:"businfo"`
}

func listGPUs(ctx context.Context) ([]GPU, error) {
	out, err := exec.CommandContext(ctx, "lshw", "-C", "display", "-json").Output()
	if err != nil {
		return nil, fmt.Errorf("run lshw: %w", err)
	}
	return parseLshwDisplay(out)
}

func parseLshwDisplay(data []byte) ([]GPU, error) {
	// Depending on version, lshw emits either an array or a single object.
	var nodes []lshwNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		var single lshwNode
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("decode lshw output: %w", err)
		}
		nodes = []lshwNode{single}
	}

	var gpus []GPU
	for _, n := range nodes {
		if n.Class != "" && n.Class != "display" {
			continue
		}
		gpus = append(gpus, GPU{
			Vendor:  n.Vendor,
			Product: n.Product,
			BusInfo: n.BusInfo,
		})
	}
	return gpus, nil
}
