package hwinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOSRelease(t *testing.T) {
	release := `NAME="Debian GNU/Linux"
VERSION_ID="12"
ID=debian
PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"
HOME_URL="https://www.debian.org/"
`
	info := parseOSRelease(strings.NewReader(release))
	assert.Equal(t, "debian", info.ID)
	assert.Equal(t, "Debian GNU/Linux 12 (bookworm)", info.PrettyName)
}

func TestParseOSReleaseIgnoresGarbage(t *testing.T) {
	info := parseOSRelease(strings.NewReader("no equals sign here\nID=arch\n"))
	assert.Equal(t, "arch", info.ID)
}

func TestParseLshwDisplayArray(t *testing.T) {
	data := []byte(`[
		{"class": "display", "vendor": "NVIDIA Corporation", "product": "GA106 [GeForce RTX 3060]", "businfo": "pci@0000:01:00.0"},
		{"class": "display", "vendor": "Intel Corporation", "product": "AlderLake-S GT1", "businfo": "pci@0000:00:02.0"}
	]`)
	gpus, err := parseLshwDisplay(data)
	require.NoError(t, err)
	require.Len(t, gpus, 2)
	assert.Equal(t, "NVIDIA Corporation", gpus[0].Vendor)
	assert.Equal(t, "pci@0000:01:00.0", gpus[0].BusInfo)
	assert.Equal(t, "intel", gpus[1].DeviceType())
}

func TestParseLshwDisplaySingleObject(t *testing.T) {
	data := []byte(`{"class": "display", "vendor": "Advanced Micro Devices, Inc. [AMD/ATI]", "product": "Navi 23", "businfo": "pci@0000:03:00.0"}`)
	gpus, err := parseLshwDisplay(data)
	require.NoError(t, err)
	require.Len(t, gpus, 1)
	assert.Equal(t, "amd", gpus[0].DeviceType())
}

func TestParseLshwDisplayRejectsJunk(t *testing.T) {
	_, err := parseLshwDisplay([]byte("lshw: command output garbled"))
	assert.Error(t, err)
}

func TestDeviceType(t *testing.T) {
	cases := []struct {
		vendor string
		want   string
	}{
		{"NVIDIA Corporation", "nvidia"},
		{"Advanced Micro Devices, Inc. [AMD/ATI]", "amd"},
		{"Intel Corporation", "intel"},
		{"Matrox Electronics Systems Ltd.", "matrox electronics systems ltd."},
	}
	for _, tc := range cases {
		gpu := GPU{Vendor: tc.vendor}
		assert.Equal(t, tc.want, gpu.DeviceType(), "vendor %q", tc.vendor)
	}
}

func TestParseDriverVersion(t *testing.T) {
	xmlOut := []byte(`<?xml version="1.0" ?>
<nvidia_smi_log>
	<timestamp>Tue Aug 26 12:00:00 2026</timestamp>
	<driver_version>535.183.01</driver_version>
	<cuda_version>12.2</cuda_version>
</nvidia_smi_log>`)

	version, err := parseDriverVersion(xmlOut)
	require.NoError(t, err)
	assert.Equal(t, "535.183.01", version)
}

func TestParseDriverVersionMissing(t *testing.T) {
	_, err := parseDriverVersion([]byte(`<nvidia_smi_log></nvidia_smi_log>`))
	assert.Error(t, err)

	_, err = parseDriverVersion([]byte(`not xml at all`))
	assert.Error(t, err)
}
