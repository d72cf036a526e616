// Package api talks to the hardware-survey server: platform discovery,
// test-definition download and result submission.
package api

// Hash is one checksum the server publishes for a downloadable file.
type Hash struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// Platform is one OS/arch combination the server has test data for.
type Platform struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Supported bool   `json:"supported"`
}

type platformsResponse struct {
	Platforms []Platform `json:"platforms"`
}

// FFmpegSource describes the ffmpeg build a platform must benchmark with.
type FFmpegSource struct {
	Version   string `json:"ffmpeg_version"`
	SourceURL string `json:"ffmpeg_source_url"`
	Hashes    []Hash `json:"ffmpeg_hashs"`
}

// CommandSpec is one command template for a device type. Args carries
// {video_file} and {gpu} placeholders and is only executable after
// substitution.
type CommandSpec struct {
	Type string `json:"type"`
	Args string `json:"args"`
}

// Test is one transcode scenario of a test file.
type Test struct {
	ID             string        `json:"id"`
	FromResolution string        `json:"from_resolution"`
	ToResolution   string        `json:"to_resolution"`
	Arguments      []CommandSpec `json:"arguments"`
}

// TestFile is one downloadable source video plus its test scenarios.
type TestFile struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Hashes    []Hash `json:"source_hashs"`
	Data      []Test `json:"data"`
}

// TestData is the full test definition for one platform.
type TestData struct {
	Token  string       `json:"token"`
	FFmpeg FFmpegSource `json:"ffmpeg"`
	Tests  []TestFile   `json:"tests"`
}
