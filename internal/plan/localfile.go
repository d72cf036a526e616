package plan

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/BotBlake/jellybench/api"
)

// Local TOML plan files replace the server in debug runs. The layout
// mirrors the server's test data:
//
//	token = "local"
//
//	[ffmpeg]
//	source_url = "..."
//
//	[[files]]
//	name = "jellyfish-40m"
//	source_url = "https://..."
//
//	  [[files.tests]]
//	  id = "h264-1080p"
//	  from_resolution = "1080p"
//	  to_resolution = "1080p"
//
//	    [[files.tests.commands]]
//	    type = "cpu"
//	    args = "-i {video_file} ..."
type localPlan struct {
	Token  string      `toml:"token"`
	FFmpeg localSource `toml:"ffmpeg"`
	Files  []localFile `toml:"files"`
}

type localSource struct {
	Version   string      `toml:"version"`
	SourceURL string      `toml:"source_url"`
	Hashes    []localHash `toml:"hashes"`
}

type localHash struct {
	Type string `toml:"type"`
	Hash string `toml:"hash"`
}

type localFile struct {
	Name      string      `toml:"name"`
	SourceURL string      `toml:"source_url"`
	Hashes    []localHash `toml:"hashes"`
	Tests     []localTest `toml:"tests"`
}

type localTest struct {
	ID             string         `toml:"id"`
	FromResolution string         `toml:"from_resolution"`
	ToResolution   string         `toml:"to_resolution"`
	Commands       []localCommand `toml:"commands"`
}

type localCommand struct {
	Type string `toml:"type"`
	Args string `toml:"args"`
}

// LoadLocal reads a TOML plan file and converts it into the same shape the
// server serves, so the rest of the pipeline does not care where test
// definitions came from.
func LoadLocal(path string) (*api.TestData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var local localPlan
	if err := toml.Unmarshal(raw, &local); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}

	data := &api.TestData{
		Token: local.Token,
		FFmpeg: api.FFmpegSource{
			Version:   local.FFmpeg.Version,
			SourceURL: local.FFmpeg.SourceURL,
			Hashes:    convertHashes(local.FFmpeg.Hashes),
		},
	}
	if data.Token == "" {
		data.Token = "local"
	}

	for _, file := range local.Files {
		apiFile := api.TestFile{
			Name:      file.Name,
			SourceURL: file.SourceURL,
			Hashes:    convertHashes(file.Hashes),
		}
		for _, test := range file.Tests {
			if len(test.Commands) == 0 {
				return nil, fmt.Errorf("test %s has no commands", test.ID)
			}
			apiTest := api.Test{
				ID:             test.ID,
				FromResolution: test.FromResolution,
				ToResolution:   test.ToResolution,
			}
			for _, cmd := range test.Commands {
				if cmd.Type == "" || cmd.Args == "" {
					return nil, fmt.Errorf("test %s has an incomplete command entry", test.ID)
				}
				apiTest.Arguments = append(apiTest.Arguments, api.CommandSpec{Type: cmd.Type, Args: cmd.Args})
			}
			apiFile.Data = append(apiFile.Data, apiTest)
		}
		data.Tests = append(data.Tests, apiFile)
	}
	return data, nil
}

func convertHashes(hashes []localHash) []api.Hash {
	out := make([]api.Hash, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, api.Hash{Type: h.Type, Hash: h.Hash})
	}
	return out
}
