package ffmpeg

import (
	"regexp"
	"strings"
)

// UnclassifiedFailure is the reason reported when none of the known failure
// patterns match the process output.
const UnclassifiedFailure = "unclassified ffmpeg failure"

type failurePattern struct {
	re    *regexp.Regexp
	group int
}

// Ordered failure extractors. The first match wins, so more specific forms
// come before the generic "Error ..." prefix.
var failurePatterns = []failurePattern{
	// e.g. "OpenEncodeSessionEx failed: License issue (21)"
	{re: regexp.MustCompile(` failed: (.*)\([0-9]+\)`), group: 1},
	// e.g. "Device creation failed -> vaapi: Function not implemented"
	{re: regexp.MustCompile(` failed -> (.*): (.*)`), group: 2},
	// e.g. "Failed to initialise VAAPI connection failed!: unknown driver (2)"
	{re: regexp.MustCompile(`failed!: (.*) \([0-9]+\)`), group: 1},
	// e.g. "Error initializing output stream 0:0"
	{re: regexp.MustCompile(`(?m)^Error (.*)`), group: 1},
}

// classifyFailure scans process output for a known failure marker and
// returns the extracted human-readable reason, or "" when nothing matches.
func classifyFailure(output string) string {
	for _, p := range failurePatterns {
		if m := p.re.FindStringSubmatch(output); m != nil {
			return strings.TrimSpace(m[p.group])
		}
	}
	return ""
}
