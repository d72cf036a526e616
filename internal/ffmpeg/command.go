package ffmpeg

import (
	"fmt"
	"strings"
)

// Command is a fully substituted argument vector for one ffmpeg invocation.
// It is immutable after construction; the benchmark never edits a command
// mid-run.
type Command struct {
	argv []string
}

// NewCommand wraps an argument vector. The first element is the executable.
func NewCommand(argv []string) (Command, error) {
	if len(argv) == 0 {
		return Command{}, fmt.Errorf("command must have at least an executable")
	}
	owned := make([]string, len(argv))
	copy(owned, argv)
	return Command{argv: owned}, nil
}

// ParseCommand splits a shell-style command line into a Command. Single and
// double quotes group words; a backslash escapes the next character outside
// single quotes.
func ParseCommand(line string) (Command, error) {
	argv, err := splitArgs(line)
	if err != nil {
		return Command{}, err
	}
	return NewCommand(argv)
}

// Path returns the executable.
func (c Command) Path() string { return c.argv[0] }

// Args returns the arguments after the executable.
func (c Command) Args() []string { return c.argv[1:] }

// Argv returns a copy of the full argument vector.
func (c Command) Argv() []string {
	out := make([]string, len(c.argv))
	copy(out, c.argv)
	return out
}

func (c Command) String() string {
	parts := make([]string, len(c.argv))
	for i, a := range c.argv {
		if strings.ContainsAny(a, " \t'\"") {
			parts[i] = fmt.Sprintf("%q", a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		escaped bool
		inWord  bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'' && r != '\'':
			cur.WriteRune(r)
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '\'' || r == '"'):
			quote = r
			inWord = true
		case quote == 0 && (r == ' ' || r == '\t' || r == '\n'):
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if escaped || quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command line: %s", line)
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return args, nil
}
