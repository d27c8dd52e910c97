package jshost

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Script is a piece of source and where it came from: a file path,
// "<stdin>" or "<arg>". RunModule resolves relative imports from the
// directory of a file path.
type Script struct {
	Name   string
	Source string
}

// GetScript expands a script argument: "-" reads stdin, "@path" reads the
// file at path and anything else is the script text itself.
func GetScript(arg string, stdin io.Reader) (Script, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return Script{}, fmt.Errorf("reading stdin: %w", err)
		}
		return Script{Name: "<stdin>", Source: string(data)}, nil
	case strings.HasPrefix(arg, "@"):
		path := strings.TrimPrefix(arg, "@")
		if path == "" {
			return Script{}, fmt.Errorf("empty file name in %q", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Script{}, fmt.Errorf("reading script: %w", err)
		}
		return Script{Name: path, Source: string(data)}, nil
	default:
		return Script{Name: "<arg>", Source: arg}, nil
	}
}
