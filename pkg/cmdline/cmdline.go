// Package cmdline builds shell command lines from typed arguments: plain
// strings are quoted defensively, path references are rewritten relative
// to the boot-loader-visible mount root, and special tokens supply their
// own unescaped expansion (variable references, raw fragments, formatted
// values).
package cmdline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Opts carries the rendering context shared by all arguments of one
// command line.
type Opts struct {
	// PathRoot is the mount root visible to the target shell; Path
	// arguments are rewritten relative to it.
	PathRoot string
}

// Renderer is the special-token protocol: a token that produces its own
// shell text. The returned string is used verbatim, without quoting.
type Renderer interface {
	RenderShell(opts Opts) (string, error)
}

// Raw is an unescaped shell fragment, passed through as-is.
type Raw string

func (r Raw) RenderShell(Opts) (string, error) {
	return string(r), nil
}

// Env references a shell environment variable by name.
type Env string

func (e Env) RenderShell(Opts) (string, error) {
	return "${" + string(e) + "}", nil
}

// F formats a raw fragment; the result is not quoted.
func F(format string, args ...any) Raw {
	return Raw(fmt.Sprintf(format, args...))
}

// Path references a file below the mount root shared with the target.
// It renders as the path relative to Opts.PathRoot, quoted.
type Path string

func (p Path) RenderShell(opts Opts) (string, error) {
	rel, err := filepath.Rel(opts.PathRoot, string(p))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is not below mount root %q", string(p), opts.PathRoot)
	}
	return Quote(rel), nil
}

// Build renders args into one command line. Each argument is a plain
// string (quoted) or a Renderer; anything else is rejected. Arguments are
// joined with single spaces, no trailing whitespace.
func Build(opts Opts, args ...any) (string, error) {
	parts := make([]string, 0, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case Renderer:
			s, err := a.RenderShell(opts)
			if err != nil {
				return "", fmt.Errorf("argument %d: %w", i, err)
			}
			parts = append(parts, s)
		case string:
			parts = append(parts, Quote(a))
		default:
			return "", fmt.Errorf("argument %d: unsupported type %T", i, arg)
		}
	}
	return strings.Join(parts, " "), nil
}

// safeChars are passed unquoted; everything else gets single quotes.
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// Quote escapes s so a POSIX-style shell passes it through as a single
// literal word. Empty strings become ''; embedded single quotes use the
// '"'"' dance.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(safeChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
