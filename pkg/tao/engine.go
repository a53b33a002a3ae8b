package tao

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var (
	// ErrUnknownCommand is returned for commands the engine does not implement.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownAttribute is returned by lat_list queries for unknown attributes.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrNoMatch is returned when an element pattern matches nothing.
	ErrNoMatch = errors.New("no element matches")
)

// Engine is a lattice engine driven by command lines.
type Engine interface {
	// Cmd runs one command and returns its output lines.
	Cmd(ctx context.Context, command string) ([]string, error)

	// LatListReal returns a numeric attribute for every element matching
	// elements, in lattice order. Matrix attributes are flattened.
	LatListReal(ctx context.Context, elements, who string, flags ...string) ([]float64, error)

	// LatListString returns a string attribute for every matching element.
	LatListString(ctx context.Context, elements, who string, flags ...string) ([]string, error)
}

// IsComment reports whether line carries no command.
func IsComment(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "!")
}

// StripComment removes a trailing "! ..." comment.
func StripComment(line string) string {
	if i := strings.Index(line, "!"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// Run executes cmds in order. Blank and comment lines are skipped.
// Command failures are logged at warning level and do not stop the run;
// the number of failed commands is returned. Run stops early only when
// ctx ends.
func Run(ctx context.Context, e Engine, cmds []string, logger *slog.Logger) (failed int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if IsComment(cmd) {
			continue
		}
		cmd = strings.TrimSpace(cmd)
		if _, err := e.Cmd(ctx, cmd); err != nil {
			failed++
			logger.Warn("engine command failed", "cmd", cmd, "error", err)
		}
	}
	return failed, nil
}

// Lines splits a multi-line command block into its non-blank lines.
func Lines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
