package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Transform runs the external transformation collaborator: a command that
// reads raw.* and writes silver.* and gold.*. Only its exit status is
// inspected.
type Transform struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the inherited environment
	Output  io.Writer
}

// NewTransforms builds one Transform per command line. Each line is the
// program followed by its arguments.
func NewTransforms(lines [][]string, dir string, output io.Writer) []Transform {
	out := make([]Transform, 0, len(lines))
	for _, l := range lines {
		if len(l) == 0 {
			continue
		}
		out = append(out, Transform{Command: l[0], Args: l[1:], Dir: dir, Output: output})
	}
	return out
}

// Line returns the command line as it is logged.
func (t Transform) Line() string {
	return strings.Join(append([]string{t.Command}, t.Args...), " ")
}

// StepName names the pipeline step that runs t.
func (t Transform) StepName() string {
	return fmt.Sprintf("%s (%s)", StepTransform, t.Line())
}

// Run executes the command and returns an error when it cannot start or
// exits non-zero.
func (t Transform) Run(ctx context.Context, logger *slog.Logger) error {
	if t.Command == "" {
		return fmt.Errorf("transform command is not configured")
	}
	cmd := exec.CommandContext(ctx, t.Command, t.Args...) //nolint:gosec // command comes from operator configuration
	cmd.Dir = t.Dir
	if len(t.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.Env...)
	}
	if t.Output != nil {
		cmd.Stdout = t.Output
		cmd.Stderr = t.Output
	}

	line := t.Line()
	logger.Info("running transform", "command", line, "dir", t.Dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("transform %q exited with status %d", line, exitErr.ExitCode())
		}
		return fmt.Errorf("start transform %q: %w", line, err)
	}
	return nil
}
