// Package tools wraps the external processes the bot drives: tmux sessions,
// archive launchers, and helper scripts.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
)

// Output is what a finished process produced. A non-zero ExitCode is not an
// error by itself; callers decide what it means for their tool.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner spawns a process and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecRunner creates an ExecRunner. A zero timeout disables the per-call deadline.
func NewExecRunner(timeout time.Duration, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{timeout: timeout, logger: logger}
}

// Run executes name with args. It returns an error only when the process
// could not be started or was killed by the context.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	tool := filepath.Base(name)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		metrics.ObserveExternalCall(tool, "killed", elapsed)
		return out, fmt.Errorf("run %s: %w", name, ctx.Err())
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		metrics.ObserveExternalCall(tool, "failed", elapsed)
		return out, fmt.Errorf("run %s: %w", name, err)
	}

	outcome := "ok"
	if out.ExitCode != 0 {
		outcome = "nonzero"
	}
	metrics.ObserveExternalCall(tool, outcome, elapsed)
	r.logger.Debug("external command finished",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", elapsed),
	)
	return out, nil
}
