package tools

import (
	"context"
	"strings"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// DefaultScriptPattern matches the command lines of archive helper scripts.
const DefaultScriptPattern = "youtube-archive-helper"

// Scripts pauses, resumes, and counts helper scripts by command-line pattern.
type Scripts struct {
	runner  Runner
	pattern string
}

// NewScripts builds a Scripts controller.
func NewScripts(runner Runner, pattern string) *Scripts {
	if pattern == "" {
		pattern = DefaultScriptPattern
	}
	return &Scripts{runner: runner, pattern: pattern}
}

// Pause sends SIGSTOP to every helper script.
func (s *Scripts) Pause(ctx context.Context) error {
	return s.signal(ctx, "-STOP")
}

// Resume sends SIGCONT to every helper script.
func (s *Scripts) Resume(ctx context.Context) error {
	return s.signal(ctx, "-CONT")
}

// pkill and pgrep exit 1 when nothing matched, which is not a failure here.
func (s *Scripts) signal(ctx context.Context, sig string) error {
	out, err := s.runner.Run(ctx, "pkill", sig, "-f", s.pattern)
	if err != nil {
		return &errs.IOError{Op: "signal helper scripts", Err: err}
	}
	if out.ExitCode > 1 {
		return &errs.IOError{Op: "signal helper scripts", Err: exitError(out)}
	}
	return nil
}

// Count returns how many helper scripts are running.
func (s *Scripts) Count(ctx context.Context) (int, error) {
	out, err := s.runner.Run(ctx, "pgrep", "-f", s.pattern)
	if err != nil {
		return 0, &errs.IOError{Op: "count helper scripts", Err: err}
	}
	switch out.ExitCode {
	case 0:
	case 1:
		return 0, nil
	default:
		return 0, &errs.IOError{Op: "count helper scripts", Err: exitError(out)}
	}
	n := 0
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
