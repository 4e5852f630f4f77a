package pagefetch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

// DefaultCommand prints the markup of the page given as its only argument.
const DefaultCommand = "get-youtube-page"

// ExecFetcher fetches pages through an external command.
type ExecFetcher struct {
	runner  tools.Runner
	command string
	logger  *zap.Logger
}

// NewExecFetcher creates an ExecFetcher. An empty command selects DefaultCommand.
func NewExecFetcher(runner tools.Runner, command string, logger *zap.Logger) *ExecFetcher {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecFetcher{runner: runner, command: command, logger: logger}
}

// Fetch runs the command and returns its stdout.
func (f *ExecFetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	out, err := f.runner.Run(ctx, f.command, url)
	if err != nil {
		metrics.ObservePageFetch("exec", "error", time.Since(start))
		return "", &errs.IOError{Op: "fetch " + url, Err: err}
	}
	if !utf8.Valid(out.Stdout) {
		metrics.ObservePageFetch("exec", "error", time.Since(start))
		return "", &errs.UTF8DecodingError{Source: f.command}
	}
	if out.ExitCode != 0 {
		metrics.ObservePageFetch("exec", "error", time.Since(start))
		return "", &errs.IOError{
			Op:  "fetch " + url,
			Err: fmt.Errorf("%s exit status %d: %s", f.command, out.ExitCode, strings.TrimSpace(string(out.Stderr))),
		}
	}
	metrics.ObservePageFetch("exec", "ok", time.Since(start))
	f.logger.Debug("page fetched", zap.String("url", url), zap.Int("bytes", len(out.Stdout)))
	return string(out.Stdout), nil
}
