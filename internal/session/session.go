// Package session reads the running archive tasks from the external session
// registry (tmux) and formats them for status replies.
package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

// DefaultPrefix marks sessions that belong to archive tasks.
const DefaultPrefix = "YouTube-"

// Session is one running external archive task, keyed by its folder.
type Session struct {
	Identifier string
	StartTime  time.Time
}

// Parse turns "<unix_ts> <name>" lines into sessions. Lines whose name lacks
// prefix are skipped; a malformed line fails the whole listing.
func Parse(raw, prefix string) ([]Session, error) {
	var sessions []Session
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		ts, name, ok := strings.Cut(line, " ")
		if !ok || name == "" {
			return nil, fmt.Errorf("line %d: missing session name in %q", i+1, line)
		}
		secs, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp %q: %w", i+1, ts, err)
		}
		identifier, found := strings.CutPrefix(name, prefix)
		if !found {
			continue
		}
		sessions = append(sessions, Session{Identifier: identifier, StartTime: time.Unix(secs, 0)})
	}
	return sessions, nil
}

// Registry lists archive sessions through tmux.
type Registry struct {
	runner tools.Runner
	tmux   string
	prefix string
	logger *zap.Logger
}

// NewRegistry builds a Registry. Empty tmux or prefix fall back to defaults.
func NewRegistry(runner tools.Runner, tmux, prefix string, logger *zap.Logger) *Registry {
	if tmux == "" {
		tmux = "tmux"
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{runner: runner, tmux: tmux, prefix: prefix, logger: logger}
}

// Prefix returns the session name prefix of archive tasks.
func (r *Registry) Prefix() string {
	return r.prefix
}

// List returns the currently running archive sessions.
func (r *Registry) List(ctx context.Context) ([]Session, error) {
	out, err := r.runner.Run(ctx, r.tmux, "list-sessions", "-F", "#{session_created} #S")
	if err != nil {
		return nil, &errs.IOError{Op: "list tmux sessions", Err: err}
	}
	if !utf8.Valid(out.Stdout) {
		return nil, &errs.UTF8DecodingError{Source: r.tmux}
	}
	if out.ExitCode != 0 {
		// tmux exits non-zero when no server is running; that is an empty registry.
		if len(out.Stdout) == 0 && strings.Contains(string(out.Stderr), "no server running") {
			return nil, nil
		}
		return nil, &errs.IOError{
			Op:  "list tmux sessions",
			Err: fmt.Errorf("exit status %d: %s", out.ExitCode, strings.TrimSpace(string(out.Stderr))),
		}
	}
	sessions, err := Parse(string(out.Stdout), r.prefix)
	if err != nil {
		return nil, &errs.IOError{Op: "parse tmux sessions", Err: err}
	}
	r.logger.Debug("listed sessions", zap.Int("count", len(sessions)))
	return sessions, nil
}

// NewestFirst returns a copy of sessions sorted by descending start time.
func NewestFirst(sessions []Session) []Session {
	sorted := append([]Session(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})
	return sorted
}

// Shorthand renders an elapsed duration as e.g. 45m, 3h2m or 2d4h1m.
func Shorthand(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	hours := secs % 86400 / 3600
	minutes := secs % 3600 / 60
	switch {
	case secs < 3600:
		return fmt.Sprintf("%dm", minutes)
	case secs < 86400:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	default:
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	}
}

// Describe renders sessions newest first as "id (age), id (age)".
func Describe(sessions []Session, now time.Time) string {
	parts := make([]string, 0, len(sessions))
	for _, s := range NewestFirst(sessions) {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Identifier, Shorthand(now.Sub(s.StartTime))))
	}
	return strings.Join(parts, ", ")
}
