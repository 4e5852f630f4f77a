package stash

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

// DefaultListCommand is the external stash lister.
const DefaultListCommand = "ts"

// DefaultListArgs precede the folder argument; they ask for bare names,
// newest first.
var DefaultListArgs = []string{"ls", "-n", "YouTube", "-j", "-rt"}

// ExecLister lists a folder by running an external command.
type ExecLister struct {
	runner  tools.Runner
	command string
	args    []string
}

// NewExecLister creates an ExecLister. An empty command selects the defaults.
func NewExecLister(runner tools.Runner, command string, args []string) *ExecLister {
	if command == "" {
		command = DefaultListCommand
		args = DefaultListArgs
	}
	return &ExecLister{runner: runner, command: command, args: append([]string(nil), args...)}
}

// List runs the lister and returns one name per output line.
func (l *ExecLister) List(ctx context.Context, folder string) ([]string, error) {
	args := append(append([]string(nil), l.args...), folder)
	out, err := l.runner.Run(ctx, l.command, args...)
	if err != nil {
		return nil, &errs.ListingFilesError{Folder: folder, Err: err}
	}
	if !utf8.Valid(out.Stdout) {
		return nil, &errs.UTF8DecodingError{Source: l.command}
	}
	if out.ExitCode != 0 {
		msg := strings.TrimSpace(string(out.Stderr))
		return nil, &errs.ListingFilesError{Folder: folder, Err: fmt.Errorf("exit status %d: %s", out.ExitCode, msg)}
	}
	var names []string
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
