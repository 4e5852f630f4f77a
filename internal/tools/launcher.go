package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/descriptor"
	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// Variant selects which archive launcher runs the task.
type Variant int

// Launcher variants.
const (
	Standard Variant = iota
	VeryBig
)

func (v Variant) String() string {
	if v == VeryBig {
		return "verybig"
	}
	return "standard"
}

// LaunchRequest describes one archive task.
type LaunchRequest struct {
	Kind    string
	Folder  string
	Target  string
	Variant Variant
}

// TmuxConfig names the binaries and locations the tmux-backed tools use.
type TmuxConfig struct {
	Tmux           string
	SessionPrefix  string
	WorkDir        string
	Command        string
	VeryBigCommand string
}

func (c TmuxConfig) withDefaults() TmuxConfig {
	if c.Tmux == "" {
		c.Tmux = "tmux"
	}
	if c.SessionPrefix == "" {
		c.SessionPrefix = "YouTube-"
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Command == "" {
		c.Command = "youtube-archive"
	}
	if c.VeryBigCommand == "" {
		c.VeryBigCommand = c.Command + "-verybig"
	}
	return c
}

// Launcher starts archive tasks in detached tmux sessions named after their folder.
type Launcher struct {
	runner Runner
	cfg    TmuxConfig
	logger *zap.Logger
}

// NewLauncher builds a Launcher.
func NewLauncher(runner Runner, cfg TmuxConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{runner: runner, cfg: cfg.withDefaults(), logger: logger}
}

// Launch creates the working folder and spawns the launcher. It does not wait
// for the archive itself; tmux detaches immediately.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) error {
	if !descriptor.ValidFolder(req.Folder) {
		return &errs.InvalidTaskNameError{Name: req.Folder}
	}
	dir := filepath.Join(l.cfg.WorkDir, req.Folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &errs.CreatingFolderError{Folder: req.Folder, Err: err}
	}

	command := l.cfg.Command
	if req.Variant == VeryBig {
		command = l.cfg.VeryBigCommand
	}
	out, err := l.runner.Run(ctx, l.cfg.Tmux,
		"new-session", "-d",
		"-s", l.cfg.SessionPrefix+req.Folder,
		"-c", dir,
		command, req.Kind, req.Target,
	)
	if err != nil {
		return &errs.IOError{Op: "launch archive task", Err: err}
	}
	if !utf8.Valid(out.Stdout) || !utf8.Valid(out.Stderr) {
		return &errs.UTF8DecodingError{Source: l.cfg.Tmux}
	}
	if out.ExitCode != 0 {
		return &errs.IOError{Op: "launch archive task", Err: exitError(out)}
	}
	l.logger.Info("archive task launched",
		zap.String("folder", req.Folder),
		zap.String("kind", req.Kind),
		zap.String("target", req.Target),
		zap.Stringer("variant", req.Variant),
	)
	return nil
}

// Aborter interrupts a running archive session.
type Aborter struct {
	runner Runner
	cfg    TmuxConfig
}

// NewAborter builds an Aborter.
func NewAborter(runner Runner, cfg TmuxConfig) *Aborter {
	return &Aborter{runner: runner, cfg: cfg.withDefaults()}
}

// Abort sends Ctrl-C to the session of task. It does not wait for the task to stop.
func (a *Aborter) Abort(ctx context.Context, task string) error {
	if !descriptor.ValidFolder(task) {
		return &errs.InvalidTaskNameError{Name: task}
	}
	out, err := a.runner.Run(ctx, a.cfg.Tmux, "send-keys", "-t", a.cfg.SessionPrefix+task, "C-c")
	if err != nil {
		return &errs.IOError{Op: "abort " + task, Err: err}
	}
	if out.ExitCode != 0 {
		return &errs.IOError{Op: "abort " + task, Err: exitError(out)}
	}
	return nil
}

func exitError(out Output) error {
	msg := strings.TrimSpace(string(out.Stderr))
	if msg == "" {
		return fmt.Errorf("exit status %d", out.ExitCode)
	}
	return fmt.Errorf("exit status %d: %s", out.ExitCode, msg)
}
