// Package dispatch turns one chat command into reply lines. It sequences URL
// classification, canonicalization, admission, and the external tools, and
// converts every failure into a reply addressed to the sender.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/admission"
	"github.com/JakeFAU/youtube-archive-bot/internal/descriptor"
	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
	"github.com/JakeFAU/youtube-archive-bot/internal/notify"
	"github.com/JakeFAU/youtube-archive-bot/internal/session"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

// UnauthorizedWarning is the reply to a sender refused by the Authorizer.
const UnauthorizedWarning = "commands that start or stop tasks require a direct connection, not a relay or web gateway"

// Usage is the reply to !help.
const Usage = "Usage: !help | !status | !s <url or folder> | !a <url> | !sa <url> | " +
	"!averybig <url> | !saverybig <url> | !abort <task> | !stopscripts | !contscripts"

// Canonicalizer resolves a classified descriptor.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, d descriptor.Descriptor) (descriptor.Canonical, error)
}

// SessionLister reads the running archive sessions.
type SessionLister interface {
	List(ctx context.Context) ([]session.Session, error)
}

// Admitter applies the admission rules.
type Admitter interface {
	TryAdmit(folder, user string, sessions []session.Session) admission.Decision
	Limits() admission.Limits
}

// Launcher starts an archive task.
type Launcher interface {
	Launch(ctx context.Context, req tools.LaunchRequest) error
}

// Aborter interrupts a running archive task.
type Aborter interface {
	Abort(ctx context.Context, task string) error
}

// Scripts controls the helper scripts.
type Scripts interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// StashChecker summarizes what is already archived for a folder.
type StashChecker interface {
	Check(ctx context.Context, folder string) (string, error)
}

// Announcer publishes launched tasks.
type Announcer interface {
	Announce(ctx context.Context, e notify.Event) error
}

// Deps are the collaborators a Dispatcher drives. Announcer may be nil.
type Deps struct {
	Canonicalizer Canonicalizer
	Sessions      SessionLister
	Admission     Admitter
	Launcher      Launcher
	Aborter       Aborter
	Scripts       Scripts
	Stash         StashChecker
	Announcer     Announcer
	Now           func() time.Time
}

// Result is one reply line. Err is set when the line reports a failure.
type Result struct {
	Text string
	Err  error
}

// Dispatcher handles one command at a time.
type Dispatcher struct {
	mu     sync.Mutex
	deps   Deps
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(deps Deps, logger *zap.Logger) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{deps: deps, logger: logger.Named("dispatch")}
}

type handlerFunc func(ctx context.Context, c *call) []Result

type command struct {
	name   string
	prefix bool
	auth   bool
	handle handlerFunc
}

type call struct {
	id     string
	sender Sender
	arg    string
	logger *zap.Logger
}

func (d *Dispatcher) commands() []command {
	return []command{
		{name: "!help", handle: d.help},
		{name: "!status", handle: d.status},
		{name: "!s", prefix: true, handle: d.stashCheck},
		{name: "!a", prefix: true, auth: true, handle: d.archiveWith(tools.Standard)},
		{name: "!sa", prefix: true, auth: true, handle: d.stashThenArchive(tools.Standard)},
		{name: "!averybig", prefix: true, auth: true, handle: d.archiveWith(tools.VeryBig)},
		{name: "!saverybig", prefix: true, auth: true, handle: d.stashThenArchive(tools.VeryBig)},
		{name: "!abort", prefix: true, auth: true, handle: d.abort},
		{name: "!stopscripts", auth: true, handle: d.stopScripts},
		{name: "!contscripts", auth: true, handle: d.contScripts},
	}
}

func (d *Dispatcher) match(text string) (command, string, bool) {
	for _, cmd := range d.commands() {
		if !cmd.prefix {
			if text == cmd.name {
				return cmd, "", true
			}
			continue
		}
		if arg, ok := strings.CutPrefix(text, cmd.name+" "); ok {
			return cmd, strings.TrimSpace(arg), true
		}
	}
	return command{}, "", false
}

// Dispatch runs the command in text for sender and returns its replies in
// execution order. Unknown commands produce no replies. A nil auth
// authorizes everyone.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, sender Sender, auth Authorizer) []Result {
	cmd, arg, ok := d.match(text)
	if !ok {
		return nil
	}
	if auth == nil {
		auth = AllowAll
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := uuid.NewV7()
	if err != nil {
		raw = uuid.New()
	}
	id := raw.String()
	c := &call{
		id:     id,
		sender: sender,
		arg:    arg,
		logger: d.logger.With(
			zap.String("command_id", id),
			zap.String("command", cmd.name),
			zap.String("nick", sender.Nick),
		),
	}

	ctx, span := otel.Tracer("archivebot/dispatch").Start(ctx, cmd.name)
	defer span.End()
	span.SetAttributes(attribute.String("command_id", id), attribute.String("nick", sender.Nick))

	start := d.deps.Now()
	if cmd.auth && !auth.Authorized(sender) {
		c.logger.Warn("command refused", zap.String("hostmask", sender.Hostmask()))
		metrics.ObserveCommand(cmd.name, "unauthorized")
		span.SetStatus(codes.Error, errs.ErrNotAuthorized.Error())
		return []Result{{Text: address(sender.Nick, UnauthorizedWarning), Err: errs.ErrNotAuthorized}}
	}

	results := cmd.handle(ctx, c)

	outcome := "ok"
	for _, r := range results {
		if r.Err != nil {
			outcome = "error"
			span.RecordError(r.Err)
			c.logger.Info("command failed", zap.Error(r.Err))
		}
	}
	if outcome == "error" {
		span.SetStatus(codes.Error, "command failed")
	}
	metrics.ObserveCommand(cmd.name, outcome)
	c.logger.Debug("command handled",
		zap.String("arg", arg),
		zap.Int("replies", len(results)),
		zap.Duration("duration", d.deps.Now().Sub(start)),
	)
	return results
}

func address(nick, text string) string {
	if nick == "" {
		return text
	}
	return nick + ": " + text
}

func reply(c *call, format string, args ...any) Result {
	return Result{Text: address(c.sender.Nick, fmt.Sprintf(format, args...))}
}

func failure(c *call, err error) Result {
	return Result{Text: address(c.sender.Nick, "error: "+err.Error()), Err: err}
}

func (d *Dispatcher) help(_ context.Context, _ *call) []Result {
	return []Result{{Text: Usage}}
}

func (d *Dispatcher) status(ctx context.Context, c *call) []Result {
	sessions, err := d.deps.Sessions.List(ctx)
	if err != nil {
		return []Result{failure(c, err)}
	}
	metrics.SetRunningSessions(len(sessions))
	scripts, err := d.deps.Scripts.Count(ctx)
	if err != nil {
		return []Result{failure(c, err)}
	}
	limit := d.deps.Admission.Limits().For(c.sender.Nick)
	text := fmt.Sprintf("%d/%d tasks, %d helper scripts", len(sessions), limit, scripts)
	if len(sessions) > 0 {
		text += ": " + session.Describe(sessions, d.deps.Now())
	}
	return []Result{{Text: text}}
}

func (d *Dispatcher) resolve(ctx context.Context, raw string) (descriptor.Descriptor, descriptor.Canonical, error) {
	desc, err := descriptor.Classify(raw)
	if err != nil {
		return descriptor.Descriptor{}, descriptor.Canonical{}, err
	}
	canonical, err := d.deps.Canonicalizer.Canonicalize(ctx, desc)
	if err != nil {
		return desc, descriptor.Canonical{}, err
	}
	return desc, canonical, nil
}

func (d *Dispatcher) stashCheck(ctx context.Context, c *call) []Result {
	if !looksLikeURL(c.arg) {
		if !descriptor.ValidFolder(c.arg) {
			return []Result{failure(c, &errs.InvalidTaskNameError{Name: c.arg})}
		}
		return []Result{d.stashReply(ctx, c, c.arg)}
	}
	desc, err := descriptor.Classify(c.arg)
	if err != nil {
		return []Result{failure(c, err)}
	}
	if desc.Kind == descriptor.Video {
		return []Result{failure(c, stashOfVideo())}
	}
	canonical, err := d.deps.Canonicalizer.Canonicalize(ctx, desc)
	if err != nil {
		return []Result{failure(c, err)}
	}
	return []Result{d.stashReply(ctx, c, canonical.Folder)}
}

func (d *Dispatcher) stashReply(ctx context.Context, c *call, folder string) Result {
	summary, err := d.deps.Stash.Check(ctx, folder)
	if err != nil {
		return failure(c, err)
	}
	return reply(c, "%s", summary)
}

func (d *Dispatcher) archiveWith(variant tools.Variant) handlerFunc {
	return func(ctx context.Context, c *call) []Result {
		_, canonical, err := d.resolve(ctx, c.arg)
		if err != nil {
			return []Result{failure(c, err)}
		}
		return []Result{d.archive(ctx, c, canonical, variant)}
	}
}

// stashThenArchive resolves the argument once and reuses it for both replies.
// A failed stash check does not stop the archive step.
func (d *Dispatcher) stashThenArchive(variant tools.Variant) handlerFunc {
	return func(ctx context.Context, c *call) []Result {
		desc, canonical, err := d.resolve(ctx, c.arg)
		if err != nil {
			return []Result{failure(c, err)}
		}
		var stash Result
		if desc.Kind == descriptor.Video {
			stash = failure(c, stashOfVideo())
		} else {
			stash = d.stashReply(ctx, c, canonical.Folder)
		}
		return []Result{stash, d.archive(ctx, c, canonical, variant)}
	}
}

func (d *Dispatcher) archive(ctx context.Context, c *call, canonical descriptor.Canonical, variant tools.Variant) Result {
	sessions, err := d.deps.Sessions.List(ctx)
	if err != nil {
		return failure(c, err)
	}
	metrics.SetRunningSessions(len(sessions))

	decision := d.deps.Admission.TryAdmit(canonical.Folder, c.sender.Nick, sessions)
	if !decision.Admitted {
		return reply(c, "not archiving %s: %s", canonical.Folder, decision.Reason)
	}

	req := tools.LaunchRequest{
		Kind:    canonical.Kind.String(),
		Folder:  canonical.Folder,
		Target:  canonical.URL(),
		Variant: variant,
	}
	if err := d.deps.Launcher.Launch(ctx, req); err != nil {
		return failure(c, err)
	}
	c.logger.Info("archive started",
		zap.String("folder", req.Folder),
		zap.String("target", req.Target),
		zap.Stringer("variant", variant),
	)
	d.announce(ctx, c, req)
	return reply(c, "archiving %s into %s (%d/%d tasks)", req.Target, req.Folder, len(sessions)+1, decision.Limit)
}

func (d *Dispatcher) announce(ctx context.Context, c *call, req tools.LaunchRequest) {
	if d.deps.Announcer == nil {
		return
	}
	err := d.deps.Announcer.Announce(ctx, notify.Event{
		CommandID:  c.id,
		Nick:       c.sender.Nick,
		Kind:       req.Kind,
		Folder:     req.Folder,
		Target:     req.Target,
		Variant:    req.Variant.String(),
		LaunchedAt: d.deps.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("launch announcement failed", zap.Error(err))
	}
}

func (d *Dispatcher) abort(ctx context.Context, c *call) []Result {
	if !descriptor.ValidFolder(c.arg) {
		return []Result{failure(c, &errs.InvalidTaskNameError{Name: c.arg})}
	}
	if err := d.deps.Aborter.Abort(ctx, c.arg); err != nil {
		return []Result{failure(c, err)}
	}
	return []Result{reply(c, "sent interrupt to %s", c.arg)}
}

func (d *Dispatcher) stopScripts(ctx context.Context, c *call) []Result {
	if err := d.deps.Scripts.Pause(ctx); err != nil {
		return []Result{failure(c, err)}
	}
	return []Result{reply(c, "paused helper scripts")}
}

func (d *Dispatcher) contScripts(ctx context.Context, c *call) []Result {
	if err := d.deps.Scripts.Resume(ctx); err != nil {
		return []Result{failure(c, err)}
	}
	return []Result{reply(c, "resumed helper scripts")}
}

func looksLikeURL(arg string) bool {
	return strings.Contains(arg, "/")
}

func stashOfVideo() error {
	return &errs.NotImplementedError{What: "stash check of a video URL"}
}
