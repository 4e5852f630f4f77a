// Package server builds the bot's dependencies and runs its transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/youtube-archive-bot/internal/admission"
	"github.com/JakeFAU/youtube-archive-bot/internal/api"
	"github.com/JakeFAU/youtube-archive-bot/internal/config"
	"github.com/JakeFAU/youtube-archive-bot/internal/descriptor"
	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
	"github.com/JakeFAU/youtube-archive-bot/internal/irc"
	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
	"github.com/JakeFAU/youtube-archive-bot/internal/notify"
	"github.com/JakeFAU/youtube-archive-bot/internal/pagefetch"
	"github.com/JakeFAU/youtube-archive-bot/internal/session"
	"github.com/JakeFAU/youtube-archive-bot/internal/stash"
	"github.com/JakeFAU/youtube-archive-bot/internal/telemetry"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

// Version is reported in the tracing resource. Set with -ldflags.
var Version = "dev"

const (
	serviceName        = "youtube-archive-bot"
	shutdownTimeout    = 10 * time.Second
	minReconnectDelay  = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
	readHeaderTimeout  = 5 * time.Second
	defaultReadyBudget = 5 * time.Second
)

var denyAll = dispatch.AuthorizerFunc(func(dispatch.Sender) bool { return false })

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	dispatcher     *dispatch.Dispatcher
	auth           dispatch.Authorizer
	registry       *session.Registry
	apiServer      *api.Server
	bot            *irc.Bot
	gcsLister      *stash.GCSLister
	publisher      *notify.Publisher
	pubsubClient   *pubsub.Client
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	runner := tools.NewExecRunner(cfg.CommandTimeout(), logger)
	app.registry = session.NewRegistry(runner, cfg.Tools.Tmux, cfg.Tools.SessionPrefix, logger)

	fetcher := NewFetcher(cfg, runner, logger)

	lister, err := app.setupStash(ctx, runner)
	if err != nil {
		app.closeQuietly()
		return nil, err
	}

	if err := app.setupPublisher(ctx); err != nil {
		app.closeQuietly()
		return nil, err
	}

	app.auth, err = dispatch.NewPatternAuthorizer(cfg.Auth.RelayedPatterns)
	if err != nil {
		app.closeQuietly()
		return nil, fmt.Errorf("auth patterns: %w", err)
	}

	tmux := tools.TmuxConfig{
		Tmux:           cfg.Tools.Tmux,
		SessionPrefix:  cfg.Tools.SessionPrefix,
		WorkDir:        cfg.Tools.WorkDir,
		Command:        cfg.Tools.Launcher,
		VeryBigCommand: cfg.Tools.VeryBigLauncher,
	}
	deps := dispatch.Deps{
		Canonicalizer: descriptor.NewCanonicalizer(fetcher, logger),
		Sessions:      app.registry,
		Admission: admission.NewController(admission.Limits{
			Default: cfg.Parameters.TaskLimit,
			PerUser: cfg.UserLimits,
		}, logger),
		Launcher: tools.NewLauncher(runner, tmux, logger),
		Aborter:  tools.NewAborter(runner, tmux),
		Scripts:  tools.NewScripts(runner, cfg.Tools.ScriptPattern),
		Stash:    stash.NewChecker(lister, logger),
	}
	if app.publisher != nil {
		deps.Announcer = app.publisher
	}
	app.dispatcher = dispatch.New(deps, logger)

	apiKey := ""
	if cfg.API.Enabled {
		apiKey = cfg.API.Key
	}
	// HTTP callers name their own sender, so the hostmask check only means
	// something once the caller has proven itself with the API key.
	apiAuth := app.auth
	if apiKey == "" {
		apiAuth = denyAll
		logger.Info("api key not set; privileged commands are refused over http")
	}
	app.apiServer = api.NewServer(app.dispatcher, apiAuth, api.Options{
		APIKey: apiKey,
		Ready:  app.ready,
	}, logger)

	if cfg.IRC.Enabled {
		app.bot = irc.New(irc.Config{
			Server:         cfg.IRC.Server,
			TLS:            cfg.IRC.TLS,
			Nick:           cfg.IRC.Nick,
			User:           cfg.IRC.User,
			RealName:       cfg.IRC.RealName,
			Password:       cfg.IRC.Password,
			Channels:       cfg.IRC.Channels,
			CommandChannel: cfg.Parameters.CommandChannel,
			MaskHighlights: cfg.Features.MaskHighlights,
			NickStyles:     cfg.NickStyles(),
			SendNotice:     cfg.Features.SendNotice,
			BurstMessages:  cfg.IRC.BurstMessages,
			BurstWindow:    cfg.BurstWindow(),
			QueueDepth:     cfg.IRC.QueueDepth,
			MaxLineBytes:   cfg.IRC.MaxLineBytes,
		}, app.dispatcher, app.auth, logger)
	}

	logger.Info("application built",
		zap.Bool("irc", cfg.IRC.Enabled),
		zap.Bool("http", cfg.Server.Enabled),
		zap.String("fetch_backend", cfg.Fetch.Backend),
		zap.String("stash_backend", cfg.Stash.Backend),
		zap.Bool("announcements", app.publisher != nil),
	)
	return app, nil
}

// NewFetcher selects the page fetch backend from cfg and paces it per host
// when fetch.rate_per_second is positive.
func NewFetcher(cfg config.Config, runner tools.Runner, logger *zap.Logger) pagefetch.Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	var next pagefetch.Fetcher
	switch cfg.Fetch.Backend {
	case "colly":
		next = pagefetch.NewCollyFetcher(pagefetch.CollyConfig{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}, logger)
		logger.Info("using colly page fetcher", zap.String("user_agent", cfg.Fetch.UserAgent))
	default:
		next = pagefetch.NewExecFetcher(runner, cfg.Fetch.Command, logger)
		logger.Info("using exec page fetcher", zap.String("command", cfg.Fetch.Command))
	}
	if cfg.Fetch.RatePerSecond <= 0 {
		return next
	}
	return pagefetch.NewPaced(next, pagefetch.NewLimiter(cfg.Fetch.RatePerSecond, cfg.Fetch.Burst))
}

func (a *App) setupStash(ctx context.Context, runner tools.Runner) (stash.Lister, error) {
	if a.cfg.Stash.Backend == "gcs" {
		lister, err := stash.NewGCSLister(ctx, a.cfg.Stash.GCSBucket, a.cfg.Stash.GCSPrefix, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs stash init failed: %w", err)
		}
		a.gcsLister = lister
		a.logger.Info("using GCS stash", zap.String("bucket", a.cfg.Stash.GCSBucket))
		return lister, nil
	}
	a.logger.Info("using exec stash", zap.String("command", a.cfg.Stash.Command))
	return stash.NewExecLister(runner, a.cfg.Stash.Command, a.cfg.Stash.Args), nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, launch announcements disabled")
		return nil
	}
	publisher, client, err := notify.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.publisher = publisher
	a.pubsubClient = client
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultReadyBudget)
	defer cancel()
	sessions, err := a.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("session registry: %w", err)
	}
	metrics.SetRunningSessions(len(sessions))
	return nil
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Handle runs one command as sender with the relay-detecting authorizer.
func (a *App) Handle(ctx context.Context, text string, sender dispatch.Sender) []dispatch.Result {
	return a.dispatcher.Dispatch(ctx, text, sender, a.auth)
}

// Authorizer returns the relay-detecting authorizer.
func (a *App) Authorizer() dispatch.Authorizer {
	return a.auth
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves IRC and HTTP until ctx is canceled or a transport fails.
func (a *App) Run(ctx context.Context) error {
	if a.bot == nil && !a.cfg.Server.Enabled {
		return errors.New("nothing to run: irc and server are both disabled")
	}
	var ln net.Listener
	if a.cfg.Server.Enabled {
		var err error
		ln, err = net.Listen("tcp", a.cfg.ListenAddr())
		if err != nil {
			return fmt.Errorf("listen on %s: %w", a.cfg.ListenAddr(), err)
		}
	}
	a.logger.Info("application started")

	g, gctx := errgroup.WithContext(ctx)
	if a.bot != nil {
		g.Go(func() error {
			a.runIRC(gctx)
			return nil
		})
	}
	if ln != nil {
		srv := &http.Server{
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("shutdown initiated")
	return err
}

// runIRC keeps the bot connected, backing off between attempts.
func (a *App) runIRC(ctx context.Context) {
	delay := minReconnectDelay
	for {
		started := time.Now()
		err := a.bot.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxReconnectDelay {
			delay = minReconnectDelay
		}
		a.logger.Warn("irc connection ended, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// Close releases clients and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.gcsLister != nil {
		if err := a.gcsLister.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(err))
	}
}
