// Package irc connects the dispatcher to an IRC channel. Inbound commands are
// queued to a single worker so the read loop keeps answering PINGs while a
// command blocks; replies are paced with a token bucket.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/irc.v4"

	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
)

// Dispatcher handles one command and returns its replies.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, sender dispatch.Sender, auth dispatch.Authorizer) []dispatch.Result
}

// Config controls the connection and reply behavior.
type Config struct {
	Server         string
	TLS            bool
	Nick           string
	User           string
	RealName       string
	Password       string
	Channels       []string
	CommandChannel string
	MaskHighlights bool
	NickStyles     map[string]HighlightMode // keyed by lowercased nick
	SendNotice     bool
	BurstMessages  int
	BurstWindow    time.Duration
	QueueDepth     int
	MaxLineBytes   int
}

func (c Config) withDefaults() Config {
	if c.User == "" {
		c.User = c.Nick
	}
	if c.RealName == "" {
		c.RealName = c.Nick
	}
	if c.BurstMessages <= 0 {
		c.BurstMessages = 15
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = 8 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 32
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 400
	}
	return c
}

type inbound struct {
	text   string
	sender dispatch.Sender
}

type writer interface {
	WriteMessage(m *irc.Message) error
}

// Bot relays command-channel messages to a Dispatcher.
type Bot struct {
	cfg        Config
	dispatcher Dispatcher
	auth       dispatch.Authorizer
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a Bot.
func New(cfg Config, d Dispatcher, auth dispatch.Authorizer, logger *zap.Logger) *Bot {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	every := cfg.BurstWindow / time.Duration(cfg.BurstMessages)
	return &Bot{
		cfg:        cfg,
		dispatcher: d,
		auth:       auth,
		limiter:    rate.NewLimiter(rate.Every(every), cfg.BurstMessages),
		logger:     logger.Named("irc"),
	}
}

// Run dials the configured server and serves the connection until ctx ends
// or the server drops it.
func (b *Bot) Run(ctx context.Context) error {
	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("connected", zap.String("server", b.cfg.Server), zap.Bool("tls", b.cfg.TLS))
	return b.Serve(ctx, conn)
}

func (b *Bot) dial(ctx context.Context) (net.Conn, error) {
	if !b.cfg.TLS {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", b.cfg.Server)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", b.cfg.Server, err)
		}
		return conn, nil
	}
	host, _, err := net.SplitHostPort(b.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("parse irc server %q: %w", b.cfg.Server, err)
	}
	d := tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	conn, err := d.DialContext(ctx, "tcp", b.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.cfg.Server, err)
	}
	return conn, nil
}

// Serve runs the IRC session over conn. conn is closed when Serve returns.
func (b *Bot) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	queue := make(chan inbound, b.cfg.QueueDepth)
	client := irc.NewClient(conn, irc.ClientConfig{
		Nick: b.cfg.Nick,
		Pass: b.cfg.Password,
		User: b.cfg.User,
		Name: b.cfg.RealName,
		Handler: irc.HandlerFunc(func(c *irc.Client, m *irc.Message) {
			b.handle(c, m, queue)
		}),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := client.RunContext(gctx)
		if err != nil && gctx.Err() == nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("irc session: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		b.work(gctx, client, queue)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	b.logger.Info("disconnected")
	return nil
}

func (b *Bot) handle(c *irc.Client, m *irc.Message, queue chan<- inbound) {
	if m.Command == "001" {
		for _, ch := range b.cfg.Channels {
			if err := c.WriteMessage(&irc.Message{Command: "JOIN", Params: []string{ch}}); err != nil {
				b.logger.Warn("join failed", zap.String("channel", ch), zap.Error(err))
			}
		}
		return
	}
	in, ok := b.intake(m)
	if !ok {
		return
	}
	select {
	case queue <- in:
	default:
		b.logger.Warn("command queue full, dropping command",
			zap.String("nick", in.sender.Nick), zap.String("text", in.text))
	}
}

// intake accepts PRIVMSGs to the command channel that look like commands.
func (b *Bot) intake(m *irc.Message) (inbound, bool) {
	// The parser always allocates a Prefix, so an absent one shows up as an empty name.
	if m.Command != "PRIVMSG" || len(m.Params) < 2 || m.Prefix == nil || m.Prefix.Name == "" {
		return inbound{}, false
	}
	if !strings.EqualFold(m.Params[0], b.cfg.CommandChannel) {
		return inbound{}, false
	}
	text := strings.TrimSpace(m.Trailing())
	if !strings.HasPrefix(text, "!") {
		return inbound{}, false
	}
	return inbound{
		text:   text,
		sender: dispatch.Sender{Nick: m.Prefix.Name, User: m.Prefix.User, Host: m.Prefix.Host},
	}, true
}

func (b *Bot) work(ctx context.Context, w writer, queue <-chan inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-queue:
			results := b.dispatcher.Dispatch(ctx, in.text, in.sender, b.auth)
			for _, r := range results {
				if err := b.send(ctx, w, in.sender.Nick, r.Text); err != nil {
					b.logger.Warn("reply failed", zap.String("nick", in.sender.Nick), zap.Error(err))
					if ctx.Err() != nil {
						return
					}
				}
			}
		}
	}
}

// send writes one reply, one message per line, to the command channel.
func (b *Bot) send(ctx context.Context, w writer, nick, text string) error {
	command := "PRIVMSG"
	if b.cfg.SendNotice {
		command = "NOTICE"
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimRight(line, "\r"); line == "" {
			continue
		}
		line = maskAddressee(line, nick, b.cfg.NickStyles[strings.ToLower(nick)], b.cfg.MaskHighlights)
		line = Truncate(line, b.cfg.MaxLineBytes)
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("reply rate limit: %w", err)
		}
		if err := w.WriteMessage(&irc.Message{Command: command, Params: []string{b.cfg.CommandChannel, line}}); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	return nil
}
