// Package cmd defines the CLI commands of the archive bot.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/config"
	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
	"github.com/JakeFAU/youtube-archive-bot/internal/logging"
	"github.com/JakeFAU/youtube-archive-bot/internal/server"
)

// App is what serve and dispatch need from the built application.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Handle(ctx context.Context, text string, sender dispatch.Sender) []dispatch.Result
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app, nil
}

type envKeyType string

const envKey envKeyType = "env"

// env is what the root command loads before any subcommand runs.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile      string
		writeDefault bool
	)
	cmd := &cobra.Command{
		Use:   "archivebot",
		Short: "IRC bot that launches and tracks YouTube archive tasks.",
		Long: `archivebot listens in an IRC channel for archive requests, resolves
YouTube URLs to their canonical channel or playlist, and launches one
archive task per folder in a detached tmux session.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if writeDefault {
				if err := ensureConfigFile(cfgFile); err != nil {
					return err
				}
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and ARCHIVEBOT_* env vars apply)")
	cmd.PersistentFlags().BoolVar(&writeDefault, "write-default", false, "write the default config to --config if it does not exist")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFolderCmd())
	cmd.AddCommand(newDispatchCmd())
	return cmd
}

// ensureConfigFile writes the defaults to path unless a file is already there.
func ensureConfigFile(path string) error {
	if path == "" {
		return errors.New("--write-default requires --config")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	return config.WriteDefault(path)
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
