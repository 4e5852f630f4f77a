package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
)

func newDispatchCmd() *cobra.Command {
	var sender dispatch.Sender
	cmd := &cobra.Command{
		Use:   "dispatch <command...>",
		Short: "Run one chat command locally and print the replies",
		Example: `  archivebot dispatch --nick alice '!status'
  archivebot dispatch --nick alice '!a https://www.youtube.com/playlist?list=PL5AC656794EE191C1'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, strings.Join(args, " "), sender)
		},
	}
	cmd.Flags().StringVar(&sender.Nick, "nick", "operator", "nick the command is issued as")
	cmd.Flags().StringVar(&sender.User, "user", "operator", "ident of the sender")
	cmd.Flags().StringVar(&sender.Host, "host", "localhost", "host of the sender")
	return cmd
}

func runDispatch(cmd *cobra.Command, text string, sender dispatch.Sender) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := app.Close(ctx); cerr != nil {
			e.logger.Warn("application close failed", zap.Error(cerr))
		}
	}()

	results := app.Handle(cmd.Context(), text, sender)
	if len(results) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no reply: not a recognized command")
		return nil
	}
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), r.Text)
	}
	return nil
}
