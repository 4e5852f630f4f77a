package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/youtube-archive-bot/internal/descriptor"
	"github.com/JakeFAU/youtube-archive-bot/internal/server"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

func newFolderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folder",
		Short: "Print the archive folder for each URL read from stdin",
		Long: `Reads one YouTube URL per line from stdin, canonicalizes it the same
way !a does, and prints the resulting folder. Stops at the first URL that
cannot be resolved.`,
		Args: cobra.NoArgs,
		RunE: runFolder,
	}
}

func runFolder(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	runner := tools.NewExecRunner(e.cfg.CommandTimeout(), e.logger)
	canonicalizer := descriptor.NewCanonicalizer(server.NewFetcher(e.cfg, runner, e.logger), e.logger)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		d, err := descriptor.Classify(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		canonical, err := canonicalizer.Canonicalize(cmd.Context(), d)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), canonical.Folder)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
