package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cpunion/threadwatch/pkg/config"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/llm"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	var quitKey bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor Reddit and reply with Gemini",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context(), quitKey)
			defer stop()
			return runLive(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&quitKey, "quit-key", false, "stop when a line containing q is read from stdin")
	return cmd
}

func runLive(ctx context.Context, cfg *config.Config) error {
	log, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	if err := cfg.Reddit.Validate(); err != nil {
		return err
	}
	if cfg.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY not set")
	}

	reddit, err := forum.NewReddit(cfg.Reddit)
	if err != nil {
		return fmt.Errorf("create Reddit client: %w", err)
	}
	name, err := reddit.CurrentUser(ctx)
	if err != nil {
		log.Errorf("Failed to authenticate with Reddit: %v", err)
		return err
	}

	completer, err := llm.NewGeminiProvider(ctx, cfg.Gemini())
	if err != nil {
		return fmt.Errorf("create Gemini model (%s): %w", cfg.Model, err)
	}

	b, err := newBot(cfg, reddit, completer, name, log)
	if err != nil {
		return err
	}
	return b.run(ctx, cfg, completer)
}
