package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cpunion/threadwatch/pkg/config"
	"github.com/cpunion/threadwatch/pkg/llm"
)

func newCheckQuotaCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check-quota",
		Short: "Send a one-token probe to the completion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.GoogleAPIKey == "" {
				return fmt.Errorf("GOOGLE_API_KEY not set")
			}
			ctx := cmd.Context()
			provider, err := llm.NewGeminiProvider(ctx, cfg.Gemini())
			if err != nil {
				return fmt.Errorf("create Gemini model (%s): %w", cfg.Model, err)
			}

			fmt.Printf("Checking quota for %s...\n", provider.Name())
			if err := llm.CheckQuota(ctx, provider); err != nil {
				if llm.IsRateLimited(err) {
					color.Yellow("Rate limited: %v", err)
				} else {
					color.Red("Error: %v", err)
				}
				return err
			}
			color.Green("OK: the model is reachable and has quota")
			return nil
		},
	}
}
