package main

import (
	"github.com/spf13/cobra"

	"github.com/cpunion/threadwatch/pkg/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "threadwatch",
		Short: "Watch communities and reply to new threads after a delay",
		Long: `threadwatch streams new posts from a set of communities, replies to the
original poster after a fixed delay, then keeps watching the thread and
answers the first eligible comments the same way.

Settings come from .env and THREADWATCH_* variables; flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&cfg.Communities, "communities", cfg.Communities, "communities to monitor")
	flags.StringSliceVar(&cfg.Keywords, "keywords", cfg.Keywords, "keywords that qualify a post (empty matches all)")
	flags.DurationVar(&cfg.ReplyDelay, "reply-delay", cfg.ReplyDelay, "delay before each reply")
	flags.DurationVar(&cfg.MaxPostAge, "max-age", cfg.MaxPostAge, "ignore posts and comments older than this")
	flags.StringVar(&cfg.CompletionPolicy, "completion-policy", cfg.CompletionPolicy, "when a thread is done: after_comment or after_op")
	flags.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "failed replies before giving up (0 retries forever)")
	flags.DurationVar(&cfg.ThreadTTL, "thread-ttl", cfg.ThreadTTL, "stop watching threads after this long (0 disables)")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "operator log file")
	flags.StringVar(&cfg.ActivityLog, "activity-log", cfg.ActivityLog, "JSONL activity journal")
	flags.StringVar(&cfg.Model, "model", cfg.Model, "Gemini model")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "log debug lines")

	root.AddCommand(newRunCmd(cfg), newSimulateCmd(cfg), newCheckQuotaCmd(cfg))
	return root
}
