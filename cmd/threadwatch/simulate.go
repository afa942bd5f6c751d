package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpunion/threadwatch/pkg/botlog"
	"github.com/cpunion/threadwatch/pkg/config"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/llm"
	"github.com/cpunion/threadwatch/pkg/types"
)

type simulateOptions struct {
	dataPath     string
	outPath      string
	botName      string
	interval     time.Duration
	commentDelay time.Duration
	canned       []string
	useModel     bool
	quitKey      bool
}

func newSimulateCmd(cfg *config.Config) *cobra.Command {
	opts := simulateOptions{
		dataPath: "./data/simulate",
		botName:  "replybot",
		interval: 5 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a seeded forum through the bot without touching Reddit",
		Long: `simulate loads posts, comments and moderators from <data>/forum.json and
publishes them one by one to an in-memory forum the bot is watching. Replies
are written to the in-memory forum and saved to <out>/forum.json on exit.
The run ends when every seeded thread is finished or on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context(), opts.quitKey)
			defer stop()
			return runSimulation(ctx, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dataPath, "data", opts.dataPath, "directory holding the seed forum.json")
	flags.StringVar(&opts.outPath, "out", "", "directory to save the resulting forum (default <data>/result)")
	flags.StringVar(&opts.botName, "bot", opts.botName, "username the bot posts as")
	flags.DurationVar(&opts.interval, "interval", opts.interval, "time between seeded posts")
	flags.DurationVar(&opts.commentDelay, "comment-delay", 0, "time after a post before its comments appear (default reply delay + 10s)")
	flags.StringSliceVar(&opts.canned, "canned", nil, "canned replies used instead of a model")
	flags.BoolVar(&opts.useModel, "use-model", false, "generate replies with Gemini (needs GOOGLE_API_KEY)")
	flags.BoolVar(&opts.quitKey, "quit-key", false, "stop when a line containing q is read from stdin")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, opts simulateOptions) error {
	log, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	seed := forum.NewMemory("seed", opts.botName, opts.dataPath)
	if err := seed.Load(); err != nil {
		return fmt.Errorf("load seed forum: %w", err)
	}
	posts := seedPosts(seed)
	if len(posts) == 0 {
		return fmt.Errorf("no posts in %s", filepath.Join(opts.dataPath, "forum.json"))
	}

	if opts.outPath == "" {
		opts.outPath = filepath.Join(opts.dataPath, "result")
	}
	if opts.commentDelay <= 0 {
		opts.commentDelay = cfg.ReplyDelay + 10*time.Second
	}

	live := forum.NewMemory("simulation", opts.botName, opts.outPath)
	for community, mods := range seed.Moderators {
		live.SetModerators(community, mods...)
	}

	var completer llm.Completer = llm.NewCanned(opts.canned...)
	if opts.useModel {
		if cfg.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY not set")
		}
		completer, err = llm.NewGeminiProvider(ctx, cfg.Gemini())
		if err != nil {
			return fmt.Errorf("create Gemini model (%s): %w", cfg.Model, err)
		}
	}

	b, err := newBot(cfg, live, completer, opts.botName, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		feedSeed(ctx, live, seed, posts, opts, log)
		waitIdle(ctx, b, cfg.CommentScanInterval+time.Second)
		cancel()
	}()

	runErr := b.run(ctx, cfg, completer)

	if err := live.Save(); err != nil {
		log.Warnf("Failed to save simulation forum: %v", err)
	}
	replies := live.Replies()
	log.Separator()
	log.Infof("Simulation finished: %d posts published, %d replies posted", len(posts), len(replies))
	for _, r := range replies {
		log.Infof("  %s: %s", r.Target, r.Text)
	}
	log.Infof("Forum saved to %s", filepath.Join(opts.outPath, "forum.json"))
	return runErr
}

// seedPosts returns the seeded posts oldest first.
func seedPosts(seed *forum.Memory) []types.Post {
	posts := make([]types.Post, 0, len(seed.Posts))
	for _, p := range seed.Posts {
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
	return posts
}

// feedSeed publishes each post as new and its comments commentDelay later.
func feedSeed(ctx context.Context, live, seed *forum.Memory, posts []types.Post, opts simulateOptions, log *botlog.Logger) {
	// Let the dispatcher open its stream first.
	if !pause(ctx, opts.interval) {
		return
	}
	for i, p := range posts {
		p.CreatedAt = time.Now()
		live.AddPost(p)
		log.Debugf("Published seed post %d/%d: %s", i+1, len(posts), p.Title)

		comments := seed.Comments[p.ID]
		time.AfterFunc(opts.commentDelay, func() {
			if ctx.Err() != nil {
				return
			}
			for _, c := range comments {
				cc := *c
				cc.CreatedAt = time.Now()
				live.AddComment(cc)
			}
		})

		if !pause(ctx, opts.interval) {
			return
		}
	}
	// Comments of the last post still need to appear.
	pause(ctx, opts.commentDelay)
}

// waitIdle returns once no reply is pending. Checks are spaced wider than a
// comment scan so newly visible comments are picked up first.
func waitIdle(ctx context.Context, b *bot, every time.Duration) {
	for pause(ctx, every) {
		st := b.disp.Snapshot().Store
		if st.Threads == 0 || st.PendingOP+st.PendingComments+st.InFlight == 0 {
			return
		}
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
