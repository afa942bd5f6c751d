// Package executor generates a reply with the completion service and posts
// it through the forum gateway.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"

	"github.com/cpunion/threadwatch/pkg/botlog"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/llm"
	"github.com/cpunion/threadwatch/pkg/types"
)

// ErrAlreadyReplied means the bot's reply is already on the forum. It is a
// guard, not a failure: callers mark the target done without posting.
var ErrAlreadyReplied = errors.New("bot has already replied to this item")

// Task identifies what to reply to.
type Task struct {
	Post    types.Post
	Comment *types.Comment // Nil for the OP reply
}

// Target returns the item the reply is posted under.
func (t Task) Target() types.ItemRef {
	if t.Comment != nil {
		return t.Comment.Ref()
	}
	return t.Post.Ref()
}

// Config tunes reply generation.
type Config struct {
	Persona           string
	TopicHint         string
	MaxOutputTokens   int
	Temperature       float64
	MaxAttempts       int           // Completion attempts when rate limited
	RateLimitBackoff  time.Duration // Linear backoff factor between attempts
	CompletionTimeout time.Duration // Per completion call
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Persona:           DefaultPersona,
		MaxOutputTokens:   40,
		Temperature:       0.7,
		MaxAttempts:       3,
		RateLimitBackoff:  60 * time.Second,
		CompletionTimeout: 60 * time.Second,
	}
}

// Executor performs replies on behalf of botName.
type Executor struct {
	gateway forum.Gateway
	llm     llm.Completer
	botName string
	cfg     Config
	log     *botlog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor. Zero config fields take their defaults.
func New(gateway forum.Gateway, completer llm.Completer, botName string, cfg Config, log *botlog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Persona == "" {
		cfg.Persona = def.Persona
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RateLimitBackoff < 0 {
		cfg.RateLimitBackoff = def.RateLimitBackoff
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	return &Executor{
		gateway: gateway,
		llm:     completer,
		botName: botName,
		cfg:     cfg,
		log:     log,
		sleep:   sleepContext,
	}
}

// SetSleep replaces the backoff sleeper. Used by tests.
func (e *Executor) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
}

// Execute replies to the task's target and returns the new reply id.
func (e *Executor) Execute(ctx context.Context, task Task) (string, error) {
	target := task.Target()

	replied, err := e.alreadyReplied(ctx, task.Post.ID, target)
	if err != nil {
		return "", fmt.Errorf("check reply history: %w", err)
	}
	if replied {
		e.log.Warnf("Bot has already replied to %s - skipping", target)
		return "", ErrAlreadyReplied
	}

	req := llm.Request{
		SystemInstruction: e.cfg.Persona,
		MaxOutputTokens:   e.cfg.MaxOutputTokens,
		Temperature:       e.cfg.Temperature,
	}
	if task.Comment != nil {
		e.log.Infof("Processing reply to u/%s...", task.Comment.Author)
		req.Prompt = buildCommentPrompt(task.Post, *task.Comment, e.cfg.TopicHint)
	} else {
		req.Prompt = buildOPPrompt(task.Post, e.cfg.TopicHint)
	}

	text, err := e.generate(ctx, req, target)
	if err != nil {
		return "", err
	}

	replyID, err := e.gateway.PostReply(ctx, target, text)
	if err != nil {
		return "", fmt.Errorf("post reply: %w", err)
	}
	return replyID, nil
}

// alreadyReplied looks for a reply by the bot directly under target.
func (e *Executor) alreadyReplied(ctx context.Context, postID string, target types.ItemRef) (bool, error) {
	comments, err := e.gateway.FetchComments(ctx, postID)
	if err != nil {
		return false, err
	}
	for _, c := range forum.RepliesTo(comments, target) {
		if types.SameUser(c.Author, e.botName) {
			return true, nil
		}
	}
	return false, nil
}

// generate calls the completion service, retrying only rate-limit errors
// with linearly increasing backoff.
func (e *Executor) generate(ctx context.Context, req llm.Request, target types.ItemRef) (string, error) {
	var text string
	var lastErr error
	attempts := uint(e.cfg.MaxAttempts)

	err := retry.Retry(
		func(attempt uint) error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
			defer cancel()
			out, err := e.llm.Complete(callCtx, req)
			if err != nil {
				lastErr = err
				return err
			}
			text = out
			return nil
		},
		strategy.Limit(attempts),
		func(attempt uint) bool {
			return attempt == 0 || (llm.IsRateLimited(lastErr) && ctx.Err() == nil)
		},
		e.backoffStrategy(ctx, backoff.Linear(e.cfg.RateLimitBackoff), attempts, target),
	)
	if err == nil {
		return text, nil
	}
	if llm.IsRateLimited(err) {
		return "", fmt.Errorf("generate reply for %s: gave up after %d attempts: %w", target, e.cfg.MaxAttempts, err)
	}
	return "", fmt.Errorf("generate reply for %s: %w", target, err)
}

func (e *Executor) backoffStrategy(ctx context.Context, algorithm backoff.Algorithm, limit uint, target types.ItemRef) strategy.Strategy {
	return func(attempt uint) bool {
		if attempt == 0 {
			return true
		}
		wait := algorithm(attempt)
		e.log.Warnf("Rate limited generating reply for %s - retrying in %s (attempt %d/%d)",
			target, botlog.FormatRemaining(wait), attempt+1, limit)
		return e.sleep(ctx, wait) == nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
