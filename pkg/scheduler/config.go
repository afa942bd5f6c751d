package scheduler

import (
	"fmt"
	"time"
)

// CompletionPolicy decides when a thread is finished and evicted.
type CompletionPolicy string

const (
	// PolicyAfterComment keeps a thread until the OP reply and at least
	// CommentRepliesBeforeComplete comment replies have succeeded.
	PolicyAfterComment CompletionPolicy = "after_comment"
	// PolicyAfterOP evicts a thread as soon as the OP reply succeeds;
	// comments are never engaged.
	PolicyAfterOP CompletionPolicy = "after_op"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (CompletionPolicy, error) {
	switch p := CompletionPolicy(s); p {
	case PolicyAfterComment, PolicyAfterOP:
		return p, nil
	}
	return "", fmt.Errorf("unknown completion policy %q (want %s or %s)", s, PolicyAfterComment, PolicyAfterOP)
}

// Config tunes the scheduler.
type Config struct {
	Keywords                     []string
	ReplyDelay                   time.Duration
	MaxItemAge                   time.Duration
	CompletionPolicy             CompletionPolicy
	CommentRepliesBeforeComplete int
	MaxAttempts                  int // Failed executions before giving up; 0 retries forever
	RetryCooldown                time.Duration
	CommentScanInterval          time.Duration
	TopLevelOnly                 bool
	SkipParticipatedThreads      bool          // Ignore posts the bot already commented in
	ThreadTTL                    time.Duration // 0 keeps threads until complete
	RetiredLimit                 int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ReplyDelay:                   121 * time.Second,
		MaxItemAge:                   time.Hour,
		CompletionPolicy:             PolicyAfterComment,
		CommentRepliesBeforeComplete: 1,
		MaxAttempts:                  3,
		RetryCooldown:                30 * time.Second,
		CommentScanInterval:          10 * time.Second,
		TopLevelOnly:                 true,
		SkipParticipatedThreads:      true,
		ThreadTTL:                    6 * time.Hour,
	}
}
