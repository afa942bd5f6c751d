// Package config loads bot settings from .env, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cpunion/threadwatch/pkg/dispatcher"
	"github.com/cpunion/threadwatch/pkg/executor"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/llm"
	"github.com/cpunion/threadwatch/pkg/scheduler"
)

var (
	DefaultCommunities = []string{"CryptoMoonShots", "altcoin", "CryptoMarkets", "NFTsMarketplace", "NFT", "solana", "SolanaNFT"}
	DefaultKeywords    = []string{"altcoin", "shitcoin", "nft", "new coin", "moonshot", "solana", "sol"}
)

// Config holds every tunable of the bot.
type Config struct {
	Communities         []string
	Keywords            []string
	ReplyDelay          time.Duration
	MaxPostAge          time.Duration
	PollInterval        time.Duration
	ErrorCooldown       time.Duration
	CommentScanInterval time.Duration
	StatusInterval      time.Duration
	CompletionPolicy    string
	MaxAttempts         int
	RetryCooldown       time.Duration
	ThreadTTL           time.Duration
	TopLevelOnly        bool
	SkipParticipated    bool

	LogFile     string
	ActivityLog string
	Verbose     bool

	Reddit forum.RedditConfig

	GoogleAPIKey    string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Persona         string
	TopicHint       string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Communities:         append([]string(nil), DefaultCommunities...),
		Keywords:            append([]string(nil), DefaultKeywords...),
		ReplyDelay:          121 * time.Second,
		MaxPostAge:          time.Hour,
		PollInterval:        100 * time.Millisecond,
		ErrorCooldown:       30 * time.Second,
		CommentScanInterval: 10 * time.Second,
		StatusInterval:      5 * time.Minute,
		CompletionPolicy:    string(scheduler.PolicyAfterComment),
		MaxAttempts:         3,
		RetryCooldown:       30 * time.Second,
		ThreadTTL:           6 * time.Hour,
		TopLevelOnly:        true,
		SkipParticipated:    true,
		LogFile:             "./logs/bot.log",
		ActivityLog:         "./logs/activity.jsonl",
		Model:               "gemini-3-flash-preview",
		MaxOutputTokens:     40,
		Temperature:         0.7,
		Persona:             executor.DefaultPersona,
	}
}

// Load reads .env (if present) and the environment over the defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	e := env{get: getenv}

	cfg.Communities = e.list("THREADWATCH_COMMUNITIES", cfg.Communities)
	cfg.Keywords = e.list("THREADWATCH_KEYWORDS", cfg.Keywords)
	cfg.ReplyDelay = e.duration("THREADWATCH_REPLY_DELAY", cfg.ReplyDelay)
	cfg.MaxPostAge = e.duration("THREADWATCH_MAX_POST_AGE", cfg.MaxPostAge)
	cfg.PollInterval = e.duration("THREADWATCH_POLL_INTERVAL", cfg.PollInterval)
	cfg.ErrorCooldown = e.duration("THREADWATCH_ERROR_COOLDOWN", cfg.ErrorCooldown)
	cfg.CommentScanInterval = e.duration("THREADWATCH_COMMENT_SCAN_INTERVAL", cfg.CommentScanInterval)
	cfg.StatusInterval = e.duration("THREADWATCH_STATUS_INTERVAL", cfg.StatusInterval)
	cfg.CompletionPolicy = e.str("THREADWATCH_COMPLETION_POLICY", cfg.CompletionPolicy)
	cfg.MaxAttempts = e.integer("THREADWATCH_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.RetryCooldown = e.duration("THREADWATCH_RETRY_COOLDOWN", cfg.RetryCooldown)
	cfg.ThreadTTL = e.duration("THREADWATCH_THREAD_TTL", cfg.ThreadTTL)
	cfg.TopLevelOnly = e.boolean("THREADWATCH_TOP_LEVEL_ONLY", cfg.TopLevelOnly)
	cfg.SkipParticipated = e.boolean("THREADWATCH_SKIP_PARTICIPATED", cfg.SkipParticipated)
	cfg.LogFile = e.str("THREADWATCH_LOG_FILE", cfg.LogFile)
	cfg.ActivityLog = e.str("THREADWATCH_ACTIVITY_LOG", cfg.ActivityLog)
	cfg.Verbose = e.boolean("THREADWATCH_VERBOSE", cfg.Verbose)

	cfg.Reddit = forum.RedditConfig{
		ClientID:     getenv("REDDIT_CLIENT_ID"),
		ClientSecret: getenv("REDDIT_CLIENT_SECRET"),
		UserAgent:    getenv("REDDIT_USER_AGENT"),
		Username:     getenv("REDDIT_USERNAME"),
		Password:     getenv("REDDIT_PASSWORD"),
	}

	cfg.GoogleAPIKey = getenv("GOOGLE_API_KEY")
	cfg.Model = e.str("GOOGLE_MODEL", cfg.Model)
	cfg.MaxOutputTokens = e.integer("THREADWATCH_MAX_TOKENS", cfg.MaxOutputTokens)
	cfg.Temperature = e.float("THREADWATCH_TEMPERATURE", cfg.Temperature)
	cfg.Persona = e.str("THREADWATCH_PERSONA", cfg.Persona)
	cfg.TopicHint = e.str("THREADWATCH_TOPIC_HINT", cfg.TopicHint)

	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate checks settings every command needs. Credentials are checked by
// the commands that use them.
func (c Config) Validate() error {
	var errs []error
	if len(c.Communities) == 0 {
		errs = append(errs, errors.New("at least one community is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	for name, d := range map[string]time.Duration{
		"reply delay":           c.ReplyDelay,
		"max post age":          c.MaxPostAge,
		"error cooldown":        c.ErrorCooldown,
		"comment scan interval": c.CommentScanInterval,
		"retry cooldown":        c.RetryCooldown,
		"thread ttl":            c.ThreadTTL,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative, got %d", c.MaxAttempts))
	}
	if _, err := scheduler.ParsePolicy(c.CompletionPolicy); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Scheduler returns the scheduler settings.
func (c Config) Scheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.Keywords = c.Keywords
	cfg.ReplyDelay = c.ReplyDelay
	cfg.MaxItemAge = c.MaxPostAge
	cfg.CompletionPolicy = scheduler.CompletionPolicy(c.CompletionPolicy)
	cfg.MaxAttempts = c.MaxAttempts
	cfg.RetryCooldown = c.RetryCooldown
	cfg.CommentScanInterval = c.CommentScanInterval
	cfg.TopLevelOnly = c.TopLevelOnly
	cfg.SkipParticipatedThreads = c.SkipParticipated
	cfg.ThreadTTL = c.ThreadTTL
	return cfg
}

// Dispatcher returns the main loop settings.
func (c Config) Dispatcher() dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	cfg.Communities = c.Communities
	cfg.PollInterval = c.PollInterval
	cfg.ErrorCooldown = c.ErrorCooldown
	cfg.StatusInterval = c.StatusInterval
	return cfg
}

// Executor returns the reply generation settings.
func (c Config) Executor() executor.Config {
	cfg := executor.DefaultConfig()
	cfg.Persona = c.Persona
	cfg.TopicHint = c.TopicHint
	cfg.MaxOutputTokens = c.MaxOutputTokens
	cfg.Temperature = c.Temperature
	return cfg
}

// Gemini returns the completion provider settings.
func (c Config) Gemini() llm.GeminiConfig {
	return llm.GeminiConfig{APIKey: c.GoogleAPIKey, Model: c.Model}
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return fallback
}

// list splits a comma list. A variable set to "" keeps the fallback; a
// variable set to "," or whitespace-only entries yields an empty list.
func (e *env) list(key string, fallback []string) []string {
	raw := e.get(key)
	if raw == "" {
		return fallback
	}
	return SplitList(raw)
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	d, err := ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) integer(key string, fallback int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *env) boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// SplitList splits a comma separated list, dropping blank entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDuration accepts Go durations ("2m1s") and plain seconds ("121").
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
