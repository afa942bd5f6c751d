package config

import (
	"strings"
	"testing"
	"time"

	"github.com/cpunion/threadwatch/pkg/scheduler"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReplyDelay != 121*time.Second || cfg.MaxPostAge != time.Hour || cfg.PollInterval != 100*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", cfg)
	}
	if len(cfg.Communities) != 7 || len(cfg.Keywords) != 7 {
		t.Fatalf("unexpected lists: %v %v", cfg.Communities, cfg.Keywords)
	}
	if cfg.CompletionPolicy != "after_comment" || cfg.MaxAttempts != 3 || !cfg.TopLevelOnly || !cfg.SkipParticipated {
		t.Fatalf("unexpected policy settings: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"THREADWATCH_COMMUNITIES":       " golang , rust ,,",
		"THREADWATCH_KEYWORDS":          ",",
		"THREADWATCH_REPLY_DELAY":       "5",
		"THREADWATCH_THREAD_TTL":        "90m",
		"THREADWATCH_COMPLETION_POLICY": "after_op",
		"THREADWATCH_MAX_ATTEMPTS":      "0",
		"THREADWATCH_TOP_LEVEL_ONLY":    "false",
		"THREADWATCH_SKIP_PARTICIPATED": "false",
		"THREADWATCH_TEMPERATURE":       "0.2",
		"REDDIT_USERNAME":               "replybot",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Communities) != 2 || cfg.Communities[0] != "golang" || cfg.Communities[1] != "rust" {
		t.Errorf("communities: %v", cfg.Communities)
	}
	if len(cfg.Keywords) != 0 {
		t.Errorf("a blank keyword list should match everything, got %v", cfg.Keywords)
	}
	if cfg.ReplyDelay != 5*time.Second || cfg.ThreadTTL != 90*time.Minute {
		t.Errorf("durations: %s %s", cfg.ReplyDelay, cfg.ThreadTTL)
	}
	if cfg.MaxAttempts != 0 || cfg.TopLevelOnly || cfg.Temperature != 0.2 || cfg.Reddit.Username != "replybot" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	sc := cfg.Scheduler()
	if sc.CompletionPolicy != scheduler.PolicyAfterOP || sc.ReplyDelay != 5*time.Second || sc.TopLevelOnly || sc.SkipParticipatedThreads {
		t.Errorf("scheduler config: %+v", sc)
	}
}

func TestFromEnv_ReportsBadValues(t *testing.T) {
	_, err := FromEnv(lookup(map[string]string{
		"THREADWATCH_REPLY_DELAY":  "soon",
		"THREADWATCH_MAX_ATTEMPTS": "many",
	}))
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"THREADWATCH_REPLY_DELAY", "THREADWATCH_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should name %s: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no communities", func(c *Config) { c.Communities = nil }, "community"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"negative delay", func(c *Config) { c.ReplyDelay = -time.Second }, "reply delay"},
		{"bad policy", func(c *Config) { c.CompletionPolicy = "never" }, "completion policy"},
		{"negative attempts", func(c *Config) { c.MaxAttempts = -1 }, "max attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"121":   121 * time.Second,
		"0.5":   500 * time.Millisecond,
		"2m1s":  121 * time.Second,
		"100ms": 100 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Errorf("ParseDuration(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
}
