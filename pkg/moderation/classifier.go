// Package moderation decides whose activity the bot must leave alone.
package moderation

import (
	"context"
	"strings"
	"sync"

	"github.com/cpunion/threadwatch/pkg/botlog"
)

// DefaultSystemAccounts are automated or official accounts never replied to.
var DefaultSystemAccounts = []string{"automoderator", "coinbasesupport", "solana-modteam"}

// warnLimit bounds how many threads keep per-account warning memory.
const warnLimit = 1000

var botPatterns = []string{"bot", "auto", "_bot", "-bot", "robot"}

// ModeratorLister fetches the moderators of a community.
type ModeratorLister interface {
	ListModerators(ctx context.Context, community string) ([]string, error)
}

// Classifier owns the per-community moderator cache.
type Classifier struct {
	lister ModeratorLister
	system map[string]bool
	log    *botlog.Logger

	mu     sync.Mutex
	cache  map[string]*modList
	warned map[string]map[string]bool // thread -> accounts already warned about
}

type modList struct {
	mu     sync.Mutex
	loaded bool
	names  map[string]bool
}

// NewClassifier creates a classifier. A nil systemAccounts uses DefaultSystemAccounts.
func NewClassifier(lister ModeratorLister, systemAccounts []string, log *botlog.Logger) *Classifier {
	if systemAccounts == nil {
		systemAccounts = DefaultSystemAccounts
	}
	system := make(map[string]bool, len(systemAccounts))
	for _, name := range systemAccounts {
		system[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Classifier{
		lister: lister,
		system: system,
		log:    log,
		cache:  make(map[string]*modList),
		warned: make(map[string]map[string]bool),
	}
}

// IsModerator reports whether author is a system account or a moderator of
// community. When the moderator list cannot be fetched it answers true.
func (c *Classifier) IsModerator(ctx context.Context, author, community, threadID string) bool {
	skip, err := c.CheckModerator(ctx, author, community, threadID)
	return skip || err != nil
}

// CheckModerator is IsModerator with the lookup error surfaced. A failed
// lookup is not cached, so the next call fetches the list again.
func (c *Classifier) CheckModerator(ctx context.Context, author, community, threadID string) (bool, error) {
	if author == "" {
		return false, nil
	}
	name := strings.ToLower(author)

	if c.system[name] {
		c.warnOnce(threadID, name, "%s is a system account - skipping", author)
		return true, nil
	}

	mods, err := c.moderators(ctx, community)
	if err != nil {
		c.log.Errorf("Error checking moderator status of %s in r/%s: %v", author, community, err)
		return false, err
	}
	if mods[name] {
		c.warnOnce(threadID, name, "%s is a moderator - skipping", author)
		return true, nil
	}
	return false, nil
}

// IsLikelyBot reports whether a username looks automated. Advisory only.
func IsLikelyBot(username string) bool {
	lower := strings.ToLower(username)
	for _, p := range botPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (c *Classifier) moderators(ctx context.Context, community string) (map[string]bool, error) {
	key := strings.ToLower(community)

	c.mu.Lock()
	entry, ok := c.cache[key]
	if !ok {
		entry = &modList{}
		c.cache[key] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.loaded {
		return entry.names, nil
	}

	names, err := c.lister.ListModerators(ctx, community)
	if err != nil {
		return nil, err
	}
	entry.names = make(map[string]bool, len(names))
	for _, n := range names {
		entry.names[strings.ToLower(n)] = true
	}
	entry.loaded = true
	return entry.names, nil
}

func (c *Classifier) warnOnce(threadID, account, format string, args ...any) {
	c.mu.Lock()
	if len(c.warned) > warnLimit {
		c.warned = make(map[string]map[string]bool)
	}
	seen, ok := c.warned[threadID]
	if !ok {
		seen = make(map[string]bool)
		c.warned[threadID] = seen
	}
	first := !seen[account]
	seen[account] = true
	c.mu.Unlock()

	if first {
		c.log.Warnf("WARNING: "+format, args...)
	}
}
