package llm

import (
	"context"
	"sync"
)

// Canned cycles through fixed replies. It stands in for a model in
// simulations and offline runs.
type Canned struct {
	mu      sync.Mutex
	replies []string
	next    int
}

// NewCanned creates a canned completer. With no replies it uses a default line.
func NewCanned(replies ...string) *Canned {
	if len(replies) == 0 {
		replies = []string{"interesting, keeping an eye on this one"}
	}
	return &Canned{replies: replies}
}

func (c *Canned) Name() string { return "canned" }

func (c *Canned) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.replies[c.next%len(c.replies)]
	c.next++
	return text, nil
}
