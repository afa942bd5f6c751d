package llm

import (
	"context"
	"testing"
)

func TestCannedCycles(t *testing.T) {
	c := NewCanned("a", "b")
	var got []string
	for range 3 {
		text, err := c.Complete(context.Background(), Request{})
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, text)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("unexpected sequence %v", got)
	}
}

func TestCannedHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewCanned().Complete(ctx, Request{}); err == nil {
		t.Fatal("expected error after cancel")
	}
}
