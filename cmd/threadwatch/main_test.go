package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cpunion/threadwatch/pkg/config"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/types"
)

func TestWatchQuitKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchQuitKey(strings.NewReader("hello\n Q \nignored\n"), cancel)
	if ctx.Err() == nil {
		t.Fatal("a q line should cancel")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	watchQuitKey(strings.NewReader("quit\n"), cancel2)
	if ctx2.Err() != nil {
		t.Fatal("only a bare q line cancels")
	}
}

func TestSeedPostsOldestFirst(t *testing.T) {
	m := forum.NewMemory("seed", "replybot", t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.AddPost(types.Post{ID: "b", CreatedAt: base.Add(time.Minute)})
	m.AddPost(types.Post{ID: "a", CreatedAt: base.Add(time.Minute)})
	m.AddPost(types.Post{ID: "c", CreatedAt: base})

	posts := seedPosts(m)
	if len(posts) != 3 || posts[0].ID != "c" || posts[1].ID != "a" || posts[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", posts)
	}
}

func TestRootCmdFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	root := newRootCmd(&cfg)
	root.SetArgs([]string{"--communities", "golang,rust", "--reply-delay", "5s", "--completion-policy", "after_op", "check-quota", "--help"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Communities) != 2 || cfg.Communities[0] != "golang" || cfg.ReplyDelay != 5*time.Second || cfg.CompletionPolicy != "after_op" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}
