package forum

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cpunion/threadwatch/pkg/types"
)

func TestMemory_StreamSkipsExistingAndFiltersCommunity(t *testing.T) {
	m := NewMemory("test", "replybot", t.TempDir())
	m.AddPost(types.Post{ID: "old", Community: "solana", Title: "before stream"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	posts, _, stop := m.StreamNewPosts(ctx, []string{"Solana"})
	defer stop()

	m.AddPost(types.Post{ID: "other", Community: "gardening", Title: "wrong community"})
	m.AddPost(types.Post{ID: "new", Community: "solana", Title: "after stream"})

	select {
	case p := <-posts:
		if p.ID != "new" {
			t.Fatalf("expected post new, got %s", p.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed post")
	}
	select {
	case p := <-posts:
		t.Fatalf("unexpected extra post %s", p.ID)
	default:
	}
}

func TestMemory_StopClosesSubscription(t *testing.T) {
	m := NewMemory("test", "replybot", t.TempDir())
	_, _, stop := m.StreamNewPosts(context.Background(), []string{"nft"})
	if m.OpenStreams() != 1 {
		t.Fatalf("expected 1 open stream, got %d", m.OpenStreams())
	}
	stop()
	stop()
	if m.OpenStreams() != 0 {
		t.Fatalf("expected stream to be removed, got %d", m.OpenStreams())
	}
}

func TestMemory_FetchCommentsThreadOrder(t *testing.T) {
	m := NewMemory("test", "replybot", t.TempDir())
	m.AddPost(types.Post{ID: "p1", Community: "nft"})
	m.AddComment(types.Comment{ID: "c1", PostID: "p1", Author: "alice", Body: "first"})
	m.AddComment(types.Comment{ID: "c2", PostID: "p1", Author: "bob", Body: "second"})
	m.AddComment(types.Comment{ID: "c1a", PostID: "p1", ParentID: "c1", Author: "carol", Body: "reply to first"})

	comments, err := m.FetchComments(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FetchComments: %v", err)
	}
	var ids []string
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	want := []string{"c1", "c1a", "c2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestMemory_PostReplyAndRepliesTo(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("test", "replybot", t.TempDir())
	m.AddPost(types.Post{ID: "p1", Community: "nft"})
	m.AddComment(types.Comment{ID: "c1", PostID: "p1", Author: "alice"})

	if _, err := m.PostReply(ctx, types.ItemRef{Kind: types.KindPost, ID: "p1"}, "gm"); err != nil {
		t.Fatalf("reply to post: %v", err)
	}
	if _, err := m.PostReply(ctx, types.ItemRef{Kind: types.KindComment, ID: "c1"}, "agreed"); err != nil {
		t.Fatalf("reply to comment: %v", err)
	}
	if _, err := m.PostReply(ctx, types.ItemRef{Kind: types.KindComment, ID: "missing"}, "x"); err == nil {
		t.Fatal("expected error replying to unknown comment")
	}

	comments, _ := m.FetchComments(ctx, "p1")
	toPost := RepliesTo(comments, types.ItemRef{Kind: types.KindPost, ID: "p1"})
	toComment := RepliesTo(comments, types.ItemRef{Kind: types.KindComment, ID: "c1"})
	if len(toPost) != 2 { // alice + bot
		t.Errorf("expected 2 top-level comments, got %d", len(toPost))
	}
	if len(toComment) != 1 || toComment[0].Author != "replybot" {
		t.Errorf("expected bot reply under c1, got %+v", toComment)
	}
	if len(m.Replies()) != 2 {
		t.Errorf("expected 2 recorded replies, got %d", len(m.Replies()))
	}
}

func TestMemory_FailNext(t *testing.T) {
	m := NewMemory("test", "replybot", t.TempDir())
	m.FailNext("current_user", Fatal("current_user", errors.New("401 unauthorized")))

	if _, err := m.CurrentUser(context.Background()); !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if name, err := m.CurrentUser(context.Background()); err != nil || name != "replybot" {
		t.Fatalf("expected failure to be consumed, got %q, %v", name, err)
	}
	if m.Calls("current_user") != 2 {
		t.Errorf("expected 2 calls, got %d", m.Calls("current_user"))
	}
}

func TestMemory_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sim")
	m := NewMemory("test", "replybot", dir)
	m.AddPost(types.Post{ID: "p1", Community: "NFT", Title: "hello"})
	m.AddComment(types.Comment{ID: "c1", PostID: "p1", Author: "alice"})
	m.SetModerators("NFT", "ModAlice")
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewMemory("", "", dir)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Bot != "replybot" || loaded.Posts["p1"] == nil || len(loaded.Comments["p1"]) != 1 {
		t.Fatalf("unexpected loaded forum: %+v", loaded)
	}
	mods, _ := loaded.ListModerators(context.Background(), "nft")
	if len(mods) != 1 || mods[0] != "ModAlice" {
		t.Fatalf("expected moderators to survive, got %v", mods)
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(Transient("stream", errors.New("timeout"))) {
		t.Error("transient error reported as fatal")
	}
	if !IsFatal(errors.Join(errors.New("ctx"), Fatal("auth", errors.New("bad password")))) {
		t.Error("wrapped fatal error not detected")
	}
	if IsFatal(nil) {
		t.Error("nil reported as fatal")
	}
}
