// Package types defines the forum items threadwatch observes and replies to.
package types

import (
	"strings"
	"time"
)

// ItemKind distinguishes posts from comments.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// Post is a top-level submission in a community.
type Post struct {
	ID        string    `json:"id"`
	Community string    `json:"community"`
	Author    string    `json:"author,omitempty"` // Empty for deleted accounts
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Permalink string    `json:"permalink,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Text returns the content matched against keywords and used as the OP prompt.
func (p Post) Text() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Body
}

// Ref returns the reply target for the post.
func (p Post) Ref() ItemRef {
	return ItemRef{Kind: KindPost, ID: p.ID}
}

// Comment is a reply attached to a post or to another comment.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  string    `json:"parent_id"` // Post ID for top-level comments
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	Permalink string    `json:"permalink,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsTopLevel reports whether the comment answers the post directly.
func (c Comment) IsTopLevel() bool {
	return c.ParentID == "" || c.ParentID == c.PostID
}

// Ref returns the reply target for the comment.
func (c Comment) Ref() ItemRef {
	return ItemRef{Kind: KindComment, ID: c.ID}
}

// ItemRef names an item a reply can be posted under.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

func (r ItemRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// SameUser compares forum usernames case-insensitively.
func SameUser(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// IsStale reports whether an item created at createdAt is older than maxAge at now.
// Zero timestamps and non-positive ages never count as stale.
func IsStale(createdAt, now time.Time, maxAge time.Duration) bool {
	if createdAt.IsZero() || maxAge <= 0 {
		return false
	}
	return now.Sub(createdAt) > maxAge
}
