// Package forum defines the gateway threadwatch uses to read from and post
// to a discussion forum, with in-memory and Reddit implementations.
package forum

import (
	"context"

	"github.com/cpunion/threadwatch/pkg/types"
)

// Gateway is the set of forum capabilities the bot consumes.
// Every method may fail with a *Error.
type Gateway interface {
	// StreamNewPosts yields posts created after the stream opened. Posts and
	// errors arrive on the returned channels until stop is called or ctx ends.
	StreamNewPosts(ctx context.Context, communities []string) (posts <-chan types.Post, errs <-chan error, stop func())

	FetchPost(ctx context.Context, id string) (types.Post, error)

	// FetchComments returns every loaded comment of a post, depth-first in
	// thread order, with "load more" placeholders resolved.
	FetchComments(ctx context.Context, postID string) ([]types.Comment, error)

	// PostReply posts text under target and returns the new comment id.
	PostReply(ctx context.Context, target types.ItemRef, text string) (string, error)

	ListModerators(ctx context.Context, community string) ([]string, error)

	CurrentUser(ctx context.Context) (string, error)
}

// RepliesTo filters comments down to direct replies to target.
func RepliesTo(comments []types.Comment, target types.ItemRef) []types.Comment {
	var out []types.Comment
	for _, c := range comments {
		switch target.Kind {
		case types.KindPost:
			if c.PostID == target.ID && c.IsTopLevel() {
				out = append(out, c)
			}
		case types.KindComment:
			if c.ParentID == target.ID {
				out = append(out, c)
			}
		}
	}
	return out
}
