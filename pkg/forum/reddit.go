package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/cpunion/threadwatch/pkg/types"
)

const (
	postPrefix    = "t3_"
	commentPrefix = "t1_"
	deletedAuthor = "[deleted]"
)

// RedditConfig holds script-app credentials.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Username     string
	Password     string
	StreamEvery  time.Duration // Listing poll interval for the post stream
}

// Validate reports missing credentials.
func (c RedditConfig) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"REDDIT_CLIENT_ID", c.ClientID},
		{"REDDIT_CLIENT_SECRET", c.ClientSecret},
		{"REDDIT_USER_AGENT", c.UserAgent},
		{"REDDIT_USERNAME", c.Username},
		{"REDDIT_PASSWORD", c.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing reddit credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Reddit is the Gateway backed by the Reddit API.
type Reddit struct {
	client      *reddit.Client
	streamEvery time.Duration
}

var _ Gateway = (*Reddit)(nil)

// NewReddit creates an authenticated Reddit gateway.
func NewReddit(cfg RedditConfig) (*Reddit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Fatal("connect", err)
	}
	client, err := reddit.NewClient(reddit.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cfg.Username,
		Password: cfg.Password,
	}, reddit.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return nil, Fatal("connect", err)
	}
	every := cfg.StreamEvery
	if every <= 0 {
		every = 5 * time.Second
	}
	return &Reddit{client: client, streamEvery: every}, nil
}

func (r *Reddit) StreamNewPosts(ctx context.Context, communities []string) (<-chan types.Post, <-chan error, func()) {
	src, srcErrs, srcStop := r.client.Stream.Posts(
		strings.Join(communities, "+"),
		reddit.StreamInterval(r.streamEvery),
		reddit.StreamDiscardInitial,
	)

	posts := make(chan types.Post)
	errs := make(chan error, 1)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			srcStop()
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case p, ok := <-src:
				if !ok {
					return
				}
				if p == nil {
					continue
				}
				select {
				case posts <- convertPost(p):
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case err, ok := <-srcErrs:
				if !ok {
					return
				}
				select {
				case errs <- classify("stream", err):
				default:
				}
			}
		}
	}()
	return posts, errs, stop
}

func (r *Reddit) FetchPost(ctx context.Context, id string) (types.Post, error) {
	pc, _, err := r.client.Post.Get(ctx, strings.TrimPrefix(id, postPrefix))
	if err != nil {
		return types.Post{}, classify("fetch_post", err)
	}
	if pc == nil || pc.Post == nil {
		return types.Post{}, Transient("fetch_post", fmt.Errorf("post %s: %w", id, ErrNotFound))
	}
	return convertPost(pc.Post), nil
}

func (r *Reddit) FetchComments(ctx context.Context, postID string) ([]types.Comment, error) {
	pc, _, err := r.client.Post.Get(ctx, strings.TrimPrefix(postID, postPrefix))
	if err != nil {
		return nil, classify("fetch_comments", err)
	}
	if pc == nil {
		return nil, Transient("fetch_comments", fmt.Errorf("post %s: %w", postID, ErrNotFound))
	}
	if pc.HasMore() {
		if _, err := r.client.Post.LoadMoreComments(ctx, pc); err != nil {
			return nil, classify("fetch_comments", err)
		}
	}

	var out []types.Comment
	var walk func([]*reddit.Comment)
	walk = func(comments []*reddit.Comment) {
		for _, c := range comments {
			if c == nil {
				continue
			}
			out = append(out, convertComment(c))
			walk(c.Replies.Comments)
		}
	}
	walk(pc.Comments)
	return out, nil
}

func (r *Reddit) PostReply(ctx context.Context, target types.ItemRef, text string) (string, error) {
	var parent string
	switch target.Kind {
	case types.KindPost:
		parent = postPrefix + strings.TrimPrefix(target.ID, postPrefix)
	case types.KindComment:
		parent = commentPrefix + strings.TrimPrefix(target.ID, commentPrefix)
	default:
		return "", Fatal("post_reply", fmt.Errorf("unknown target kind %q", target.Kind))
	}
	c, _, err := r.client.Comment.Submit(ctx, parent, text)
	if err != nil {
		return "", classify("post_reply", err)
	}
	return c.ID, nil
}

func (r *Reddit) ListModerators(ctx context.Context, community string) ([]string, error) {
	mods, _, err := r.client.Subreddit.Moderators(ctx, community)
	if err != nil {
		return nil, classify("list_moderators", err)
	}
	names := make([]string, 0, len(mods))
	for _, m := range mods {
		if m == nil || m.Relationship == nil {
			continue
		}
		names = append(names, m.User)
	}
	return names, nil
}

func (r *Reddit) CurrentUser(ctx context.Context) (string, error) {
	u, _, err := r.client.Account.Info(ctx)
	if err != nil {
		return "", classify("current_user", err)
	}
	return u.Name, nil
}

// classify maps client errors onto the gateway taxonomy: bad credentials are
// fatal, everything else (rate limits included) is transient.
func classify(op string, err error) error {
	var rl *reddit.RateLimitError
	if errors.As(err, &rl) {
		return Transient(op, err)
	}
	var er *reddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch er.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Fatal(op, err)
		}
	}
	return Transient(op, err)
}

func convertPost(p *reddit.Post) types.Post {
	post := types.Post{
		ID:        p.ID,
		Community: p.SubredditName,
		Author:    author(p.Author),
		Title:     p.Title,
		Body:      p.Body,
		Permalink: p.Permalink,
	}
	if p.Created != nil {
		post.CreatedAt = p.Created.Time
	}
	return post
}

func convertComment(c *reddit.Comment) types.Comment {
	comment := types.Comment{
		ID:        c.ID,
		PostID:    stripKind(c.PostID),
		ParentID:  stripKind(c.ParentID),
		Author:    author(c.Author),
		Body:      c.Body,
		Permalink: c.Permalink,
	}
	if c.Created != nil {
		comment.CreatedAt = c.Created.Time
	}
	return comment
}

func author(name string) string {
	if name == deletedAuthor {
		return ""
	}
	return name
}

func stripKind(fullID string) string {
	if i := strings.Index(fullID, "_"); i == 2 {
		return fullID[i+1:]
	}
	return fullID
}
