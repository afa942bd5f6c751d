package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cpunion/threadwatch/pkg/types"
)

// Memory is an in-process forum. It backs the simulate command and tests.
type Memory struct {
	mu sync.RWMutex

	Name       string                      `json:"name"`
	Bot        string                      `json:"bot"`
	Posts      map[string]*types.Post      `json:"posts"`
	Comments   map[string][]*types.Comment `json:"comments"` // Keyed by post ID, in arrival order
	Moderators map[string][]string         `json:"moderators"`
	dataPath   string

	streams    map[int]*memoryStream
	nextStream int
	failures   map[string][]error
	replies    []Reply
	calls      map[string]int
}

// Reply records a reply posted through the gateway.
type Reply struct {
	ID     string        `json:"id"`
	Target types.ItemRef `json:"target"`
	Text   string        `json:"text"`
	At     time.Time     `json:"at"`
}

type memoryStream struct {
	communities map[string]bool
	posts       chan types.Post
	errs        chan error
}

var _ Gateway = (*Memory)(nil)

// NewMemory creates an empty forum where bot is the authenticated user.
func NewMemory(name, bot, dataPath string) *Memory {
	return &Memory{
		Name:       name,
		Bot:        bot,
		Posts:      make(map[string]*types.Post),
		Comments:   make(map[string][]*types.Comment),
		Moderators: make(map[string][]string),
		dataPath:   dataPath,
		streams:    make(map[int]*memoryStream),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
	}
}

// AddPost publishes a post and delivers it to open streams of its community.
func (m *Memory) AddPost(post types.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if post.ID == "" {
		post.ID = fmt.Sprintf("post-%d", time.Now().UnixNano())
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	p := post
	m.Posts[post.ID] = &p

	for _, s := range m.streams {
		if !s.communities[strings.ToLower(post.Community)] {
			continue
		}
		select {
		case s.posts <- post:
		default:
			m.calls["stream_dropped"]++
		}
	}
}

// AddComment attaches a comment to its post.
func (m *Memory) AddComment(c types.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = fmt.Sprintf("comment-%d", time.Now().UnixNano())
	}
	if c.ParentID == "" {
		c.ParentID = c.PostID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.Comments[c.PostID] = append(m.Comments[c.PostID], &c)
}

// SetModerators replaces the moderator list of a community.
func (m *Memory) SetModerators(community string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Moderators[strings.ToLower(community)] = names
}

// FailNext makes the next call of op ("fetch_post", "fetch_comments",
// "post_reply", "list_moderators", "current_user") return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// FailStreams delivers err on every open stream.
func (m *Memory) FailStreams(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		select {
		case s.errs <- err:
		default:
		}
	}
}

// Replies returns the replies posted so far.
func (m *Memory) Replies() []Reply {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reply, len(m.replies))
	copy(out, m.replies)
	return out
}

// Calls returns how often op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// OpenStreams returns the number of streams not yet stopped.
func (m *Memory) OpenStreams() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

func (m *Memory) StreamNewPosts(ctx context.Context, communities []string) (<-chan types.Post, <-chan error, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &memoryStream{
		communities: make(map[string]bool, len(communities)),
		posts:       make(chan types.Post, 256),
		errs:        make(chan error, 8),
	}
	for _, c := range communities {
		s.communities[strings.ToLower(c)] = true
	}
	id := m.nextStream
	m.nextStream++
	m.streams[id] = s
	m.calls["stream"]++

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.streams, id)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return s.posts, s.errs, stop
}

func (m *Memory) FetchPost(ctx context.Context, id string) (types.Post, error) {
	if err := m.begin(ctx, "fetch_post"); err != nil {
		return types.Post{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.Posts[id]
	if !ok {
		return types.Post{}, Transient("fetch_post", fmt.Errorf("post %s: %w", id, ErrNotFound))
	}
	return *p, nil
}

func (m *Memory) FetchComments(ctx context.Context, postID string) ([]types.Comment, error) {
	if err := m.begin(ctx, "fetch_comments"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.Posts[postID]; !ok {
		return nil, Transient("fetch_comments", fmt.Errorf("post %s: %w", postID, ErrNotFound))
	}
	return threadOrder(postID, m.Comments[postID]), nil
}

func (m *Memory) PostReply(ctx context.Context, target types.ItemRef, text string) (string, error) {
	if err := m.begin(ctx, "post_reply"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	postID, parentID := "", target.ID
	switch target.Kind {
	case types.KindPost:
		if _, ok := m.Posts[target.ID]; !ok {
			return "", Transient("post_reply", fmt.Errorf("post %s: %w", target.ID, ErrNotFound))
		}
		postID = target.ID
	case types.KindComment:
		postID = m.findCommentPost(target.ID)
		if postID == "" {
			return "", Transient("post_reply", fmt.Errorf("comment %s: %w", target.ID, ErrNotFound))
		}
	default:
		return "", Fatal("post_reply", fmt.Errorf("unknown target kind %q", target.Kind))
	}

	now := time.Now()
	reply := &types.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		ParentID:  parentID,
		Author:    m.Bot,
		Body:      text,
		CreatedAt: now,
	}
	m.Comments[postID] = append(m.Comments[postID], reply)
	m.replies = append(m.replies, Reply{ID: reply.ID, Target: target, Text: text, At: now})
	return reply.ID, nil
}

func (m *Memory) ListModerators(ctx context.Context, community string) ([]string, error) {
	if err := m.begin(ctx, "list_moderators"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	mods := m.Moderators[strings.ToLower(community)]
	out := make([]string, len(mods))
	copy(out, mods)
	return out, nil
}

func (m *Memory) CurrentUser(ctx context.Context) (string, error) {
	if err := m.begin(ctx, "current_user"); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Bot, nil
}

// Save persists the forum to disk.
func (m *Memory) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(m.dataPath, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(m.dataPath, "forum.json"), data, 0644)
}

// Load loads the forum from disk. A missing file leaves the forum empty.
func (m *Memory) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dataPath, "forum.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("decode forum: %w", err)
	}
	if m.Posts == nil {
		m.Posts = make(map[string]*types.Post)
	}
	if m.Comments == nil {
		m.Comments = make(map[string][]*types.Comment)
	}
	normalized := make(map[string][]string, len(m.Moderators))
	for community, mods := range m.Moderators {
		normalized[strings.ToLower(community)] = mods
	}
	m.Moderators = normalized
	return nil
}

// begin counts the call and pops an injected failure.
func (m *Memory) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return Transient(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if queued := m.failures[op]; len(queued) > 0 {
		m.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (m *Memory) findCommentPost(commentID string) string {
	for postID, comments := range m.Comments {
		for _, c := range comments {
			if c.ID == commentID {
				return postID
			}
		}
	}
	return ""
}

// threadOrder flattens comments depth-first, children in arrival order.
// Comments whose parent is unknown are appended at the end by creation time.
func threadOrder(postID string, comments []*types.Comment) []types.Comment {
	children := make(map[string][]*types.Comment)
	known := map[string]bool{postID: true}
	for _, c := range comments {
		known[c.ID] = true
	}
	var orphans []*types.Comment
	for _, c := range comments {
		if !known[c.ParentID] {
			orphans = append(orphans, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	out := make([]types.Comment, 0, len(comments))
	var walk func(parent string)
	walk = func(parent string) {
		for _, c := range children[parent] {
			out = append(out, *c)
			walk(c.ID)
		}
	}
	walk(postID)

	sort.SliceStable(orphans, func(i, j int) bool {
		return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
	})
	for _, c := range orphans {
		out = append(out, *c)
	}
	return out
}
