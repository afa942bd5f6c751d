// Package scheduler decides whether, when and how often to reply to every
// post and comment the bot observes.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cpunion/threadwatch/pkg/activity"
	"github.com/cpunion/threadwatch/pkg/botlog"
	"github.com/cpunion/threadwatch/pkg/executor"
	"github.com/cpunion/threadwatch/pkg/filter"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/moderation"
	"github.com/cpunion/threadwatch/pkg/tracker"
	"github.com/cpunion/threadwatch/pkg/types"
)

// Replier performs one reply.
type Replier interface {
	Execute(ctx context.Context, task executor.Task) (string, error)
}

// ModeratorChecker classifies comment authors. A non-nil error means the
// author could not be classified.
type ModeratorChecker interface {
	CheckModerator(ctx context.Context, author, community, threadID string) (bool, error)
}

// CommentSource lists the comments of a post.
type CommentSource interface {
	FetchComments(ctx context.Context, postID string) ([]types.Comment, error)
}

// Scheduler owns the thread store and drives every thread through
// op_pending, op_replied, comment_monitoring and complete.
type Scheduler struct {
	store    *tracker.Store
	cfg      Config
	botName  string
	replier  Replier
	mods     ModeratorChecker
	comments CommentSource
	events   activity.Publisher
	log      *botlog.Logger
	clock    func() time.Time

	wg    sync.WaitGroup
	fatal atomic.Pointer[error]
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	BotName  string
	Replier  Replier
	Mods     ModeratorChecker
	Comments CommentSource
	Events   activity.Publisher
	Log      *botlog.Logger
}

// New creates a scheduler with its own thread store.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.CompletionPolicy == "" {
		cfg.CompletionPolicy = PolicyAfterComment
	}
	if cfg.CommentRepliesBeforeComplete <= 0 {
		cfg.CommentRepliesBeforeComplete = 1
	}
	events := deps.Events
	if events == nil {
		events = activity.Nop{}
	}
	return &Scheduler{
		store:    tracker.NewStore(cfg.RetiredLimit),
		cfg:      cfg,
		botName:  deps.BotName,
		replier:  deps.Replier,
		mods:     deps.Mods,
		comments: deps.Comments,
		events:   events,
		log:      deps.Log,
		clock:    time.Now,
	}
}

// SetClock replaces the clock used to time failures. Used by tests.
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Fatal returns the first fatal gateway error hit by a reply, or nil.
func (s *Scheduler) Fatal() error {
	if p := s.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

// Store exposes the thread store for status reporting.
func (s *Scheduler) Store() *tracker.Store {
	return s.store
}

// Discover evaluates a newly observed post and starts tracking it if it
// qualifies. It returns true when a thread was created.
func (s *Scheduler) Discover(ctx context.Context, post types.Post, now time.Time) bool {
	if s.store.Known(post.ID) {
		s.log.Debugf("Already tracking or finished post %s - ignoring", post.ID)
		return false
	}
	if types.IsStale(post.CreatedAt, now, s.cfg.MaxItemAge) {
		s.log.Debugf("Skipping old post %s (%s old)", post.ID, botlog.FormatRemaining(now.Sub(post.CreatedAt)))
		return false
	}
	if types.SameUser(post.Author, s.botName) {
		return false
	}
	if !filter.ShouldRespond(post.Text(), s.cfg.Keywords) {
		s.log.Debugf("No keywords in post %s: %s", post.ID, truncate(post.Title, 50))
		return false
	}
	if s.cfg.SkipParticipatedThreads && s.participated(ctx, post) {
		return false
	}

	snap, ok := s.store.Track(post, now, s.cfg.ReplyDelay)
	if !ok {
		return false
	}

	s.log.Separator()
	s.log.Infof("Found new post in r/%s", post.Community)
	s.log.Infof("Title: %s", post.Title)
	if post.Permalink != "" {
		s.log.Infof("URL: https://reddit.com%s", post.Permalink)
	}
	if matched := filter.Matched(post.Text(), s.cfg.Keywords); len(matched) > 0 {
		s.log.Infof("Keywords found: %s", strings.Join(matched, ", "))
	} else {
		s.log.Infof("No keywords set - replying to all posts")
	}
	s.log.Infof("Will reply to OP in %s", botlog.FormatRemaining(snap.OPReplyDueAt().Sub(now)))
	if s.cfg.CompletionPolicy == PolicyAfterComment {
		s.log.Infof("Also monitoring this thread for comments...")
	}

	s.events.Publish(activity.Event{
		Type:      activity.EventThreadTracked,
		PostID:    post.ID,
		ItemID:    post.ID,
		Author:    post.Author,
		Community: post.Community,
		Detail:    "op reply due " + snap.OPReplyDueAt().UTC().Format(time.RFC3339),
	})
	return true
}

// participated reports whether the bot already commented anywhere in the
// thread. A failed lookup counts as participation.
func (s *Scheduler) participated(ctx context.Context, post types.Post) bool {
	if s.comments == nil {
		return false
	}
	comments, err := s.comments.FetchComments(ctx, post.ID)
	if err != nil {
		s.log.Errorf("Error checking bot activity in %s - skipping thread: %v", post.ID, err)
		s.events.Publish(activity.Event{Type: activity.EventGatewayError, PostID: post.ID, Detail: err.Error()})
		return true
	}
	for _, c := range comments {
		if types.SameUser(c.Author, s.botName) {
			s.log.Debugf("Already active in thread %s - skipping", post.ID)
			return true
		}
	}
	return false
}

// ScanComments fetches comments of threads whose OP reply succeeded and
// schedules replies to qualifying new ones. Per-thread failures are logged
// and skipped; only fatal gateway errors are returned.
func (s *Scheduler) ScanComments(ctx context.Context, now time.Time) error {
	if s.cfg.CompletionPolicy == PolicyAfterOP || s.comments == nil {
		return nil
	}
	for _, snap := range s.store.ScanDue(now, s.cfg.CommentScanInterval) {
		if ctx.Err() != nil {
			return nil
		}
		comments, err := s.comments.FetchComments(ctx, snap.Post.ID)
		if err != nil {
			if forum.IsFatal(err) {
				return err
			}
			s.log.Errorf("Error monitoring thread comments for %s: %v", snap.Post.ID, err)
			s.events.Publish(activity.Event{Type: activity.EventGatewayError, PostID: snap.Post.ID, Detail: err.Error()})
			s.store.MarkScanned(snap.Post.ID, now)
			continue
		}
		for _, c := range comments {
			s.considerComment(ctx, snap.Post, c, now)
		}
		s.store.MarkScanned(snap.Post.ID, now)
	}
	return nil
}

func (s *Scheduler) considerComment(ctx context.Context, post types.Post, c types.Comment, now time.Time) {
	if s.store.KnowsComment(post.ID, c.ID) {
		return
	}
	reason, err := s.rejectReason(ctx, post, c, now)
	if err != nil {
		// Left unknown so the next scan classifies it again.
		s.log.Debugf("Deferring comment %s in %s: %v", c.ID, post.ID, err)
		return
	}
	if reason != "" {
		if s.store.SkipComment(post.ID, c.ID, reason) {
			s.log.Debugf("Skipping comment %s in %s: %s", c.ID, post.ID, reason)
		}
		return
	}
	if !s.store.TrackComment(post.ID, c, now, s.cfg.ReplyDelay) {
		return
	}

	s.log.Separator()
	s.log.Infof("Found new comment in thread: %s", truncate(post.Title, 50))
	s.log.Infof("Comment by u/%s: %s", c.Author, truncate(c.Body, 100))
	if moderation.IsLikelyBot(c.Author) {
		s.log.Warnf("Detected likely bot username: %s", c.Author)
	}
	s.log.Infof("Will reply in %s", botlog.FormatRemaining(s.cfg.ReplyDelay))

	s.events.Publish(activity.Event{
		Type:      activity.EventCommentTracked,
		PostID:    post.ID,
		ItemID:    c.ID,
		Author:    c.Author,
		Community: post.Community,
	})
}

func (s *Scheduler) rejectReason(ctx context.Context, post types.Post, c types.Comment, now time.Time) (string, error) {
	switch {
	case c.Author == "":
		return "deleted author", nil
	case types.SameUser(c.Author, s.botName):
		return "own comment", nil
	case types.IsStale(c.CreatedAt, now, s.cfg.MaxItemAge):
		return "too old", nil
	case s.cfg.TopLevelOnly && !c.IsTopLevel():
		return "reply to another comment", nil
	}
	if s.mods == nil {
		return "", nil
	}
	mod, err := s.mods.CheckModerator(ctx, c.Author, post.Community, post.ID)
	if err != nil {
		return "", err
	}
	if mod {
		return "moderator or system account", nil
	}
	return "", nil
}

// Sweep evicts expired threads and launches one execution per due reply.
// It returns the number of executions started; use Wait to join them.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) int {
	for _, snap := range s.store.RemoveExpired(now, s.cfg.ThreadTTL) {
		s.log.Infof("Stopped tracking thread (expired): %s", truncate(snap.Post.Title, 50))
		s.events.Publish(activity.Event{Type: activity.EventThreadEvicted, PostID: snap.Post.ID, Detail: "expired"})
	}

	claims := s.store.ClaimDue(now)
	for _, c := range claims {
		s.wg.Add(1)
		go func(c tracker.Claim) {
			defer s.wg.Done()
			s.execute(ctx, c)
		}(c)
	}
	return len(claims)
}

// Wait blocks until every launched execution has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// WaitTimeout waits at most d for executions; it reports whether they all finished.
func (s *Scheduler) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Scheduler) execute(ctx context.Context, c tracker.Claim) {
	if c.IsOP() {
		s.log.Infof("Replying to OP: %s (attempt %d)", truncate(c.Post.Title, 50), c.Attempt)
	}
	replyID, err := s.replier.Execute(ctx, executor.Task{Post: c.Post, Comment: c.Comment})

	switch {
	case err == nil:
		snap, ok := s.store.Complete(c, replyID)
		if !ok {
			return
		}
		s.log.Separator()
		if c.IsOP() {
			s.log.Successf("Successfully replied to OP")
		} else {
			s.log.Successf("Successfully replied to comment by u/%s", c.Comment.Author)
		}
		s.events.Publish(activity.Event{
			Type:      activity.EventReplyPosted,
			PostID:    c.Post.ID,
			ItemID:    c.Target.ID,
			Community: c.Post.Community,
			ReplyID:   replyID,
			Attempt:   c.Attempt,
		})
		s.maybeComplete(snap)

	case errors.Is(err, executor.ErrAlreadyReplied):
		snap, ok := s.store.Complete(c, "")
		if !ok {
			return
		}
		s.events.Publish(activity.Event{
			Type:   activity.EventReplyDuplicate,
			PostID: c.Post.ID,
			ItemID: c.Target.ID,
		})
		s.maybeComplete(snap)

	case forum.IsFatal(err):
		s.fatal.CompareAndSwap(nil, &err)
		s.store.Fail(c, err, s.clock(), s.cfg.RetryCooldown)
		s.log.Errorf("Fatal error replying to %s: %v", c.Target, err)
		s.events.Publish(activity.Event{
			Type:   activity.EventGatewayError,
			PostID: c.Post.ID,
			ItemID: c.Target.ID,
			Detail: err.Error(),
		})

	default:
		now := s.clock()
		attempts := s.store.Fail(c, err, now, s.cfg.RetryCooldown)
		if c.IsOP() {
			s.log.Errorf("Error replying to OP of %s: %v", c.Post.ID, err)
		} else {
			s.log.Errorf("Error replying to comment %s: %v", c.Target.ID, err)
		}
		s.events.Publish(activity.Event{
			Type:    activity.EventReplyFailed,
			PostID:  c.Post.ID,
			ItemID:  c.Target.ID,
			Attempt: attempts,
			Detail:  err.Error(),
		})
		if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
			s.abandon(c, attempts)
		}
	}
}

func (s *Scheduler) abandon(c tracker.Claim, attempts int) {
	s.events.Publish(activity.Event{
		Type:    activity.EventReplyAbandoned,
		PostID:  c.Post.ID,
		ItemID:  c.Target.ID,
		Attempt: attempts,
	})
	if !c.IsOP() {
		s.store.GiveUp(c)
		s.log.Warnf("Giving up on comment %s after %d failed attempts", c.Target.ID, attempts)
		return
	}
	if _, ok := s.store.Remove(c.Post.ID); ok {
		s.log.Warnf("Abandoning thread %s after %d failed attempts", truncate(c.Post.Title, 50), attempts)
		s.events.Publish(activity.Event{Type: activity.EventThreadEvicted, PostID: c.Post.ID, Detail: "abandoned"})
	}
}

func (s *Scheduler) maybeComplete(snap tracker.Snapshot) {
	if !snap.OP.Replied {
		return
	}
	if s.cfg.CompletionPolicy == PolicyAfterComment && snap.CommentReplies < s.cfg.CommentRepliesBeforeComplete {
		return
	}
	removed, ok := s.store.Remove(snap.Post.ID)
	if !ok {
		return
	}
	s.log.Successf("Stopped tracking thread: %s", truncate(removed.Post.Title, 50))
	s.log.Infof("Replied to OP and %d comments", removed.CommentReplies)
	s.events.Publish(activity.Event{
		Type:      activity.EventThreadCompleted,
		PostID:    removed.Post.ID,
		Community: removed.Post.Community,
		Detail:    string(s.cfg.CompletionPolicy),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
