// Package tracker holds the state of every thread the bot is watching.
//
// Store is the single synchronization point of the bot: every read-modify-write
// of thread state happens inside one of its methods, under one mutex, and no
// method performs I/O. Readers get deep copies.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/cpunion/threadwatch/pkg/types"
)

// DefaultRetiredLimit bounds how many evicted post ids are remembered.
const DefaultRetiredLimit = 10000

// ReplyState is the scheduling state of one reply target.
type ReplyState struct {
	DueAt         time.Time `json:"due_at"`
	Replied       bool      `json:"replied"`
	ReplyID       string    `json:"reply_id,omitempty"`
	InFlight      bool      `json:"in_flight"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	GaveUp        bool      `json:"gave_up,omitempty"`
}

func (r ReplyState) due(now time.Time) bool {
	if r.Replied || r.InFlight || r.GaveUp {
		return false
	}
	return !now.Before(r.DueAt) && !now.Before(r.NextAttemptAt)
}

// CommentState tracks a comment the bot intends to answer.
type CommentState struct {
	Comment types.Comment `json:"comment"`
	ReplyState
}

// Claim is a due reply handed to exactly one executor.
type Claim struct {
	Post    types.Post
	Target  types.ItemRef
	Comment *types.Comment // Nil for the OP reply
	DueAt   time.Time
	Attempt int // 1-based number of the attempt about to run
}

// IsOP reports whether the claim targets the post itself.
func (c Claim) IsOP() bool { return c.Comment == nil }

type thread struct {
	post           types.Post
	discoveredAt   time.Time
	phase          Phase
	op             ReplyState
	comments       map[string]*CommentState
	order          []string
	skipped        map[string]string
	lastScan       time.Time
	commentReplies int
}

// Store maps post ids to thread state.
type Store struct {
	mu sync.Mutex

	threads      map[string]*thread
	retired      map[string]bool
	retiredOrder []string
	retiredLimit int
	posted       int
}

// NewStore creates an empty store. retiredLimit <= 0 uses DefaultRetiredLimit.
func NewStore(retiredLimit int) *Store {
	if retiredLimit <= 0 {
		retiredLimit = DefaultRetiredLimit
	}
	return &Store{
		threads:      make(map[string]*thread),
		retired:      make(map[string]bool),
		retiredLimit: retiredLimit,
	}
}

// Track starts tracking post with its OP reply due at now+delay. It returns
// false if the post is already tracked or was tracked before.
func (s *Store) Track(post types.Post, now time.Time, delay time.Duration) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[post.ID]; ok || s.retired[post.ID] {
		return Snapshot{}, false
	}
	t := &thread{
		post:         post,
		discoveredAt: now,
		phase:        PhaseDiscovered,
		op:           ReplyState{DueAt: now.Add(delay)},
		comments:     make(map[string]*CommentState),
		skipped:      make(map[string]string),
	}
	t.setPhase(PhaseOPPending)
	s.threads[post.ID] = t
	return t.snapshot(), true
}

// Known reports whether postID is tracked now or was tracked before.
func (s *Store) Known(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[postID]
	return ok || s.retired[postID]
}

// KnowsComment reports whether a comment was already tracked or skipped.
func (s *Store) KnowsComment(postID, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[postID]
	if !ok {
		return false
	}
	_, tracked := t.comments[commentID]
	_, skipped := t.skipped[commentID]
	return tracked || skipped
}

// TrackComment schedules a reply to c at now+delay. It returns false when the
// thread is unknown or the comment was seen before.
func (s *Store) TrackComment(postID string, c types.Comment, now time.Time, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[postID]
	if !ok {
		return false
	}
	if _, seen := t.comments[c.ID]; seen {
		return false
	}
	if _, seen := t.skipped[c.ID]; seen {
		return false
	}
	t.comments[c.ID] = &CommentState{
		Comment:    c,
		ReplyState: ReplyState{DueAt: now.Add(delay)},
	}
	t.order = append(t.order, c.ID)
	return true
}

// SkipComment remembers that a comment will never be answered. It returns
// true the first time, so callers can log the reason once.
func (s *Store) SkipComment(postID, commentID, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[postID]
	if !ok {
		return false
	}
	if _, seen := t.skipped[commentID]; seen {
		return false
	}
	if _, tracked := t.comments[commentID]; tracked {
		return false
	}
	t.skipped[commentID] = reason
	return true
}

// ClaimDue marks every due, idle reply as in flight and returns them.
// Threads are visited in discovery order; the OP precedes its comments.
func (s *Store) ClaimDue(now time.Time) []Claim {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []Claim
	for _, t := range s.orderedLocked() {
		if t.op.due(now) {
			t.op.InFlight = true
			claims = append(claims, Claim{
				Post:    t.post,
				Target:  t.post.Ref(),
				DueAt:   t.op.DueAt,
				Attempt: t.op.Attempts + 1,
			})
		}
		if !t.op.Replied {
			continue
		}
		for _, id := range t.order {
			cs := t.comments[id]
			if !cs.due(now) {
				continue
			}
			cs.InFlight = true
			c := cs.Comment
			claims = append(claims, Claim{
				Post:    t.post,
				Target:  c.Ref(),
				Comment: &c,
				DueAt:   cs.DueAt,
				Attempt: cs.Attempts + 1,
			})
		}
	}
	return claims
}

// Complete records a successful (or already present) reply for a claim. An
// empty replyID marks a reply found on the forum and is not counted as posted.
// It returns the thread snapshot after the change and false if the thread
// is gone or the target was already marked replied.
func (s *Store) Complete(c Claim, replyID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[c.Post.ID]
	if !ok {
		return Snapshot{}, false
	}
	rs := t.replyState(c)
	if rs == nil {
		return t.snapshot(), false
	}
	rs.InFlight = false
	if rs.Replied {
		return t.snapshot(), false
	}
	rs.Replied = true
	rs.ReplyID = replyID
	rs.LastError = ""
	if c.IsOP() {
		t.setPhase(PhaseOPReplied)
	} else {
		t.commentReplies++
	}
	if replyID != "" {
		s.posted++
	}
	return t.snapshot(), true
}

// Fail records a failed attempt; the next attempt waits for cooldown.
// It returns the number of failed attempts so far.
func (s *Store) Fail(c Claim, err error, now time.Time, cooldown time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[c.Post.ID]
	if !ok {
		return 0
	}
	rs := t.replyState(c)
	if rs == nil {
		return 0
	}
	rs.InFlight = false
	rs.Attempts++
	rs.NextAttemptAt = now.Add(cooldown)
	if err != nil {
		rs.LastError = err.Error()
	}
	return rs.Attempts
}

// GiveUp stops retrying a comment reply for good.
func (s *Store) GiveUp(c Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[c.Post.ID]
	if !ok {
		return
	}
	if rs := t.replyState(c); rs != nil {
		rs.InFlight = false
		rs.GaveUp = true
	}
}

// ScanDue returns threads whose OP reply succeeded and whose comments were
// last scanned at least every ago.
func (s *Store) ScanDue(now time.Time, every time.Duration) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Snapshot
	for _, t := range s.orderedLocked() {
		if !t.op.Replied {
			continue
		}
		if !t.lastScan.IsZero() && now.Sub(t.lastScan) < every {
			continue
		}
		out = append(out, t.snapshot())
	}
	return out
}

// MarkScanned records a comment scan and enters comment monitoring.
func (s *Store) MarkScanned(postID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.threads[postID]; ok {
		t.lastScan = at
		if t.phase == PhaseOPReplied {
			t.setPhase(PhaseCommentMonitoring)
		}
	}
}

// Remove evicts a thread and retires its id so it is never tracked again.
func (s *Store) Remove(postID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[postID]
	if !ok {
		return Snapshot{}, false
	}
	delete(s.threads, postID)
	s.retireLocked(postID)
	t.setPhase(PhaseComplete)
	return t.snapshot(), true
}

// RemoveExpired evicts threads discovered more than ttl ago that have no
// reply in flight.
func (s *Store) RemoveExpired(now time.Time, ttl time.Duration) []Snapshot {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Snapshot
	for _, t := range s.orderedLocked() {
		if now.Sub(t.discoveredAt) < ttl || t.busy() {
			continue
		}
		delete(s.threads, t.post.ID)
		s.retireLocked(t.post.ID)
		t.setPhase(PhaseComplete)
		out = append(out, t.snapshot())
	}
	return out
}

// Snapshot returns a copy of one thread.
func (s *Store) Snapshot(postID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[postID]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Snapshots returns copies of all threads in discovery order.
func (s *Store) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedLocked()
	out := make([]Snapshot, 0, len(ordered))
	for _, t := range ordered {
		out = append(out, t.snapshot())
	}
	return out
}

// Len returns the number of tracked threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// Stats summarizes the store for status lines.
type Stats struct {
	Threads         int
	PendingOP       int
	PendingComments int
	InFlight        int
	RepliesPosted   int
	Retired         int
}

// Stats returns current totals.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Threads:       len(s.threads),
		RepliesPosted: s.posted,
		Retired:       len(s.retired),
	}
	for _, t := range s.threads {
		if !t.op.Replied {
			st.PendingOP++
		}
		if t.op.InFlight {
			st.InFlight++
		}
		for _, cs := range t.comments {
			if !cs.Replied && !cs.GaveUp {
				st.PendingComments++
			}
			if cs.InFlight {
				st.InFlight++
			}
		}
	}
	return st
}

func (s *Store) orderedLocked() []*thread {
	out := make([]*thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].discoveredAt.Equal(out[j].discoveredAt) {
			return out[i].post.ID < out[j].post.ID
		}
		return out[i].discoveredAt.Before(out[j].discoveredAt)
	})
	return out
}

func (s *Store) retireLocked(postID string) {
	if s.retired[postID] {
		return
	}
	s.retired[postID] = true
	s.retiredOrder = append(s.retiredOrder, postID)
	for len(s.retiredOrder) > s.retiredLimit {
		delete(s.retired, s.retiredOrder[0])
		s.retiredOrder = s.retiredOrder[1:]
	}
}

func (t *thread) replyState(c Claim) *ReplyState {
	if c.IsOP() {
		return &t.op
	}
	cs, ok := t.comments[c.Comment.ID]
	if !ok {
		return nil
	}
	return &cs.ReplyState
}

func (t *thread) busy() bool {
	if t.op.InFlight {
		return true
	}
	for _, cs := range t.comments {
		if cs.InFlight {
			return true
		}
	}
	return false
}

// setPhase moves forward only along allowed transitions.
func (t *thread) setPhase(p Phase) {
	if CanTransition(t.phase, p) {
		t.phase = p
	}
}
