package tracker

import (
	"time"

	"github.com/cpunion/threadwatch/pkg/types"
)

// Snapshot is a point-in-time copy of a tracked thread.
type Snapshot struct {
	Post           types.Post     `json:"post"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
	Phase          Phase          `json:"phase"`
	OP             ReplyState     `json:"op"`
	Comments       []CommentState `json:"comments,omitempty"`
	Skipped        int            `json:"skipped"`
	LastScan       time.Time      `json:"last_scan,omitempty"`
	CommentReplies int            `json:"comment_replies"`
}

// OPReplyDueAt is when the OP reply becomes due.
func (s Snapshot) OPReplyDueAt() time.Time { return s.OP.DueAt }

// Comment returns the state of a tracked comment.
func (s Snapshot) Comment(id string) (CommentState, bool) {
	for _, cs := range s.Comments {
		if cs.Comment.ID == id {
			return cs, true
		}
	}
	return CommentState{}, false
}

// InFlight reports whether any reply of the thread is executing.
func (s Snapshot) InFlight() bool {
	if s.OP.InFlight {
		return true
	}
	for _, cs := range s.Comments {
		if cs.InFlight {
			return true
		}
	}
	return false
}

func (t *thread) snapshot() Snapshot {
	snap := Snapshot{
		Post:           t.post,
		DiscoveredAt:   t.discoveredAt,
		Phase:          t.phase,
		OP:             t.op,
		Skipped:        len(t.skipped),
		LastScan:       t.lastScan,
		CommentReplies: t.commentReplies,
	}
	if len(t.order) > 0 {
		snap.Comments = make([]CommentState, 0, len(t.order))
		for _, id := range t.order {
			snap.Comments = append(snap.Comments, *t.comments[id])
		}
	}
	return snap
}
