// Package activity records what the bot did as structured events, next to
// the human-readable log stream.
package activity

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an activity event.
type EventType string

const (
	EventThreadTracked   EventType = "thread_tracked"
	EventCommentTracked  EventType = "comment_tracked"
	EventReplyPosted     EventType = "reply_posted"
	EventReplyDuplicate  EventType = "reply_skipped_duplicate"
	EventReplyFailed     EventType = "reply_failed"
	EventReplyAbandoned  EventType = "reply_abandoned"
	EventThreadCompleted EventType = "thread_completed"
	EventThreadEvicted   EventType = "thread_evicted"
	EventGatewayError    EventType = "gateway_error"
)

// Event captures one state change for later analysis.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	PostID    string    `json:"post_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Community string    `json:"community,omitempty"`
	ReplyID   string    `json:"reply_id,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher accepts activity events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

// stamp fills in the id and timestamp if unset.
func stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}
