package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *memorySink) Record(payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestBus_DeliversToSink(t *testing.T) {
	sink := &memorySink{}
	bus, err := NewBus(sink, nil)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}

	bus.Publish(Event{Type: EventThreadTracked, PostID: "p1"})
	bus.Publish(Event{Type: EventReplyPosted, PostID: "p1", ItemID: "p1", ReplyID: "r1"})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Errorf("expected event to be stamped, got %+v", ev)
		}
	}
	if sink.events[1].ReplyID != "r1" {
		t.Errorf("payload not preserved: %+v", sink.events[1])
	}
	if !sink.closed {
		t.Error("expected sink to be closed with the bus")
	}
}

func TestJournal_BusWritesReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "activity.jsonl")
	journal, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	bus, err := NewBus(journal, nil)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	bus.Publish(Event{Type: EventThreadTracked, PostID: "p1"})
	bus.Publish(Event{Type: EventReplyFailed, ItemID: "c1", Attempt: 2, Detail: "rate limited"})
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if journal.Written() != 2 {
		t.Fatalf("expected 2 records, got %d", journal.Written())
	}

	events, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(events) != 2 || events[1].Attempt != 2 || events[1].Type != EventReplyFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestJournal_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	for i := range 2 {
		j, err := OpenJournal(path)
		if err != nil {
			t.Fatal(err)
		}
		payload, _ := json.Marshal(stamp(Event{Type: EventReplyPosted, Attempt: i + 1}))
		if err := j.Record(payload); err != nil {
			t.Fatal(err)
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
	}

	events, err := ReadJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Attempt != 1 || events[1].Attempt != 2 {
		t.Fatalf("expected both runs in order, got %+v", events)
	}
}

func TestReadJournal_IgnoresTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	data := `{"type":"thread_tracked","post_id":"p1"}` + "\n" + `{"type":"reply_po`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	events, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("a cut-off last record should be ignored: %v", err)
	}
	if len(events) != 1 || events[0].PostID != "p1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestJournal_EmptyPathDropsRecords(t *testing.T) {
	j, err := OpenJournal("")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Record([]byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if j.Written() != 0 || j.Close() != nil {
		t.Fatal("a journal without a path records nothing")
	}
}
