package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives encoded events from the bus, one JSON document per call.
type Sink interface {
	Record(payload []byte) error
	Close() error
}

// Journal appends events to a newline-delimited JSON file. Each record
// goes out in a single write on an O_APPEND descriptor.
type Journal struct {
	path string

	mu      sync.Mutex
	f       *os.File
	written int
}

// OpenJournal opens path for appending and creates missing directories.
// An empty path gives a journal that drops every record.
func OpenJournal(path string) (*Journal, error) {
	j := &Journal{path: path}
	if path == "" {
		return j, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	j.f = f
	return j, nil
}

// Path is the file the journal appends to.
func (j *Journal) Path() string { return j.path }

// Record appends one encoded event.
func (j *Journal) Record(payload []byte) error {
	line := make([]byte, len(payload)+1)
	copy(line, payload)
	line[len(payload)] = '\n'

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", j.path, err)
	}
	j.written++
	return nil
}

// Written returns how many events were recorded since OpenJournal.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Close is idempotent; later records are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// ReadJournal decodes every event stored at path. A final record cut
// short by a crash is ignored.
func ReadJournal(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for {
		var ev Event
		err := dec.Decode(&ev)
		switch {
		case err == nil:
			events = append(events, ev)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return events, nil
		default:
			return events, fmt.Errorf("decode record %d of %s: %w", len(events)+1, path, err)
		}
	}
}
