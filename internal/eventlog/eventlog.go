// Package eventlog keeps the bounded activity log shown on the dashboard.
package eventlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Entry severities, matching the badge styles on the dashboard event feed.
const (
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeInfo    = "info"
)

// Entry is one activity log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// Log is an append-only ring buffer of entries. When the configured
// capacity is reached the oldest entry is evicted first, so memory stays
// bounded under sustained load.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	start   int // index of the oldest entry
	count   int
	file    *os.File
}

// New creates a log holding at most capacity entries. Capacity must be
// positive.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{entries: make([]Entry, capacity)}
}

// NewWithFile creates a log that additionally appends every entry as a JSON
// line to the given file. The ring buffer is authoritative; a file write
// failure never blocks or fails an append.
func NewWithFile(capacity int, path string) (*Log, error) {
	l := New(capacity)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.file = f
	return l, nil
}

// Append records one entry, evicting the oldest if the log is full.
func (l *Log) Append(entryType, message string) {
	l.AppendAt(time.Now(), entryType, message)
}

// AppendAt records one entry with an explicit timestamp.
func (l *Log) AppendAt(at time.Time, entryType, message string) {
	entry := Entry{Time: at, Type: entryType, Message: message}

	l.mu.Lock()
	if l.count == len(l.entries) {
		l.entries[l.start] = entry
		l.start = (l.start + 1) % len(l.entries)
	} else {
		l.entries[(l.start+l.count)%len(l.entries)] = entry
		l.count++
	}
	file := l.file
	l.mu.Unlock()

	if file != nil {
		if data, err := json.Marshal(entry); err == nil {
			_, _ = file.Write(append(data, '\n'))
		}
	}
}

// Entries returns a copy of the log in insertion order, oldest first. The
// presentation layer is responsible for reverse-chronological display.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close releases the JSONL file if one was configured.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
