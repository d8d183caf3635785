package engine

// The journal records every write applied through an exclusive
// transaction. It lives in memory only and keeps the most recent entries.

import (
	"sync"
	"time"
)

// DefaultJournalSize is the number of entries a store keeps by default.
const DefaultJournalSize = 1024

// JournalEntry represents a single entry in the journal.
type JournalEntry struct {
	Seq       uint64    `json:"seq" bson:"seq"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Command   string    `json:"command" bson:"command"`
	Bundle    string    `json:"bundle,omitempty" bson:"bundle,omitempty"`
	Details   string    `json:"details" bson:"details"`
}

// Journal is a fixed-size ring of the most recent writes.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
	head    int
	full    bool
	seq     uint64
	now     func() time.Time
}

// NewJournal creates a journal keeping the last size entries. A size of
// zero disables it.
func NewJournal(size int) *Journal {
	if size < 0 {
		size = 0
	}
	return &Journal{
		entries: make([]JournalEntry, size),
		now:     time.Now,
	}
}

// Append records one write.
func (j *Journal) Append(command, bundle, details string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	if len(j.entries) == 0 {
		return
	}
	j.entries[j.head] = JournalEntry{
		Seq:       j.seq,
		Timestamp: j.now(),
		Command:   command,
		Bundle:    bundle,
		Details:   details,
	}
	j.head = (j.head + 1) % len(j.entries)
	if j.head == 0 {
		j.full = true
	}
}

// Len is the number of entries currently held.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lenLocked()
}

func (j *Journal) lenLocked() int {
	if j.full {
		return len(j.entries)
	}
	return j.head
}

// Seq is the number of writes recorded since the journal was created,
// including ones that have since been overwritten.
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Tail returns up to n of the most recent entries, oldest first. n <= 0
// returns everything held.
func (j *Journal) Tail(n int) []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	held := j.lenLocked()
	if n <= 0 || n > held {
		n = held
	}
	out := make([]JournalEntry, 0, n)
	start := j.head - n
	if start < 0 {
		start += len(j.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, j.entries[(start+i)%len(j.entries)])
	}
	return out
}
