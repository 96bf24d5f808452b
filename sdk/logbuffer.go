package voicelink

import "sync"

// DefaultLogCapacity is how many agent log lines a LogBuffer retains.
const DefaultLogCapacity = 20

// LogEntry is one agent-side log line with its local receipt time in
// Unix milliseconds.
type LogEntry struct {
	Text      string
	Timestamp int64
}

// LogBuffer retains the most recent agent log lines, oldest first.
// When full, appending evicts the oldest entry. Safe for concurrent
// use.
type LogBuffer struct {
	mu      sync.Mutex
	cap     int
	entries []LogEntry
}

// NewLogBuffer returns a buffer holding up to capacity entries;
// non-positive capacities use DefaultLogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{cap: capacity}
}

func (b *LogBuffer) Append(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if drop := len(b.entries) - b.cap; drop > 0 {
		b.entries = append(b.entries[:0], b.entries[drop:]...)
	}
}

// Entries returns a snapshot of the retained lines, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
