package voicelink

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halyard-ai/voicelink/pkg/session/protocol"
)

// Utterance is one reconciled transcript entry. A logical utterance
// may arrive as several streaming fragments; all fragments for it
// share the same ID.
type Utterance struct {
	ID   string
	Role protocol.Role
	Text string
	// Timestamp is Unix milliseconds: backend-supplied when present,
	// otherwise the local receipt time of the first fragment.
	Timestamp int64
	// Final reports whether the utterance is complete. Once true it
	// never reverts, even if a later fragment omits the flag.
	Final bool
}

// reconciler assigns stable identities and normalized fields to
// transcript fragments. Fragments carrying a backend messageId map to
// "<role>-<id>"; fragments without one are minted "<role>-local-<n>"
// from a per-role counter, so unkeyed fragments never coalesce with
// each other and never collide with backend-keyed ones. Counters are
// scoped to the owning session.
//
// Not safe for concurrent use; the session's dispatch loop is the
// only caller.
type reconciler struct {
	now     func() time.Time
	nextSeq map[protocol.Role]int64
}

func newReconciler(now func() time.Time) *reconciler {
	if now == nil {
		now = time.Now
	}
	return &reconciler{
		now:     now,
		nextSeq: make(map[protocol.Role]int64),
	}
}

func (r *reconciler) reconcile(msg protocol.TranscriptMessage) Utterance {
	var id string
	if msg.MessageID != nil {
		id = fmt.Sprintf("%s-%d", msg.Role, *msg.MessageID)
	} else {
		r.nextSeq[msg.Role]++
		id = fmt.Sprintf("%s-local-%d", msg.Role, r.nextSeq[msg.Role])
	}

	ts := r.now().UnixMilli()
	if msg.TimestampMS != nil {
		ts = *msg.TimestampMS
	}

	final := true
	if msg.Final != nil {
		final = *msg.Final
	}

	return Utterance{
		ID:        id,
		Role:      msg.Role,
		Text:      msg.Text,
		Timestamp: ts,
		Final:     final,
	}
}

// TranscriptLog accumulates reconciled utterances. Safe for
// concurrent use: the session's dispatch loop writes while callers
// read snapshots.
type TranscriptLog struct {
	mu      sync.Mutex
	entries []Utterance
	index   map[string]int
}

func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{index: make(map[string]int)}
}

// Upsert applies an utterance to the log and returns the stored
// entry. A fragment whose ID matches an existing entry updates that
// entry in place: text always takes the new value, finality is
// monotonic, and the original timestamp is retained so the entry
// keeps its position in the ordered view. Unknown IDs append.
func (t *TranscriptLog) Upsert(u Utterance) Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[u.ID]; ok {
		prev := t.entries[i]
		prev.Text = u.Text
		if u.Final {
			prev.Final = true
		}
		t.entries[i] = prev
		return prev
	}

	t.index[u.ID] = len(t.entries)
	t.entries = append(t.entries, u)
	return u
}

// Len returns the number of distinct utterances in the log.
func (t *TranscriptLog) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Ordered returns a snapshot of the log sorted by timestamp
// ascending, ties broken by arrival order.
func (t *TranscriptLog) Ordered() []Utterance {
	t.mu.Lock()
	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	t.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
