package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/state"
)

// MaxHistory is the history ceiling.
const MaxHistory = 20

// Entry is one view in the history.
type Entry struct {
	APIID     string    `json:"apiId" yaml:"apiId"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// History is the most-recent-first log of viewed APIs. Each id appears at
// most once and the log never exceeds MaxHistory entries.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	store   *state.Manager
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithClock sets the time source used by Record.
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) { h.now = now }
}

// NewHistory restores the history slot from store. Restored entries are
// normalized so the invariants hold even for hand-edited records.
func NewHistory(store *state.Manager, opts ...HistoryOption) *History {
	h := &History{
		now:   time.Now,
		store: orMemory(store),
	}
	for _, opt := range opts {
		opt(h)
	}

	var entries []Entry
	if h.store.Load(state.SlotHistory, &entries) {
		h.entries = normalize(entries)
	}
	return h
}

func normalize(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	out := make([]Entry, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		if e.APIID == "" || seen[e.APIID] {
			continue
		}
		seen[e.APIID] = true
		out = append(out, e)
		if len(out) == MaxHistory {
			break
		}
	}
	return out
}

// Record moves id to the front with the current time, evicting the oldest
// entry on overflow, then persists the log.
func (h *History) Record(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := h.now()
	// A clock that steps backwards must not break the ordering.
	if len(h.entries) > 0 && ts.Before(h.entries[0].Timestamp) {
		ts = h.entries[0].Timestamp
	}

	next := make([]Entry, 0, MaxHistory)
	next = append(next, Entry{APIID: id, Timestamp: ts})
	for _, e := range h.entries {
		if e.APIID == id {
			continue
		}
		if len(next) == MaxHistory {
			break
		}
		next = append(next, e)
	}
	h.entries = next

	return h.store.Save(state.SlotHistory, h.snapshotLocked())
}

func (h *History) snapshotLocked() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Entries returns the log, most recent first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// IDs returns the viewed ids, most recent first.
func (h *History) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.APIID
	}
	return out
}

// Timestamps maps each viewed id to its latest view time.
func (h *History) Timestamps() map[string]time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]time.Time, len(h.entries))
	for _, e := range h.entries {
		out[e.APIID] = e.Timestamp
	}
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
