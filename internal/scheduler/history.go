package scheduler

import (
	"sync"
	"time"

	"github.com/vadiminshakov/gridbot/internal/domain"
)

// DefaultHistorySize number of audit entries kept in memory.
const DefaultHistorySize = 1000

// EntryType classifies audit entries.
type EntryType string

const (
	EntryState EntryType = "state"
	EntryFault EntryType = "fault"
	EntryAbort EntryType = "abort"
)

// effect lifecycle phases
const (
	PhaseStarted   = "started"
	PhaseSucceeded = "succeeded"
	PhaseFailed    = "failed"
)

// EffectEntryType returns the entry type of an effect lifecycle event,
// e.g. "effect/createOrder/started".
func EffectEntryType(kind domain.EffectKind, phase string) EntryType {
	return EntryType("effect/" + string(kind) + "/" + phase)
}

// EffectRecord effect execution details.
type EffectRecord struct {
	ID      string               `json:"id"`
	Kind    domain.EffectKind    `json:"kind"`
	Effect  domain.Effect        `json:"effect"`
	Receipt *domain.OrderReceipt `json:"receipt,omitempty"`
	Error   string               `json:"error,omitempty"`
	Note    string               `json:"note,omitempty"`
}

// Entry single audit record.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EntryType         `json:"type"`
	ActionKind domain.ActionKind `json:"action_kind,omitempty"`
	Action     domain.Action     `json:"action,omitempty"`
	State      *domain.State     `json:"state,omitempty"`
	Changed    []domain.Field    `json:"changed,omitempty"`
	Effect     *EffectRecord     `json:"effect,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// History bounded in-memory audit log, oldest entries are evicted first.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	start   int
	size    int
	now     func() time.Time
}

// NewHistory creates a history holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		entries: make([]Entry, capacity),
		now:     time.Now,
	}
}

// Record appends an entry, stamping it if it has no timestamp.
func (h *History) Record(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = h.now().UTC()
	}

	capacity := len(h.entries)
	if h.size < capacity {
		h.entries[(h.start+h.size)%capacity] = e
		h.size++
		return
	}

	h.entries[h.start] = e
	h.start = (h.start + 1) % capacity
}

// Entries returns a copy of the log, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.start+i)%len(h.entries)]
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
