// Package audit persists the scheduler's audit log in a WAL.
package audit

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
)

const (
	DefaultDir   = "./wal/audit"
	segmentLimit = 1000
	maxSegments  = 100

	keyPrefix = "audit_"
)

// StoredEntry audit entry as read back from disk. Polymorphic payloads stay
// raw JSON.
type StoredEntry struct {
	Timestamp  time.Time           `json:"timestamp"`
	Type       scheduler.EntryType `json:"type"`
	ActionKind domain.ActionKind   `json:"action_kind,omitempty"`
	Action     json.RawMessage     `json:"action,omitempty"`
	State      *domain.State       `json:"state,omitempty"`
	Changed    []domain.Field      `json:"changed,omitempty"`
	Effect     json.RawMessage     `json:"effect,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Record stored entry with its WAL index.
type Record struct {
	Index uint64      `json:"index"`
	Entry StoredEntry `json:"entry"`
}

// WALStore persists audit entries in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the store in dir, DefaultDir when empty.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends entries in order.
func (s *WALStore) Save(entries []scheduler.Entry) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "marshal %s audit entry", e.Type)
		}

		if err := s.wal.Write(s.wal.CurrentIndex()+1, keyPrefix+string(e.Type), payload); err != nil {
			return errors.Wrap(err, "write audit entry")
		}
	}

	return nil
}

// EntriesAfter returns entries written after the given WAL index. Entries of
// evicted segments are skipped.
func (s *WALStore) EntriesAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}

		var entry StoredEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, errors.Wrapf(err, "decode audit entry %d", idx)
		}
		records = append(records, Record{Index: idx, Entry: entry})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
