package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"go.uber.org/zap"
)

// SlotKey is the key/value slot holding the task list.
const SlotKey = "voiceTaskAllTasks"

// ErrIndexOutOfRange is returned by DeleteAt for an invalid position.
var ErrIndexOutOfRange = errors.New("task index out of range")

// Store is the ordered task list. Every mutation rewrites the slot.
// Storage failures are logged, never returned; the in-memory list stays
// authoritative for the session.
type Store struct {
	slots  kv.Store
	logger *zap.Logger

	mu      sync.Mutex
	records []Record
}

// NewStore returns an empty Store over slots. Call Load to restore.
func NewStore(slots kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{slots: slots, logger: logger}
}

// Load replaces the in-memory list with the persisted one. A missing slot
// yields an empty list; an unreadable one is logged and reset to empty.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	raw, ok, err := s.slots.Get(SlotKey)
	if err != nil {
		s.logger.Warn("reading task list failed, starting empty", zap.Error(err))
		return
	}
	if !ok || raw == "" {
		return
	}

	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("task list is corrupt, starting empty", zap.Error(err))
		return
	}
	s.records = records
}

// Append adds records to the end and persists.
func (s *Store) Append(records ...Record) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	s.persistLocked()
}

// DeleteAt removes and returns the record at index.
func (s *Store) DeleteAt(index int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.records) {
		return Record{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.records))
	}
	removed := s.records[index]
	s.records = append(s.records[:index:index], s.records[index+1:]...)
	s.persistLocked()
	return removed, nil
}

// Clear empties the list and persists.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.persistLocked()
}

// List returns a copy of the records in order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) persistLocked() {
	records := s.records
	if records == nil {
		records = []Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		s.logger.Error("encoding task list failed", zap.Error(err))
		return
	}
	if err := s.slots.Set(SlotKey, string(raw)); err != nil {
		s.logger.Error("persisting task list failed", zap.Error(err), zap.Int("tasks", len(records)))
	}
}
