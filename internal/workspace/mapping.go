package workspace

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"go.uber.org/zap"
)

// MappingSlotKey is the kv slot holding the field mapping.
const MappingSlotKey = "notionFieldMapping"

// FieldMapping names the remote properties that receive each task field.
// Empty entries are left out of page payloads.
type FieldMapping struct {
	TaskName     string `json:"taskName"`
	Priority     string `json:"priority"`
	DueDate      string `json:"dueDate"`
	Category     string `json:"category"`
	Status       string `json:"status"`
	StatusOption string `json:"statusOption"`
}

// Configured reports whether pages can be created with this mapping.
func (m FieldMapping) Configured() bool {
	return m.TaskName != ""
}

// MappingStore persists the field mapping in a kv slot.
type MappingStore struct {
	store  kv.Store
	logger *zap.Logger
}

// NewMappingStore returns a MappingStore over store.
func NewMappingStore(store kv.Store, logger *zap.Logger) *MappingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingStore{store: store, logger: logger}
}

// Load returns the saved mapping. A missing or unreadable slot yields an
// empty mapping.
func (s *MappingStore) Load() FieldMapping {
	var m FieldMapping
	raw, ok, err := s.store.Get(MappingSlotKey)
	if err != nil {
		s.logger.Warn("failed to read field mapping", zap.Error(err))
		return m
	}
	if !ok {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		s.logger.Warn("discarding corrupt field mapping", zap.Error(err))
		return FieldMapping{}
	}
	return m
}

// Save replaces the stored mapping.
func (s *MappingStore) Save(m FieldMapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal field mapping: %w", err)
	}
	if err := s.store.Set(MappingSlotKey, string(data)); err != nil {
		return fmt.Errorf("save field mapping: %w", err)
	}
	return nil
}
