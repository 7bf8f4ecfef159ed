package tasks

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var (
	taskA = Record{Description: "Call Jan", Criticality: "normaal", Category: "Werk", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	taskB = Record{Description: "Buy milk", Criticality: "low", DueDate: "2026-03-02", Category: "Personal", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
)

func TestStore_AppendThenDeleteFirst(t *testing.T) {
	s := NewStore(kv.NewMemory(), nil)

	s.Append(taskA, taskB)
	removed, err := s.DeleteAt(0)
	require.NoError(t, err)

	assert.Equal(t, taskA, removed)
	assert.Equal(t, []Record{taskB}, s.List())
}

func TestStore_DeleteAtOutOfRange(t *testing.T) {
	s := NewStore(kv.NewMemory(), nil)
	s.Append(taskA, taskB)

	for _, idx := range []int{-1, 2, 100} {
		_, err := s.DeleteAt(idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	assert.Equal(t, []Record{taskA, taskB}, s.List())
}

func TestStore_PersistsEveryMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	slots, err := kv.Open(path)
	require.NoError(t, err)

	s := NewStore(slots, nil)
	s.Append(taskA)
	s.Append(taskB)
	_, err = s.DeleteAt(0)
	require.NoError(t, err)

	reopened, err := kv.Open(path)
	require.NoError(t, err)
	restored := NewStore(reopened, nil)
	restored.Load()
	assert.Equal(t, []Record{taskB}, restored.List())

	restored.Clear()
	raw, ok, err := reopened.Get(SlotKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestStore_LoadCorruptResetsToEmpty(t *testing.T) {
	slots := kv.NewMemory()
	require.NoError(t, slots.Set(SlotKey, "{not a list"))
	tl := logging.NewTestLogger()

	s := NewStore(slots, tl.Underlying())
	s.Load()

	assert.Empty(t, s.List())
	tl.AssertLogged(t, zapcore.WarnLevel, "task list is corrupt")
}

func TestStore_LoadMissingSlot(t *testing.T) {
	s := NewStore(kv.NewMemory(), nil)
	s.Load()
	assert.Equal(t, 0, s.Len())
}

func TestStore_LoadNullDueDate(t *testing.T) {
	slots := kv.NewMemory()
	require.NoError(t, slots.Set(SlotKey, `[{"task":"X","criticality":"hoog","due_date":null,"category":"Werk","timestamp":"2026-03-01T09:00:00Z"}]`))

	s := NewStore(slots, nil)
	s.Load()

	require.Equal(t, 1, s.Len())
	assert.Equal(t, "X", s.List()[0].Description)
	assert.Empty(t, s.List()[0].DueDate)
}

type brokenSlots struct{ kv.Store }

func (brokenSlots) Set(string, string) error { return errors.New("read-only filesystem") }

func TestStore_PersistFailureIsAbsorbed(t *testing.T) {
	tl := logging.NewTestLogger()
	s := NewStore(brokenSlots{kv.NewMemory()}, tl.Underlying())

	s.Append(taskA)

	assert.Equal(t, []Record{taskA}, s.List())
	tl.AssertLogged(t, zapcore.ErrorLevel, "persisting task list failed")
}

func TestRecord_Validate(t *testing.T) {
	assert.NoError(t, taskA.Validate())
	assert.NoError(t, taskB.Validate())
	assert.ErrorIs(t, Record{Description: "  "}.Validate(), ErrEmptyDescription)
	assert.ErrorIs(t, Record{Description: "x", DueDate: "tomorrow"}.Validate(), ErrInvalidDueDate)
	assert.ErrorIs(t, Record{Description: "x", DueDate: "2026-02-30"}.Validate(), ErrInvalidDueDate)
}

func TestRecord_LanguageAndLevel(t *testing.T) {
	tests := []struct {
		criticality string
		dutch       bool
		level       string
	}{
		{"laag", true, "low"},
		{"Normaal", true, "normal"},
		{"zeer hoog", true, "very high"},
		{"high", false, "high"},
		{"very high", false, "very high"},
		{"urgent", false, "normal"},
	}
	for _, tt := range tests {
		r := Record{Criticality: tt.criticality}
		assert.Equal(t, tt.dutch, r.Dutch(), tt.criticality)
		assert.Equal(t, tt.level, r.Level(), tt.criticality)
	}
}

func TestRecord_Due(t *testing.T) {
	d, ok := taskB.Due()
	require.True(t, ok)
	assert.Equal(t, 2, d.Day())

	_, ok = taskA.Due()
	assert.False(t, ok)
}
