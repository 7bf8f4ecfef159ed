package kv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_RoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Set("voiceTaskAllTasks", `[{"task":"a"}]`))
	require.NoError(t, f.Set("secure_speechApiKey", `{"value":"x"}`))

	reopened, err := Open(path)
	require.NoError(t, err)

	v, ok, err := reopened.Get("voiceTaskAllTasks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"task":"a"}]`, v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFile_DeleteAndKeys(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	require.NoError(t, f.Set("secure_b", "2"))
	require.NoError(t, f.Set("secure_a", "1"))
	require.NoError(t, f.Set("other", "3"))

	keys, err := f.Keys("secure_")
	require.NoError(t, err)
	assert.Equal(t, []string{"secure_a", "secure_b"}, keys)

	require.NoError(t, f.Delete("secure_a", "missing"))
	_, ok, _ := f.Get("secure_a")
	assert.False(t, ok)
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestOpenOrReset_MovesCorruptFileAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"voiceTaskAllTasks": "[`), 0600))

	f, movedTo, err := OpenOrReset(path)
	require.NoError(t, err)
	require.NotEmpty(t, movedTo)
	assert.True(t, strings.HasPrefix(movedTo, path+".corrupt-"))

	kept, err := os.ReadFile(movedTo)
	require.NoError(t, err)
	assert.Equal(t, `{"voiceTaskAllTasks": "[`, string(kept))

	keys, _ := f.Keys("")
	assert.Empty(t, keys)

	require.NoError(t, f.Set("k", "v"))
	reopened, err := Open(path)
	require.NoError(t, err)
	v, ok, _ := reopened.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpenOrReset_HealthyFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"k":"v"}`), 0600))

	f, movedTo, err := OpenOrReset(path)
	require.NoError(t, err)
	assert.Empty(t, movedTo)
	v, _, _ := f.Get("k")
	assert.Equal(t, "v", v)
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	f, err := Open(path)
	require.NoError(t, err)
	keys, _ := f.Keys("")
	assert.Empty(t, keys)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("k", "v"))
	v, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete("k"))
	_, ok, _ = m.Get("k")
	assert.False(t, ok)
}
