package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SingleSession(t *testing.T) {
	r := NewRecorder(Options{}, nil)

	s, err := r.Start("audio/webm")
	require.NoError(t, err)
	assert.True(t, r.Active())
	assert.NotEmpty(t, s.ID())

	_, err = r.Start("audio/webm")
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	_, err = s.Write([]byte("chunk-1,"))
	require.NoError(t, err)
	_, err = s.Write([]byte("chunk-2"))
	require.NoError(t, err)

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, s.ID(), rec.ID)
	assert.Equal(t, "audio/webm", rec.MimeType)
	assert.Equal(t, []byte("chunk-1,chunk-2"), rec.Audio)
	assert.False(t, rec.Truncated)
	assert.False(t, r.Active())

	_, err = s.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrSessionStopped)

	_, err = r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.ErrorIs(t, r.Cancel(), ErrNotRecording)

	// A new session may start once the previous one is released.
	_, err = r.Start("audio/webm")
	require.NoError(t, err)
	require.NoError(t, r.Cancel())
}

func TestRecorder_AutoStopsAtMaxDuration(t *testing.T) {
	r := NewRecorder(Options{MaxDuration: 30 * time.Millisecond}, nil)

	s, err := r.Start("audio/webm")
	require.NoError(t, err)
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop at max duration")
	}

	_, err = s.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrSessionStopped)

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.True(t, rec.Truncated)
	assert.Equal(t, []byte("abc"), rec.Audio)
}

func TestRecorder_TinyMaxDurationRepeated(t *testing.T) {
	r := NewRecorder(Options{MaxDuration: time.Nanosecond}, nil)

	for i := 0; i < 500; i++ {
		s, err := r.Start("audio/webm")
		require.NoError(t, err)

		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: session did not stop", i)
		}

		rec, err := r.Stop()
		require.NoError(t, err)
		assert.True(t, rec.Truncated)
		assert.Equal(t, s.ID(), rec.ID)
	}
	assert.False(t, r.Active())
}

func TestRecorder_MaxBytes(t *testing.T) {
	r := NewRecorder(Options{MaxBytes: 4}, nil)

	s, err := r.Start("audio/webm")
	require.NoError(t, err)
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = s.Write([]byte("de"))
	assert.ErrorIs(t, err, ErrTooLarge)

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.True(t, rec.Truncated)
	assert.Equal(t, []byte("abc"), rec.Audio)
}

func writeWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	const rate = 8000

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, rate*seconds),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestFromFile_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.wav")
	writeWAV(t, path, 2)

	rec, err := FromFile(path, "", Options{MaxDuration: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", rec.MimeType)
	assert.Equal(t, 2*time.Second, rec.Duration)
	assert.NotEmpty(t, rec.ID)
}

func TestFromFile_WAVTooLong(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.wav")
	writeWAV(t, path, 3)

	_, err := FromFile(path, "", Options{MaxDuration: time.Second})
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestFromFile_Limits(t *testing.T) {
	dir := t.TempDir()

	big := filepath.Join(dir, "big.webm")
	require.NoError(t, os.WriteFile(big, make([]byte, 64), 0600))
	_, err := FromFile(big, "", Options{MaxBytes: 32})
	assert.ErrorIs(t, err, ErrTooLarge)

	empty := filepath.Join(dir, "empty.webm")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	_, err = FromFile(empty, "", Options{})
	assert.Error(t, err)

	_, err = FromFile(filepath.Join(dir, "missing.webm"), "", Options{})
	assert.Error(t, err)
}

func TestFromFile_ExplicitMime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")
	require.NoError(t, os.WriteFile(path, []byte("opaque"), 0600))

	rec, err := FromFile(path, "audio/ogg", Options{})
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", rec.MimeType)
	assert.Equal(t, []byte("opaque"), rec.Audio)
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.webm", "audio/webm"},
		{"a.WAV", "audio/wav"},
		{"a.mp3", "audio/mpeg"},
		{"a.m4a", "audio/mp4"},
		{"a.ogg", "audio/ogg"},
		{"a.unknown", "audio/webm"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.path, []byte("not audio")))
		})
	}
}
