// Package capture manages the single active recording session and loads
// pre-recorded audio files.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxDuration stops a session automatically.
	DefaultMaxDuration = 5 * time.Minute

	// DefaultMaxBytes matches the speech service upload limit.
	DefaultMaxBytes = 25 << 20
)

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrNotRecording is returned by Stop and Cancel when no session is active.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrSessionStopped is returned when writing to a session that has ended.
	ErrSessionStopped = errors.New("recording session has stopped")

	// ErrTooLong is returned for audio longer than the maximum duration.
	ErrTooLong = errors.New("recording exceeds maximum duration")

	// ErrTooLarge is returned for audio larger than the maximum size.
	ErrTooLarge = errors.New("recording exceeds maximum size")
)

// Recording is captured audio ready for transcription.
type Recording struct {
	ID        string
	MimeType  string
	Audio     []byte
	StartedAt time.Time
	Duration  time.Duration
	// Truncated is set when the session hit a limit before Stop.
	Truncated bool
}

// Options configures a Recorder.
type Options struct {
	MaxDuration time.Duration
	MaxBytes    int64
}

// Recorder allows one session at a time.
type Recorder struct {
	mu     sync.Mutex
	opts   Options
	active *Session
	logger *zap.Logger
}

// NewRecorder returns a Recorder.
func NewRecorder(opts Options, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Recorder{opts: opts, logger: logger}
}

// Session accumulates audio chunks for one recording.
type Session struct {
	id       string
	mimeType string
	started  time.Time
	maxBytes int64
	logger   *zap.Logger

	mu        sync.Mutex
	buf       bytes.Buffer
	stopped   bool
	truncated bool
	ended     time.Time
	timer     *time.Timer
	done      chan struct{}
}

// Start opens a session. The session stops by itself after the maximum
// duration.
func (r *Recorder) Start(mimeType string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, ErrAlreadyRecording
	}
	s := &Session{
		id:       uuid.NewString(),
		mimeType: mimeType,
		started:  time.Now(),
		maxBytes: r.opts.MaxBytes,
		logger:   r.logger,
		done:     make(chan struct{}),
	}
	// The callback takes s.mu in halt, so it cannot observe s.timer before
	// the assignment below.
	s.mu.Lock()
	s.timer = time.AfterFunc(r.opts.MaxDuration, func() {
		if s.halt(true) {
			r.logger.Info("recording reached maximum duration",
				zap.String("recording.id", s.id),
				zap.Duration("max_duration", r.opts.MaxDuration))
		}
	})
	s.mu.Unlock()
	r.active = s

	r.logger.Debug("recording started", zap.String("recording.id", s.id), zap.String("mime_type", mimeType))
	return s, nil
}

// Active reports whether a session is open.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Stop ends the active session and returns its audio.
func (r *Recorder) Stop() (Recording, error) {
	s, err := r.release()
	if err != nil {
		return Recording{}, err
	}
	s.halt(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Recording{
		ID:        s.id,
		MimeType:  s.mimeType,
		Audio:     append([]byte(nil), s.buf.Bytes()...),
		StartedAt: s.started,
		Duration:  s.ended.Sub(s.started),
		Truncated: s.truncated,
	}
	r.logger.Debug("recording stopped",
		zap.String("recording.id", rec.ID),
		zap.Int("bytes", len(rec.Audio)),
		zap.Duration("duration", rec.Duration))
	return rec, nil
}

// Cancel discards the active session.
func (r *Recorder) Cancel() error {
	s, err := r.release()
	if err != nil {
		return err
	}
	s.halt(false)
	r.logger.Debug("recording canceled", zap.String("recording.id", s.id))
	return nil
}

func (r *Recorder) release() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, ErrNotRecording
	}
	s := r.active
	r.active = nil
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Done is closed when the session stops, by Stop, Cancel or a limit.
func (s *Session) Done() <-chan struct{} { return s.done }

// Write appends a chunk. A chunk that would exceed the size limit stops the
// session and is dropped.
func (s *Session) Write(chunk []byte) (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrSessionStopped
	}
	if int64(s.buf.Len()+len(chunk)) > s.maxBytes {
		s.mu.Unlock()
		s.halt(true)
		s.logger.Warn("recording reached maximum size", zap.String("recording.id", s.id), zap.Int64("max_bytes", s.maxBytes))
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, s.maxBytes)
	}
	n, _ := s.buf.Write(chunk)
	s.mu.Unlock()
	return n, nil
}

// halt stops the session once. It reports whether this call stopped it.
func (s *Session) halt(limit bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	s.truncated = limit
	s.ended = time.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.done)
	return true
}
