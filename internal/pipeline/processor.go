// Package pipeline runs a recording through transcription, task extraction,
// local storage and the optional workspace push.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/fyrsmithlabs/voicetask/internal/capture"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/fyrsmithlabs/voicetask/internal/scrub"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/fyrsmithlabs/voicetask/internal/workspace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when Process is called while a run is in flight.
	ErrBusy = errors.New("a recording is already being processed")

	// ErrNoAudio is returned for an empty recording.
	ErrNoAudio = errors.New("no audio recorded")

	// ErrMissingAPIKey is returned when no speech API key is configured.
	ErrMissingAPIKey = errors.New("speech API key is not configured")
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, apiKey string) (string, error)
}

// Extractor turns a transcript into task records.
type Extractor interface {
	Extract(ctx context.Context, transcript, apiKey string) ([]tasks.Record, error)
}

// Pusher creates workspace pages for task records.
type Pusher interface {
	Push(ctx context.Context, records []tasks.Record, creds workspace.Credentials, m workspace.FieldMapping) (workspace.PushResult, error)
}

// Scrubber removes secrets from a transcript.
type Scrubber interface {
	Scrub(text string) (string, []scrub.Finding)
}

// Deps are the collaborators of a Processor. Pusher, Scrubber and Tracer
// are optional.
type Deps struct {
	Transcriber Transcriber
	Extractor   Extractor
	Pusher      Pusher
	Scrubber    Scrubber
	Tracer      trace.Tracer
}

// SyncOutcome reports the workspace push of one run.
type SyncOutcome struct {
	Pages   int
	Skipped bool
	Warning string
	Err     error
	Message string
}

// Result is the outcome of one run.
type Result struct {
	RecordingID string
	Transcript  string
	Tasks       []tasks.Record
	Language    Language
	// Sync is nil when no push was attempted.
	Sync   *SyncOutcome
	Status string
}

// Processor runs one recording at a time.
type Processor struct {
	deps    Deps
	running atomic.Bool
	logger  *zap.Logger
}

// New returns a Processor.
func New(deps Deps, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("voicetask/pipeline")
	}
	return &Processor{deps: deps, logger: logger}
}

// Process transcribes rec, extracts tasks, appends them to the session's
// task list and pushes them when the workspace is configured. A failed
// transcription or extraction aborts the run; a failed push does not.
// Result.Status always carries a localized message.
func (p *Processor) Process(ctx context.Context, sess *Session, rec capture.Recording) (Result, error) {
	res := Result{RecordingID: rec.ID, Language: sess.Language.resolve("")}

	if !p.running.CompareAndSwap(false, true) {
		res.Status = ErrorMessage(res.Language, ErrBusy)
		return res, ErrBusy
	}
	defer p.running.Store(false)

	ctx = logging.WithRecordingID(ctx, rec.ID)
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("recording.id", rec.ID),
		attribute.Int("audio.bytes", len(rec.Audio)),
	)
	logger := p.logger.With(logging.ContextFields(ctx)...)

	fail := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("recording processing failed", zap.Error(err))
		res.Status = ErrorMessage(res.Language, err)
		return res, err
	}

	if len(rec.Audio) == 0 {
		return fail(ErrNoAudio)
	}
	apiKey := sess.SpeechKey()
	if apiKey == "" {
		return fail(ErrMissingAPIKey)
	}

	transcript, err := p.deps.Transcriber.Transcribe(ctx, rec.Audio, rec.MimeType, apiKey)
	if err != nil {
		return fail(err)
	}
	res.Transcript = transcript
	res.Language = sess.Language.resolve(transcript)
	span.SetAttributes(attribute.Bool("transcript.dutch", DetectDutch(transcript)))

	prompt := transcript
	if p.deps.Scrubber != nil {
		var findings []scrub.Finding
		prompt, findings = p.deps.Scrubber.Scrub(transcript)
		if len(findings) > 0 {
			span.SetAttributes(attribute.Int("transcript.redactions", len(findings)))
		}
	}

	records, err := p.deps.Extractor.Extract(ctx, prompt, apiKey)
	if err != nil {
		return fail(err)
	}
	res.Tasks = records
	sess.Tasks.Append(records...)
	span.SetAttributes(attribute.Int("tasks.count", len(records)))
	logger.Info("tasks extracted", zap.Int("count", len(records)), zap.Int("total", sess.Tasks.Len()))

	if p.deps.Pusher != nil && sess.SyncEnabled() && len(records) > 0 {
		res.Sync = p.push(ctx, sess, records, res.Language, logger)
	}

	res.Status = ReadyMessage(res.Language)
	return res, nil
}

func (p *Processor) push(ctx context.Context, sess *Session, records []tasks.Record, lang Language, logger *zap.Logger) *SyncOutcome {
	pushed, err := p.deps.Pusher.Push(ctx, records, sess.WorkspaceCredentials(), sess.Mapping)
	out := &SyncOutcome{
		Pages:   len(pushed.Pages),
		Skipped: pushed.Skipped,
		Warning: pushed.Warning,
		Err:     err,
	}
	if err != nil {
		logger.Warn("workspace sync failed", zap.Int("created", out.Pages), zap.Error(err))
	}
	out.Message = SyncMessage(lang, out)
	return out
}
