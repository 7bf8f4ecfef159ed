// Package transcription sends recorded audio to a Whisper-compatible
// speech-to-text endpoint.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "whisper-1"
	defaultPrompt  = "This recording may contain tasks, to-do items, and reminders in various languages."
	defaultTimeout = 60 * time.Second
	defaultRate    = 20.0 // requests per minute
	defaultBurst   = 3

	serviceName = "speech"
)

// ErrEmptyTranscription is returned when the service hears no speech.
// Callers must not run extraction on an empty transcript.
var ErrEmptyTranscription = errors.New("no speech detected")

// Config configures a Client. Zero values take defaults.
type Config struct {
	BaseURL   string
	Model     string
	Prompt    string
	Timeout   time.Duration
	RateLimit float64 // requests per minute
}

// Client calls the transcription endpoint. It never retries.
type Client struct {
	baseURL    string
	model      string
	prompt     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient returns a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.prompt == "" {
		c.prompt = defaultPrompt
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = defaultRate
	}
	c.limiter = rate.NewLimiter(rate.Limit(perMinute/60.0), defaultBurst)
	return c
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the transcript. No source language
// is forced. Errors are apierr.ErrAuth, apierr.ErrQuota,
// apierr.ErrPayloadTooLarge, apierr.ErrTimeout, *apierr.APIError or
// ErrEmptyTranscription.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType, apiKey string) (string, error) {
	ctx, span := otel.Tracer("voicetask/transcription").Start(ctx, "transcription.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("audio.mime_type", mimeType),
		attribute.Int("audio.bytes", len(audio)),
	)

	text, err := c.transcribe(ctx, audio, mimeType, apiKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (c *Client) transcribe(ctx context.Context, audio []byte, mimeType, apiKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", c.ctxError(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	body, contentType, err := c.buildForm(audio, mimeType)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.ctxError(ctx, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.ctxError(ctx, fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("transcription response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(respBody)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apierr.FromResponse(serviceName, resp.StatusCode, respBody)
	}

	text := parseText(resp.Header.Get("Content-Type"), respBody)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscription
	}
	return strings.TrimSpace(text), nil
}

// ctxError maps a deadline hit inside the client timeout onto ErrTimeout.
func (c *Client) ctxError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", serviceName, c.timeout, apierr.ErrTimeout)
	}
	return err
}

func (c *Client) buildForm(audio []byte, mimeType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if mimeType == "" {
		mimeType = "audio/webm"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, FileName(mimeType, time.Now())))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("write model: %w", err)
	}
	if err := w.WriteField("prompt", c.prompt); err != nil {
		return nil, "", fmt.Errorf("write prompt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// parseText accepts {"text": ...} JSON or a plain-text body.
func parseText(contentType string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)
	if mediaType == "application/json" || bytes.HasPrefix(trimmed, []byte("{")) {
		var r transcriptionResponse
		if err := json.Unmarshal(trimmed, &r); err == nil {
			return r.Text
		}
	}
	return string(trimmed)
}

// FileName names an upload after its capture time with an extension
// matching mimeType.
func FileName(mimeType string, at time.Time) string {
	return fmt.Sprintf("recording%d.%s", at.UnixMilli(), extension(mimeType))
}

func extension(mimeType string) string {
	base, _, _ := mime.ParseMediaType(mimeType)
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	default:
		return "webm"
	}
}
