// Package extraction turns a transcript into task records using a
// chat-completion language model.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o"
	defaultTemperature = 0.3
	defaultTimeout     = 60 * time.Second
	defaultRate        = 50.0 // requests per minute
	defaultBurst       = 5

	serviceName = "language model"
)

// Config configures a Client. Zero values take defaults.
type Config struct {
	BaseURL     string
	Model       string
	Temperature *float64 // nil takes the default; 0 is honored
	Timeout     time.Duration
	RateLimit   float64 // requests per minute
	Now         func() time.Time
}

// Client calls the chat-completion endpoint. It never retries.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	now         func() time.Time
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient returns a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: defaultTemperature,
		timeout:     cfg.Timeout,
		now:         cfg.Now,
		httpClient:  &http.Client{},
		logger:      logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if cfg.Temperature != nil && *cfg.Temperature >= 0 {
		c.temperature = *cfg.Temperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = defaultRate
	}
	c.limiter = rate.NewLimiter(rate.Limit(perMinute/60.0), defaultBurst)
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract asks the model for the tasks in transcript. Records come back in
// model order, stamped with the call time.
func (c *Client) Extract(ctx context.Context, transcript, apiKey string) ([]tasks.Record, error) {
	ctx, span := otel.Tracer("voicetask/extraction").Start(ctx, "extraction.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("transcript.length", len(transcript)),
	)

	records, err := c.extract(ctx, transcript, apiKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tasks.count", len(records)))
	return records, nil
}

func (c *Client) extract(ctx context.Context, transcript, apiKey string) ([]tasks.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.ctxError(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	now := c.now()
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(now)},
			{Role: "user", Content: transcript},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.ctxError(ctx, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.ctxError(ctx, fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("chat completion response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(respBody)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.FromResponse(serviceName, resp.StatusCode, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTaskParse, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrTaskParse)
	}

	records, err := ParseTasks(chat.Choices[0].Message.Content, now)
	if err != nil {
		c.logger.Warn("unparsable model response", zap.Int("content_length", len(chat.Choices[0].Message.Content)))
		return nil, err
	}
	return records, nil
}

func (c *Client) ctxError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", serviceName, c.timeout, apierr.ErrTimeout)
	}
	return err
}
