// Package workspace pushes task records to a remote workspace database and
// reads its schema. Requests go through the workspace proxy when one is
// configured, otherwise straight to the API.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	defaultVersion = "2022-06-28"
	defaultTimeout = 30 * time.Second

	serviceName = "workspace"
)

// Warnings reported by Push when nothing was sent.
const (
	WarnMissingCredentials = "workspace API key or database ID is missing"
	WarnMissingMapping     = "field mapping is not configured"
)

// Config configures a Client. Zero values take defaults.
type Config struct {
	ProxyURL string
	BaseURL  string
	Version  string
	Timeout  time.Duration
}

// Credentials identify the target database.
type Credentials struct {
	APIKey     string
	DatabaseID string
}

// Page is a created remote page.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PushResult reports what Push did. Skipped is set with a Warning when the
// push never started.
type PushResult struct {
	Pages   []Page
	Skipped bool
	Warning string
}

// Client talks to the workspace API.
type Client struct {
	proxyURL string
	baseURL  string
	version  string
	timeout  time.Duration
	base     http.RoundTripper
	logger   *zap.Logger
}

// NewClient returns a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		proxyURL: cfg.ProxyURL,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		version:  cfg.Version,
		timeout:  cfg.Timeout,
		base:     http.DefaultTransport,
		logger:   logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.version == "" {
		c.version = defaultVersion
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Push creates one page per record, in order. It stops at the first
// failure; pages created before it stay in place.
func (c *Client) Push(ctx context.Context, records []tasks.Record, creds Credentials, m FieldMapping) (PushResult, error) {
	if creds.APIKey == "" || creds.DatabaseID == "" {
		c.logger.Warn(WarnMissingCredentials)
		return PushResult{Skipped: true, Warning: WarnMissingCredentials}, nil
	}
	if !m.Configured() {
		c.logger.Warn(WarnMissingMapping)
		return PushResult{Skipped: true, Warning: WarnMissingMapping}, nil
	}

	ctx, span := otel.Tracer("voicetask/workspace").Start(ctx, "workspace.push")
	defer span.End()
	span.SetAttributes(attribute.Int("tasks.count", len(records)))

	var result PushResult
	for i, r := range records {
		body, err := json.Marshal(PageRequest(r, creds.DatabaseID, m))
		if err != nil {
			return result, fmt.Errorf("marshal page %d: %w", i, err)
		}

		data, err := c.do(ctx, http.MethodPost, "pages", creds.APIKey, body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Error("failed to create workspace page",
				zap.Int("index", i),
				zap.Int("created", len(result.Pages)),
				zap.Error(err))
			return result, fmt.Errorf("add task %d of %d: %w", i+1, len(records), err)
		}

		var page Page
		if err := json.Unmarshal(data, &page); err != nil {
			c.logger.Debug("unrecognized page response", zap.Error(err))
		}
		result.Pages = append(result.Pages, page)
	}

	c.logger.Info("pushed tasks to workspace", zap.Int("pages", len(result.Pages)))
	return result, nil
}

// FetchSchema returns the database schema, or nil when it cannot be read.
func (c *Client) FetchSchema(ctx context.Context, creds Credentials) *Schema {
	if creds.APIKey == "" || creds.DatabaseID == "" {
		c.logger.Warn("cannot fetch schema", zap.String("reason", WarnMissingCredentials))
		return nil
	}

	data, err := c.do(ctx, http.MethodGet, "databases/"+url.PathEscape(creds.DatabaseID), creds.APIKey, nil)
	if err != nil {
		c.logger.Warn("failed to fetch workspace schema", zap.Error(err))
		return nil
	}
	schema, err := parseSchema(data)
	if err != nil {
		c.logger.Warn("unreadable workspace schema", zap.Error(err))
		return nil
	}
	return schema
}

// proxyReply covers both the success envelope and the error body of the
// workspace proxy.
type proxyReply struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// do sends one request and returns the upstream response body.
func (c *Client) do(ctx context.Context, method, endpoint, apiKey string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + "/" + endpoint
	if c.proxyURL != "" {
		u, err := url.Parse(c.proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		q := u.Query()
		q.Set("endpoint", endpoint)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.version)

	hc := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}
	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", serviceName, c.timeout, apierr.ErrTimeout)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if c.proxyURL == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, apierr.FromResponse(serviceName, resp.StatusCode, respBody)
		}
		return respBody, nil
	}
	return unwrapProxy(resp.StatusCode, respBody)
}

func unwrapProxy(status int, body []byte) ([]byte, error) {
	var reply proxyReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, apierr.FromResponse(serviceName, status, body)
	}
	if reply.Success && status >= 200 && status <= 299 {
		return reply.Data, nil
	}
	if reply.Error != "" {
		msg := reply.Error
		if reply.Message != "" {
			msg += ": " + reply.Message
		}
		return nil, &apierr.APIError{Service: serviceName, StatusCode: status, Message: msg, Body: string(body)}
	}
	if reply.Status != 0 {
		status = reply.Status
	}
	return nil, apierr.FromResponse(serviceName, status, reply.Data)
}
