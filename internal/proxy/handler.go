package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Envelope wraps every forwarded upstream response.
type Envelope struct {
	Success   bool            `json:"success"`
	Status    int             `json:"status"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// ErrorResponse is returned when the proxy itself rejects or fails a request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

const maxRequestBody = 1 << 20

// outcome labels for upstream metrics
const (
	outcomeOK          = "ok"
	outcomeUpstreamErr = "upstream_error"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"
	outcomeFailed      = "failed"
)

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func (s *Server) handleProxy(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()

	endpoint := strings.TrimLeft(c.QueryParam("endpoint"), "/")
	if endpoint == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Missing endpoint parameter",
			Message: "Please provide an endpoint parameter (e.g., ?endpoint=databases/DATABASE_ID)",
		})
	}
	if strings.Contains(endpoint, "..") || strings.Contains(endpoint, "://") {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid endpoint parameter",
			Message: "The endpoint must be a path relative to the workspace API",
		})
	}

	auth := req.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Missing or invalid authorization header",
			Message: "Please provide a valid Bearer token in the Authorization header",
		})
	}

	var body []byte
	if req.Method != http.MethodGet && req.Body != nil {
		b, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBody+1))
		if err != nil || len(b) > maxRequestBody || (len(bytes.TrimSpace(b)) > 0 && !json.Valid(b)) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Message: "Request body must be valid JSON",
			})
		}
		if len(bytes.TrimSpace(b)) > 0 {
			body = b
		}
	}

	upCtx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	status, data, err := s.forward(upCtx, req.Method, endpoint, auth, body)
	s.metrics.duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		return s.upstreamFailure(c, upCtx, err)
	}

	ok := status >= 200 && status <= 299
	if ok {
		s.metrics.requests.WithLabelValues(req.Method, outcomeOK).Inc()
	} else {
		s.metrics.requests.WithLabelValues(req.Method, outcomeUpstreamErr).Inc()
	}
	if req.Method == http.MethodGet && ok {
		c.Response().Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.config.CacheMaxAge.Seconds())))
	}
	return c.JSON(status, Envelope{
		Success:   ok,
		Status:    status,
		Data:      data,
		Timestamp: timestamp(),
	})
}

// forward sends one request upstream and returns its status and body as
// JSON. Non-JSON bodies come back as a JSON string.
func (s *Server) forward(ctx context.Context, method, endpoint, auth string, body []byte) (int, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	up, err := http.NewRequestWithContext(ctx, method, s.config.UpstreamURL+"/"+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create upstream request: %w", err)
	}
	up.Header.Set("Authorization", auth)
	up.Header.Set("Notion-Version", s.config.Version)
	up.Header.Set("Content-Type", "application/json")
	up.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(up)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream response: %w", err)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") && json.Valid(raw) {
		return resp.StatusCode, raw, nil
	}
	text, _ := json.Marshal(string(raw))
	return resp.StatusCode, text, nil
}

func (s *Server) upstreamFailure(c echo.Context, upCtx context.Context, err error) error {
	method := c.Request().Method
	logger := s.logger.With(logging.ContextFields(c.Request().Context())...)

	switch {
	case errors.Is(upCtx.Err(), context.DeadlineExceeded):
		s.metrics.requests.WithLabelValues(method, outcomeTimeout).Inc()
		logger.Warn("workspace API timed out", zap.Duration("timeout", s.config.UpstreamTimeout))
		return c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error:   "Request timeout",
			Message: "The request to Notion API timed out. Please try again.",
		})
	case isConnectFailure(err):
		s.metrics.requests.WithLabelValues(method, outcomeUnavailable).Inc()
		logger.Warn("workspace API unreachable", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Service unavailable",
			Message: "Unable to connect to Notion API. Please check your internet connection.",
		})
	default:
		s.metrics.requests.WithLabelValues(method, outcomeFailed).Inc()
		logger.Error("workspace proxy error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "Internal server error",
			Message:   "An unexpected error occurred while processing your request.",
			Timestamp: timestamp(),
		})
	}
}

// isConnectFailure reports DNS failures and refused connections.
func isConnectFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
