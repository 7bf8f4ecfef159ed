package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{BaseURL: url, Timeout: timeout, RateLimit: 6000}, nil)
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, defaultPrompt, r.FormValue("prompt"))
		assert.Empty(t, r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("fake-audio"), data)
		assert.Regexp(t, `^recording\d+\.webm$`, header.Filename)
		assert.Equal(t, "audio/webm", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  Bel Jan morgen over het project  "}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL, time.Second).Transcribe(context.Background(), []byte("fake-audio"), "audio/webm", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "Bel Jan morgen over het project", text)
}

func TestTranscribe_PlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Call Jan tomorrow\n"))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL, time.Second).Transcribe(context.Background(), []byte("a"), "audio/wav", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "Call Jan tomorrow", text)
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "empty text", status: 200, body: `{"text":""}`, want: ErrEmptyTranscription},
		{name: "whitespace text", status: 200, body: `{"text":"   \n"}`, want: ErrEmptyTranscription},
		{name: "unauthorized", status: 401, body: `{"error":{"message":"Incorrect API key"}}`, want: apierr.ErrAuth},
		{name: "quota", status: 429, body: `{"error":{"message":"quota"}}`, want: apierr.ErrQuota},
		{name: "too large", status: 413, body: `too big`, want: apierr.ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, time.Second).Transcribe(context.Background(), []byte("a"), "audio/webm", "sk-test")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTranscribe_UnknownAPIError(t *testing.T) {
	t.Run("json envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid file format."}}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, time.Second).Transcribe(context.Background(), []byte("a"), "audio/webm", "sk-test")
		var apiErr *apierr.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Invalid file format.", apiErr.Message)
	})

	t.Run("raw body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, time.Second).Transcribe(context.Background(), []byte("a"), "audio/webm", "sk-test")
		var apiErr *apierr.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "<html>bad gateway</html>", apiErr.Body)
	})
}

func TestTranscribe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(server.URL, 50*time.Millisecond).Transcribe(context.Background(), []byte("a"), "audio/webm", "sk-test")
	assert.ErrorIs(t, err, apierr.ErrTimeout)
}

func TestTranscribe_CallerCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(server.URL, 5*time.Second).Transcribe(ctx, []byte("a"), "audio/webm", "sk-test")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apierr.ErrTimeout)
}

func TestFileName(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	assert.Equal(t, "recording1700000000000.webm", FileName("audio/webm;codecs=opus", at))
	assert.Equal(t, "recording1700000000000.wav", FileName("audio/wav", at))
	assert.Equal(t, "recording1700000000000.m4a", FileName("audio/mp4", at))
	assert.Equal(t, "recording1700000000000.webm", FileName("", at))
}
