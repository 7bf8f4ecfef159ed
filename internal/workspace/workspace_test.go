package workspace

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var (
	testCreds   = Credentials{APIKey: "secret_workspace", DatabaseID: "db123"}
	fullMapping = FieldMapping{
		TaskName:     "Name",
		Priority:     "Priority",
		DueDate:      "Due",
		Category:     "Area",
		Status:       "Status",
		StatusOption: "Inbox",
	}
	sampleTasks = []tasks.Record{
		{Description: "Jan bellen", Criticality: "hoog", DueDate: "2025-05-21", Category: "Werk"},
		{Description: "Rapport versturen", Criticality: "normaal", Category: "Werk"},
	}
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestPageProperties(t *testing.T) {
	data, err := json.Marshal(PageRequest(sampleTasks[0], "db123", fullMapping))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	parent := got["parent"].(map[string]any)
	assert.Equal(t, "db123", parent["database_id"])

	props := got["properties"].(map[string]any)
	require.Len(t, props, 5)

	title := props["Name"].(map[string]any)["title"].([]any)
	assert.Equal(t, "Jan bellen", title[0].(map[string]any)["text"].(map[string]any)["content"])

	assert.Equal(t, "hoog", props["Priority"].(map[string]any)["select"].(map[string]any)["name"])
	assert.Equal(t, "Werk", props["Area"].(map[string]any)["select"].(map[string]any)["name"])
	assert.Equal(t, "Inbox", props["Status"].(map[string]any)["select"].(map[string]any)["name"])

	start := props["Due"].(map[string]any)["date"].(map[string]any)["start"].(string)
	assert.True(t, strings.HasPrefix(start, "2025-05-21"), start)
}

func TestPageProperties_OmitsUnmapped(t *testing.T) {
	props := PageProperties(sampleTasks[1], FieldMapping{TaskName: "Name", DueDate: "Due", Status: "Status"})

	assert.Len(t, props, 1)
	assert.Contains(t, props, "Name")
}

func TestPush_Direct(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret_workspace", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))

		body := decodeBody(t, r)
		props := body["properties"].(map[string]any)
		assert.Contains(t, props, "Name")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"page","id":"page-`+string(rune('0'+n))+`","url":"https://example.test/p"}`)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, nil)
	res, err := c.Push(context.Background(), sampleTasks, testCreds, fullMapping)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, "page-1", res.Pages[0].ID)
	assert.Equal(t, "page-2", res.Pages[1].ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPush_FailsFastWithoutRollback(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"object":"error","status":400,"code":"validation_error","message":"Priority is not a property that exists."}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"ok"}`)
	}))
	defer server.Close()

	records := append(append([]tasks.Record{}, sampleTasks...), tasks.Record{Description: "third"})
	c := NewClient(Config{BaseURL: server.URL}, nil)
	res, err := c.Push(context.Background(), records, testCreds, fullMapping)

	require.Error(t, err)
	var apiErr *apierr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Priority is not a property that exists.", apiErr.Message)
	assert.Len(t, res.Pages, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPush_MissingMappingSkips(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	log := logging.NewTestLogger()
	c := NewClient(Config{BaseURL: server.URL}, log.Underlying())

	res, err := c.Push(context.Background(), sampleTasks, testCreds, FieldMapping{Priority: "Priority"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, WarnMissingMapping, res.Warning)
	assert.Zero(t, atomic.LoadInt32(&calls))
	log.AssertLogged(t, zapcore.WarnLevel, WarnMissingMapping)

	res, err = c.Push(context.Background(), sampleTasks, Credentials{APIKey: "k"}, fullMapping)
	require.NoError(t, err)
	assert.Equal(t, WarnMissingCredentials, res.Warning)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestPush_ViaProxy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notion", r.URL.Path)
		assert.Equal(t, "pages", r.URL.Query().Get("endpoint"))
		assert.Equal(t, "Bearer secret_workspace", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"success":true,"status":200,"data":{"id":"p1","url":"u"},"timestamp":"2025-05-20T10:00:00Z"}`)
	}))
	defer server.Close()

	c := NewClient(Config{ProxyURL: server.URL + "/api/notion"}, nil)
	res, err := c.Push(context.Background(), sampleTasks[:1], testCreds, fullMapping)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "p1", res.Pages[0].ID)
}

func TestPush_ViaProxyErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "upstream rejects key",
			status: http.StatusUnauthorized,
			body:   `{"success":false,"status":401,"data":{"message":"API token is invalid."}}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, apierr.ErrAuth) },
		},
		{
			name:   "proxy timeout",
			status: http.StatusRequestTimeout,
			body:   `{"error":"Request timeout","message":"The request to Notion API timed out. Please try again."}`,
			check: func(t *testing.T, err error) {
				var apiErr *apierr.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusRequestTimeout, apiErr.StatusCode)
				assert.Contains(t, apiErr.Message, "Request timeout")
			},
		},
		{
			name:   "upstream validation",
			status: http.StatusBadRequest,
			body:   `{"success":false,"status":400,"data":{"message":"body failed validation"}}`,
			check: func(t *testing.T, err error) {
				var apiErr *apierr.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "body failed validation", apiErr.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewClient(Config{ProxyURL: server.URL}, nil)
			_, err := c.Push(context.Background(), sampleTasks[:1], testCreds, fullMapping)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestPush_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := c.Push(context.Background(), sampleTasks[:1], testCreds, fullMapping)
	assert.ErrorIs(t, err, apierr.ErrTimeout)
}

const schemaJSON = `{
  "object": "database",
  "id": "db123",
  "properties": {
    "Name": {"id": "title", "type": "title", "title": {}},
    "Priority": {"id": "a", "type": "select", "select": {"options": [
      {"id": "1", "name": "hoog", "color": "red"},
      {"id": "2", "name": "normaal", "color": "blue"}
    ]}},
    "Due": {"id": "b", "type": "date", "date": {}},
    "Status": {"id": "c", "type": "select", "select": {"options": [{"name": "Inbox"}, {"name": "Done"}]}},
    "Owner": {"id": "d", "type": "people", "people": {}}
  }
}`

func TestFetchSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/databases/db123", r.URL.Path)
		_, _ = io.WriteString(w, schemaJSON)
	}))
	defer server.Close()

	schema := NewClient(Config{BaseURL: server.URL}, nil).FetchSchema(context.Background(), testCreds)
	require.NotNil(t, schema)
	assert.Len(t, schema.Properties, 5)
	assert.Equal(t, TypeTitle, schema.Properties["Name"].Type)
	assert.Equal(t, TypeOther, schema.Properties["Owner"].Type)
	assert.Equal(t, []string{"hoog", "normaal"}, schema.SelectOptions("Priority"))
	assert.Equal(t, []string{"Inbox", "Done"}, schema.SelectOptions("Status"))
	assert.Nil(t, schema.SelectOptions("Due"))
	assert.Equal(t, []string{"Priority", "Status"}, schema.Names(TypeSelect))
	assert.Equal(t, []string{"Due"}, schema.Names(TypeDate))
}

func TestFetchSchema_FailuresReturnNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"object":"error","message":"Could not find database"}`)
	}))
	c := NewClient(Config{BaseURL: server.URL}, nil)
	assert.Nil(t, c.FetchSchema(context.Background(), testCreds))
	assert.Nil(t, c.FetchSchema(context.Background(), Credentials{}))

	server.Close()
	assert.Nil(t, c.FetchSchema(context.Background(), testCreds))
}

func TestMappingStore(t *testing.T) {
	store := kv.NewMemory()
	ms := NewMappingStore(store, nil)

	assert.Equal(t, FieldMapping{}, ms.Load())

	require.NoError(t, ms.Save(fullMapping))
	assert.Equal(t, fullMapping, ms.Load())

	raw, ok, err := store.Get(MappingSlotKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"taskName":"Name"`)
	assert.Contains(t, raw, `"statusOption":"Inbox"`)

	require.NoError(t, store.Set(MappingSlotKey, "{not json"))
	assert.Equal(t, FieldMapping{}, ms.Load())
}
