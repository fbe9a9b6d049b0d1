package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
)

func TestRegistryDispatch(t *testing.T) {
	connections := storage.NewMemoryConnectionStore()
	registry := NewRegistry(connections)
	registry.Register(NewCoreDispatcher())

	result, err := registry.Dispatch(context.Background(), "acct1", "core", "log", map[string]interface{}{
		"message": "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result["message"])

	_, err = registry.Dispatch(context.Background(), "acct1", "telegram", "send", nil)
	assert.ErrorIs(t, err, ErrUnknownIntegration)

	_, err = registry.Dispatch(context.Background(), "acct1", "core", "launch_rocket", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	assert.Contains(t, registry.Names(), "core")
}

func TestRegistryResolvesConnectionSettings(t *testing.T) {
	connections := storage.NewMemoryConnectionStore()
	require.NoError(t, connections.SaveConnection(models.IntegrationConnection{
		ID:          "conn1",
		AccountID:   "acct1",
		Integration: "spy",
		Settings:    map[string]interface{}{"token": "abc123"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))

	registry := NewRegistry(connections)
	spy := &spyDispatcher{}
	registry.Register(spy)

	_, err := registry.Dispatch(context.Background(), "acct1", "spy", "noop", nil)
	require.NoError(t, err)
	require.NotNil(t, spy.lastRequest.Settings)
	assert.Equal(t, "abc123", spy.lastRequest.Settings["token"])

	// A different tenant gets no settings
	_, err = registry.Dispatch(context.Background(), "acct2", "spy", "noop", nil)
	require.NoError(t, err)
	assert.Nil(t, spy.lastRequest.Settings)
}

type spyDispatcher struct {
	lastRequest Request
}

func (d *spyDispatcher) Name() string { return "spy" }

func (d *spyDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	d.lastRequest = req
	return map[string]interface{}{}, nil
}

func TestCoreTransform(t *testing.T) {
	core := NewCoreDispatcher()

	result, err := core.Dispatch(context.Background(), Request{
		Action: "transform",
		Config: map[string]interface{}{
			"script": `({total: data.a + data.b})`,
			"data":   map[string]interface{}{"a": 2, "b": 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result["total"])

	// Non-object completion values are wrapped
	result, err = core.Dispatch(context.Background(), Request{
		Action: "transform",
		Config: map[string]interface{}{
			"script": `"done"`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result["result"])

	_, err = core.Dispatch(context.Background(), Request{
		Action: "transform",
		Config: map[string]interface{}{
			"script": `this is not javascript`,
		},
	})
	assert.Error(t, err)

	_, err = core.Dispatch(context.Background(), Request{
		Action: "transform",
		Config: map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestCoreDelay(t *testing.T) {
	core := NewCoreDispatcher()

	start := time.Now()
	result, err := core.Dispatch(context.Background(), Request{
		Action: "delay",
		Config: map[string]interface{}{"seconds": 0.05},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.05, result["delayed_seconds"])
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Cancellation interrupts the delay
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = core.Dispatch(ctx, Request{
		Action: "delay",
		Config: map[string]interface{}{"seconds": 10},
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = core.Dispatch(context.Background(), Request{
		Action: "delay",
		Config: map[string]interface{}{"seconds": "soon"},
	})
	assert.Error(t, err)
}

func TestHTTPDispatcherRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token123", r.Header.Get("X-Api-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["op"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer server.Close()

	dispatcher := NewHTTPDispatcher()
	result, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "request",
		Config: map[string]interface{}{
			"url":    server.URL,
			"method": "post",
			"headers": map[string]interface{}{
				"X-Api-Key": "token123",
			},
			"body": map[string]interface{}{"op": "ping"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result["status_code"])

	body, ok := result["body"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, body["ok"])

	_, err = dispatcher.Dispatch(context.Background(), Request{
		Action: "request",
		Config: map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestSlackSendMessageWebhook(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewSlackDispatcher()
	result, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "send_message",
		Config: map[string]interface{}{"text": "deploy finished"},
		Settings: map[string]interface{}{
			"webhook_url": server.URL,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["sent"])
	assert.Equal(t, "deploy finished", received["text"])
}

func TestSlackSendMessageAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "ts": "123.456"})
	}))
	defer server.Close()

	original := slackAPIURL
	slackAPIURL = server.URL
	defer func() { slackAPIURL = original }()

	dispatcher := NewSlackDispatcher()
	result, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "send_message",
		Config: map[string]interface{}{
			"text":    "hello",
			"channel": "#general",
		},
		Settings: map[string]interface{}{
			"bot_token": "xoxb-test",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "123.456", result["ts"])
}

func TestSlackRequiresConnection(t *testing.T) {
	dispatcher := NewSlackDispatcher()
	_, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "send_message",
		Config: map[string]interface{}{"text": "hello"},
	})
	assert.Error(t, err)
}

func TestNotionCreatePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret_test", r.Header.Get("Authorization"))
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		parent, _ := payload["parent"].(map[string]interface{})
		assert.Equal(t, "parent-1", parent["page_id"])

		json.NewEncoder(w).Encode(map[string]interface{}{"id": "page-1"})
	}))
	defer server.Close()

	original := notionAPIURL
	notionAPIURL = server.URL
	defer func() { notionAPIURL = original }()

	dispatcher := NewNotionDispatcher()
	result, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "create_page",
		Config: map[string]interface{}{
			"parent_id": "parent-1",
			"title":     "Weekly report",
			"content":   "All systems nominal",
		},
		Settings: map[string]interface{}{
			"token": "secret_test",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", result["page_id"])
}

func TestGmailRequiresConnection(t *testing.T) {
	dispatcher := NewGmailDispatcher()
	_, err := dispatcher.Dispatch(context.Background(), Request{
		Action: "send_email",
		Config: map[string]interface{}{"to": "a@example.com"},
	})
	assert.Error(t, err)

	// Missing credentials in the stored connection
	_, err = dispatcher.Dispatch(context.Background(), Request{
		Action:   "send_email",
		Config:   map[string]interface{}{"to": "a@example.com"},
		Settings: map[string]interface{}{"smtp_host": "smtp.example.com"},
	})
	assert.Error(t, err)
}
