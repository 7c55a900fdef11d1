package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/todosync/internal/infrastructure/config"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type running struct {
	srv     *Server
	httpURL string
	wsURL   string
	cancel  context.CancelFunc
	done    chan error
	backups string
}

func startServer(t *testing.T) *running {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Backup.Dir = t.TempDir()
	cfg.Backup.OnStart = true
	cfg.WebSocket.AcceptPoll = 50 * time.Millisecond

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	wsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		srv:     srv,
		httpURL: "http://" + httpLn.Addr().String(),
		wsURL:   "ws://" + wsLn.Addr().String() + "/",
		cancel:  cancel,
		done:    make(chan error, 1),
		backups: cfg.Backup.Dir,
	}
	go func() { r.done <- srv.Serve(ctx, httpLn, wsLn) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return r
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, c.ReadJSON(&env))
	return env
}

func TestCreateTaskReachesEveryClient(t *testing.T) {
	r := startServer(t)

	first := dial(t, r.wsURL)
	second := dial(t, r.wsURL)
	require.Eventually(t, func() bool { return r.srv.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.WriteJSON(map[string]any{
		"type":      "create_task",
		"requestId": "r1",
		"data":      map[string]any{"content": "buy milk", "tempId": "temp_1"},
	}))

	reply := read(t, first)
	require.Equal(t, "task_created", reply.Type)
	var created struct {
		Task struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"task"`
		TempID    string `json:"tempId"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(reply.Data, &created))
	assert.Equal(t, "buy milk", created.Task.Content)
	assert.Equal(t, "temp_1", created.TempID)
	assert.Equal(t, "r1", created.RequestID)
	assert.True(t, strings.HasPrefix(created.Task.ID, "task_"))

	// The originator hears the broadcast too
	assert.Equal(t, "sync_notification", read(t, first).Type)

	note := read(t, second)
	require.Equal(t, "sync_notification", note.Type)
	var sync struct {
		Action string `json:"action"`
		Task   struct {
			ID string `json:"id"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(note.Data, &sync))
	assert.Equal(t, "create", sync.Action)
	assert.Equal(t, created.Task.ID, sync.Task.ID)

	// The REST surface sees the same store
	resp, err := http.Get(r.httpURL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), created.Task.ID)
}

func TestRESTMutationNotifiesSockets(t *testing.T) {
	r := startServer(t)

	c := dial(t, r.wsURL)
	require.Eventually(t, func() bool { return r.srv.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(r.httpURL+"/api/tasks", "application/json", strings.NewReader(`{"content":"from rest"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	note := read(t, c)
	assert.Equal(t, "sync_notification", note.Type)
	assert.Contains(t, string(note.Data), "from rest")
}

func TestUnknownTypeReturnsError(t *testing.T) {
	r := startServer(t)
	c := dial(t, r.wsURL)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	env := read(t, c)
	assert.Equal(t, "error", env.Type)
	assert.Contains(t, string(env.Data), "PROCESS_ERROR")
}

func TestHealthMetricsAndStartupBackup(t *testing.T) {
	r := startServer(t)

	resp, err := http.Get(r.httpURL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(r.httpURL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "todosync_")

	entries, err := os.ReadDir(r.backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "backup_"))
}

func TestShutdownClosesClients(t *testing.T) {
	r := startServer(t)
	c := dial(t, r.wsURL)
	require.Eventually(t, func() bool { return r.srv.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	r.cancel()
	select {
	case err := <-r.done:
		assert.NoError(t, err)
		r.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, r.srv.Clients())
}

func TestNewServerRequiresConfig(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestNewServerRejectsBadTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Reminder.Timezone = "Not/AZone"
	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
