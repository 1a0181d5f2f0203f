package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(NewRouter(Routes{
		WebSocket:  &WebSocketHandler{NewRelay: stubFactory},
		Transcribe: &TranscribeHandler{NewRelay: stubFactory},
	}, nil))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestWebSocketSessionLoadsAndTranscribes(t *testing.T) {
	t.Parallel()

	conn := dial(t, newTestServer(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"load","data":{"modelName":"tiny"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcribe","data":{"audioUrl":"a.wav"}}`)))

	var types []string
	var last map[string]any
	for len(types) < 6 {
		last = readEvent(t, conn)
		types = append(types, last["type"].(string))
	}

	require.Equal(t, []string{"status", "loadProgress", "loadProgress", "modelLoaded", "status", "result"}, types)
	require.Equal(t, map[string]any{"text": "heard a.wav"}, last["result"])
}

func TestWebSocketSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	first := dial(t, server)
	second := dial(t, server)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(`{"type":"load","data":{"modelName":"tiny"}}`)))
	for i := 0; i < 4; i++ {
		readEvent(t, first)
	}

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcribe","data":{"audioUrl":"a.wav"}}`)))
	event := readEvent(t, second)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "model not loaded", event["error"])
}

func TestWebSocketMalformedCommandKeepsSessionOpen(t *testing.T) {
	t.Parallel()

	conn := dial(t, newTestServer(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`nope`)))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "stop"}))

	event := readEvent(t, conn)
	require.Equal(t, "error", event["type"])
	require.Contains(t, event["error"], "invalid command")
	require.Equal(t, "stopped", readEvent(t, conn)["type"])
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, "ok", payload["status"])
}
