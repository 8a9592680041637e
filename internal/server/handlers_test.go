package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
)

// TestHealthHandler tests the health handler function in isolation.
func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HealthHandler(rr, httptest.NewRequest(method, "/", http.NoBody))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "linechat server is running!", rr.Body.String())
		})
	}
}

func newTestHTTPServer(t *testing.T, hub *chat.Hub, reg *prometheus.Registry) *httptest.Server {
	t.Helper()
	cfg := *NewConfig()
	cfg.MaxMessageSize = 64
	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv := httptest.NewServer(SetupRoutes(hub, cfg, gatherer, testLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: ioTimeout}
	conn, resp, err := dialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readWS(t *testing.T, conn *websocket.Conn, want string) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", want)
		if kind == websocket.TextMessage && strings.Contains(string(data), want) {
			return string(data)
		}
	}
}

// TestWebSocketGateway verifies a browser client shares the hub with TCP
// clients, one text frame per line.
func TestWebSocketGateway(t *testing.T) {
	hub := startHub(t)
	srv := newTestHTTPServer(t, hub, nil)
	l := startListener(t, hub, *NewConfig())

	ws, _, err := dialWS(t, srv, "http://localhost:8080")
	require.NoError(t, err)
	readWS(t, ws, "Welcome to the chat")

	tcp := dialClient(t, l.Addr())
	tcp.expect(t, "Welcome to the chat")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("/nickname web")))
	readWS(t, ws, "Nickname changed to web")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hi from the browser")))
	assert.Equal(t, "web: hi from the browser", tcp.expect(t, "browser"))

	tcp.send(t, "/private web psst")
	assert.Equal(t, "[private] "+tcp.conn.LocalAddr().String()+": psst", readWS(t, ws, "psst"))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 200))))
	tcp.expect(t, "web left the chat")
}

func TestWebSocketGatewayRejectsRequests(t *testing.T) {
	hub := startHub(t)
	srv := newTestHTTPServer(t, hub, nil)

	_, resp, err := dialWS(t, srv, "http://evil.example")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	post, err := http.Post(srv.URL+"/ws", "text/plain", http.NoBody)
	require.NoError(t, err)
	defer post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestStatsAndMetricsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub, err := chat.NewHub(chat.WithLogger(testLogger()), chat.WithMetrics(chat.NewMetrics(reg)))
	require.NoError(t, err)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(ioTimeout) })

	srv := newTestHTTPServer(t, hub, reg)
	l := startListener(t, hub, *NewConfig())

	client := dialClient(t, l.Addr())
	client.expect(t, "Welcome")
	client.send(t, "/nickname carol")
	client.expect(t, "Nickname changed")
	client.send(t, "hello")
	client.expect(t, "carol: hello")

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var stats chat.Stats
	require.NoError(t, sonic.Unmarshal(body, &stats))
	assert.Equal(t, chat.Stats{Sessions: 1, Nicknames: []string{"carol"}}, stats)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	text, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "linechat_sessions 1")
	assert.Contains(t, string(text), `linechat_chat_messages_total{outcome="broadcast"} 1`)
	assert.Contains(t, string(text), `linechat_commands_total{command="nickname"} 1`)
}

func TestStatsHandlerAfterShutdown(t *testing.T) {
	hub, err := chat.NewHub(chat.WithLogger(testLogger()))
	require.NoError(t, err)
	go hub.Run()
	require.NoError(t, hub.Shutdown(ioTimeout))

	rr := httptest.NewRecorder()
	StatsHandler(hub, testLogger())(rr, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
