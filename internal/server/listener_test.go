package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
)

const ioTimeout = 2 * time.Second

type tcpClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialClient(t *testing.T, addr net.Addr) *tcpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &tcpClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

// expect reads lines until one contains want.
func (c *tcpClient) expect(t *testing.T, want string) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err, "waiting for %q", want)
		if strings.Contains(line, want) {
			return strings.TrimSuffix(line, "\n")
		}
	}
}

func startHub(t *testing.T) *chat.Hub {
	t.Helper()
	hub, err := chat.NewHub(chat.WithLogger(testLogger()))
	require.NoError(t, err)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(ioTimeout) })
	return hub
}

func startListener(t *testing.T, hub *chat.Hub, cfg Config) *Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	l := NewListener(ln, hub, cfg, testLogger())
	served := make(chan error, 1)
	go func() { served <- l.Serve() }()
	t.Cleanup(func() {
		_ = l.Close()
		select {
		case err := <-served:
			assert.ErrorIs(t, err, ErrListenerClosed)
		case <-time.After(ioTimeout):
			t.Error("Serve did not return after Close")
		}
	})
	return l
}

// TestListenerChatOverTCP runs the two-client rename scenario over real
// loopback connections.
func TestListenerChatOverTCP(t *testing.T) {
	hub := startHub(t)
	l := startListener(t, hub, *NewConfig())

	first := dialClient(t, l.Addr())
	first.expect(t, "Welcome to the chat")
	second := dialClient(t, l.Addr())
	second.expect(t, "Welcome to the chat")

	firstNick := first.conn.LocalAddr().String()
	first.expect(t, second.conn.LocalAddr().String()+" joined the chat")

	first.send(t, "hello")
	assert.Equal(t, firstNick+": hello", second.expect(t, "hello"))

	first.send(t, "/nickname bob")
	assert.Contains(t, first.expect(t, "Nickname changed"), "bob")

	first.send(t, "again\r")
	assert.Equal(t, "bob: again", second.expect(t, "again"))

	first.send(t, "quit")
	assert.Equal(t, chat.FarewellToken, first.expect(t, chat.FarewellToken))
	second.expect(t, "bob left the chat")
}

func TestListenerClosesOnLongLine(t *testing.T) {
	hub := startHub(t)
	cfg := *NewConfig()
	cfg.MaxMessageSize = 32
	l := startListener(t, hub, cfg)

	observer := dialClient(t, l.Addr())
	observer.expect(t, "Welcome")
	noisy := dialClient(t, l.Addr())
	noisy.expect(t, "Welcome")

	noisy.send(t, strings.Repeat("a", 100))
	observer.expect(t, noisy.conn.LocalAddr().String()+" left the chat")
}

// TestListenerMaxConnections verifies a connection beyond the limit is not
// served until a slot frees up.
func TestListenerMaxConnections(t *testing.T) {
	hub := startHub(t)
	cfg := *NewConfig()
	cfg.MaxConnections = 1
	l := startListener(t, hub, cfg)

	first := dialClient(t, l.Addr())
	first.expect(t, "Welcome")

	second := dialClient(t, l.Addr())
	require.NoError(t, second.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := second.reader.ReadString('\n')
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	first.send(t, "quit")
	second.expect(t, "Welcome")
}

func TestListenerShutdown(t *testing.T) {
	hub, err := chat.NewHub(chat.WithLogger(testLogger()))
	require.NoError(t, err)
	go hub.Run()
	l := startListener(t, hub, *NewConfig())

	client := dialClient(t, l.Addr())
	client.expect(t, "Welcome")

	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "Close is idempotent")
	require.NoError(t, hub.Shutdown(ioTimeout))
	client.expect(t, "Server is shutting down")
	client.expect(t, chat.FarewellToken)
	require.NoError(t, l.Wait(ioTimeout))

	_, err = net.DialTimeout("tcp", l.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestListenRejectsBusyAddress(t *testing.T) {
	hub := startHub(t)
	l := startListener(t, hub, *NewConfig())

	_, err := Listen(l.Addr().String(), hub, *NewConfig(), testLogger())
	assert.Error(t, err)
}
