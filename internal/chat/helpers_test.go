package chat

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory Conn: tests push lines into in and read payloads from out.
type fakeConn struct {
	addr       net.Addr
	in         chan string
	out        chan string
	closed     chan struct{}
	once       sync.Once
	closes     atomic.Int32
	failWrites atomic.Bool
}

func newFakeConn(port int) *fakeConn {
	return &fakeConn{
		addr:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		in:     make(chan string, 64),
		out:    make(chan string, 512),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) WriteLine(payload string) error {
	if c.failWrites.Load() {
		return errors.New("write: injected failure")
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	select {
	case c.out <- payload:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return c.addr
}

func (c *fakeConn) say(line string) {
	c.in <- line
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, options ...Option) *Hub {
	t.Helper()
	h, err := NewHub(append([]Option{WithLogger(discardLogger())}, options...)...)
	require.NoError(t, err)
	go h.Run()
	t.Cleanup(func() { _ = h.Shutdown(waitTimeout) })
	return h
}

// connect serves a fresh fake connection and waits for its greeting.
func connect(t *testing.T, h *Hub, port int) *fakeConn {
	t.Helper()
	return attach(t, h, newFakeConn(port))
}

// attach serves c and waits for its greeting.
func attach(t *testing.T, h *Hub, c *fakeConn) *fakeConn {
	t.Helper()
	go func() { _ = h.Serve(c) }()
	expect(t, c, "Welcome to the chat")
	return c
}

func rename(t *testing.T, c *fakeConn, nickname string) {
	t.Helper()
	c.say("/nickname " + nickname)
	expect(t, c, "Nickname changed to "+nickname)
}

// expect reads payloads until one contains want and returns it.
func expect(t *testing.T, c *fakeConn, want string) string {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case payload := <-c.out:
			if strings.Contains(payload, want) {
				return payload
			}
		case <-deadline:
			t.Fatalf("%s: no payload containing %q", c.addr, want)
			return ""
		}
	}
}

// refute fails if a payload containing unwanted arrives within wait.
func refute(t *testing.T, c *fakeConn, unwanted string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case payload := <-c.out:
			if strings.Contains(payload, unwanted) {
				t.Fatalf("%s: unexpected payload %q", c.addr, payload)
			}
		case <-deadline:
			return
		}
	}
}

// onHub runs fn on the hub goroutine and waits for it.
func onHub(t *testing.T, h *Hub, fn func()) {
	t.Helper()
	done := make(chan struct{})
	h.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("hub did not run action")
	}
}
