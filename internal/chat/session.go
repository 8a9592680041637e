package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Tyrowin/linechat/internal/moderation"
)

// Session is the server-side state of one client connection.
//
// Nickname, the embedded moderation counters and the closed flag belong to
// the hub goroutine. The connection is written only by writePump.
type Session struct {
	ID       uuid.UUID
	Addr     string
	Nickname string
	moderation.State

	conn      Conn
	send      chan string
	closed    bool
	closeOnce sync.Once
	connOnce  sync.Once
	written   chan struct{}
}

func newSession(conn Conn, queueSize int) *Session {
	addr := ""
	if conn != nil && conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	return &Session{
		ID:       uuid.New(),
		Addr:     addr,
		Nickname: addr,
		conn:     conn,
		send:     make(chan string, queueSize),
		written:  make(chan struct{}),
	}
}

// closeQueue stops the writer once it has flushed what is already queued.
func (s *Session) closeQueue() {
	s.closeOnce.Do(func() {
		s.closed = true
		close(s.send)
	})
}

// closeConn closes the transport exactly once.
func (s *Session) closeConn(logger *slog.Logger) {
	s.connOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !IsExpectedCloseError(err) {
			logger.Warn("close connection failed", "remote", s.Addr, "error", err)
		}
	})
}

// writePump drains the send queue onto the transport. It closes the transport
// when the queue is closed or a write fails.
func (s *Session) writePump(logger *slog.Logger) {
	defer func() {
		s.closeConn(logger)
		close(s.written)
	}()

	for payload := range s.send {
		if err := s.conn.WriteLine(payload); err != nil {
			if !IsExpectedCloseError(err) {
				logger.Warn("write to client failed", "remote", s.Addr, "error", err)
			}
			return
		}
	}
}
