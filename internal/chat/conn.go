package chat

import (
	"errors"
	"io"
	"net"
	"strings"
)

// ErrMessageTooLong is returned by a Conn when a peer sends a line above the
// configured size bound. The session is terminated.
var ErrMessageTooLong = errors.New("chat: message exceeds size limit")

// Conn is a framed, bidirectional text transport for one client.
//
// ReadLine is only called from the session's reader goroutine and WriteLine
// only from its writer goroutine. Close may be called concurrently with both.
type Conn interface {
	// ReadLine returns the next logical message without its line terminator.
	ReadLine() (string, error)
	// WriteLine writes one payload as a single logical message.
	WriteLine(payload string) error
	Close() error
	RemoteAddr() net.Addr
}

// IsExpectedCloseError checks if an error is expected during connection closure.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
