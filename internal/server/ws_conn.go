package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/chat"
)

const closeGracePeriod = time.Second

// wsConn carries one chat line per WebSocket text frame.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSConn(conn *websocket.Conn, maxMessageSize int, writeTimeout time.Duration) *wsConn {
	conn.SetReadLimit(int64(maxMessageSize))
	return &wsConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				return "", chat.ErrMessageTooLong
			case websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived):
				return "", io.EOF
			default:
				return "", err
			}
		}
		if kind != websocket.TextMessage {
			continue
		}
		line := strings.TrimRight(string(data), "\r\n")
		return strings.ToValidUTF8(line, "\uFFFD"), nil
	}
}

func (c *wsConn) WriteLine(payload string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// Close sends a normal close frame before dropping the connection.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
