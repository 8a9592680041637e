package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

// lineConn frames a TCP stream as newline-delimited UTF-8 lines.
type lineConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	maxSize      int
	writeTimeout time.Duration
}

func newLineConn(conn net.Conn, maxMessageSize int, writeTimeout time.Duration) *lineConn {
	scanner := bufio.NewScanner(conn)
	// Room for a "\r\n" terminator; the bound itself is checked per line.
	scanner.Buffer(make([]byte, 0, min(maxMessageSize+2, 4096)), maxMessageSize+2)
	return &lineConn{
		conn:         conn,
		scanner:      scanner,
		maxSize:      maxMessageSize,
		writeTimeout: writeTimeout,
	}
}

func (c *lineConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		switch {
		case err == nil:
			return "", io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return "", chat.ErrMessageTooLong
		default:
			return "", err
		}
	}
	line := strings.TrimSuffix(c.scanner.Text(), "\r")
	if len(line) > c.maxSize {
		return "", chat.ErrMessageTooLong
	}
	return strings.ToValidUTF8(line, "\uFFFD"), nil
}

func (c *lineConn) WriteLine(payload string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, payload+"\n")
	return err
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}

func (c *lineConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
