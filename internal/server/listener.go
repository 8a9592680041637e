package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/linechat/internal/chat"
)

// ErrListenerClosed is returned by Serve after Close.
var ErrListenerClosed = errors.New("server: listener closed")

const acceptRetryDelay = 50 * time.Millisecond

// Listener accepts TCP connections and hands each one to the hub.
type Listener struct {
	ln      net.Listener
	hub     *chat.Hub
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
	conns   sizedwaitgroup.SizedWaitGroup

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Listen binds addr and returns a Listener ready to Serve.
func Listen(addr string, hub *chat.Hub, cfg Config, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewListener(ln, hub, cfg, logger), nil
}

// NewListener wraps an already bound listener.
func NewListener(ln net.Listener, hub *chat.Hub, cfg Config, logger *slog.Logger) *Listener {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		ln:      ln,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		limiter: newAcceptLimiter(cfg.AcceptLimit),
		conns:   sizedwaitgroup.New(cfg.MaxConnections),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until Close. Each accepted connection gets its
// own goroutine; accept failures are logged and never end the loop.
func (l *Listener) Serve() error {
	l.logger.Info("chat listener started", "addr", l.Addr().String(), "max_connections", l.cfg.MaxConnections)

	for {
		if err := l.limiter.Wait(l.ctx); err != nil {
			return ErrListenerClosed
		}
		if err := l.conns.AddWithContext(l.ctx); err != nil {
			return ErrListenerClosed
		}

		conn, err := l.ln.Accept()
		if err != nil {
			l.conns.Done()
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrListenerClosed
			}
			l.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer l.conns.Done()

	l.logger.Debug("connection accepted", "remote", conn.RemoteAddr().String())
	lc := newLineConn(conn, l.cfg.MaxMessageSize, l.cfg.WriteTimeout())
	if err := l.hub.Serve(lc); err != nil {
		l.logger.Debug("connection refused by hub", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// Close stops accepting. Live sessions are left to the hub's shutdown.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		if cerr := l.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}

// Wait blocks until every accepted connection has finished or timeout.
func (l *Listener) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("timed out waiting for connections to close")
		return context.DeadlineExceeded
	}
}
