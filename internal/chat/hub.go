package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Tyrowin/linechat/internal/moderation"
)

// ErrHubStopped is returned by Serve and Stats once the hub has shut down.
var ErrHubStopped = errors.New("chat: hub stopped")

type inboundLine struct {
	session *Session
	line    string
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Sessions       int      `json:"sessions"`
	Nicknames      []string `json:"nicknames"`
	PendingDelayed int      `json:"pending_delayed"`
}

// Hub owns the session registry and runs every state change on one goroutine.
type Hub struct {
	registry  *Registry
	policy    moderation.Policy
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
	sendQueue int
	commands  map[string]commandSpec
	timers    map[*clock.Timer]struct{}

	join    chan *Session
	leave   chan *Session
	inbound chan inboundLine
	actions chan func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(options ...Option) (*Hub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:  NewRegistry(),
		policy:    moderation.DefaultPolicy(),
		clock:     clock.New(),
		logger:    slog.Default(),
		sendQueue: 256,
		timers:    make(map[*clock.Timer]struct{}),
		join:      make(chan *Session),
		leave:     make(chan *Session),
		inbound:   make(chan inboundLine),
		actions:   make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(h); err != nil {
			cancel()
			return nil, err
		}
	}
	h.commands = h.commandTable()
	return h, nil
}

// Run is the hub event loop. It returns after Shutdown, having closed every
// remaining session and stopped pending delayed broadcasts.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return
		case s := <-h.join:
			h.register(s)
		case s := <-h.leave:
			h.teardown(s)
		case in := <-h.inbound:
			h.handleLine(in.session, in.line)
		case action := <-h.actions:
			action()
		}
	}
}

// Shutdown stops the event loop and waits for it to finish or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("hub shutdown initiated")
	h.cancel()

	select {
	case <-h.done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// Serve runs the read loop of one connection until the client quits, the
// transport fails or the hub stops. It blocks until the session's outbound
// queue has been flushed and the transport closed.
func (h *Hub) Serve(conn Conn) error {
	s := newSession(conn, h.sendQueue)
	go s.writePump(h.logger)

	select {
	case h.join <- s:
	case <-h.done:
		s.closeQueue()
		<-s.written
		return ErrHubStopped
	}

	h.readLoop(s)
	h.Leave(s)
	<-s.written
	return nil
}

func (h *Hub) readLoop(s *Session) {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, ErrMessageTooLong):
				h.logger.Warn("message exceeds size limit; closing session", "remote", s.Addr)
			case IsExpectedCloseError(err):
				h.logger.Debug("client connection closed", "remote", s.Addr, "reason", err)
			default:
				h.logger.Warn("read from client failed", "remote", s.Addr, "error", err)
			}
			return
		}
		if strings.TrimRight(line, "\r\n") == QuitToken {
			return
		}
		select {
		case h.inbound <- inboundLine{s, line}:
		case <-h.done:
			return
		}
	}
}

// Leave tears the session down on the hub goroutine. Only the first call for
// a session has an effect.
func (h *Hub) Leave(s *Session) {
	select {
	case h.leave <- s:
	case <-h.done:
	}
}

// Stats returns the current registry and scheduler figures.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	request := func() {
		reply <- Stats{
			Sessions:       h.registry.Len(),
			Nicknames:      h.registry.Nicknames(),
			PendingDelayed: len(h.timers),
		}
	}
	select {
	case h.actions <- request:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case stats := <-reply:
		return stats, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// post runs action on the hub goroutine. It is dropped once the hub stopped.
func (h *Hub) post(action func()) {
	select {
	case h.actions <- action:
	case <-h.done:
	}
}

func (h *Hub) register(s *Session) {
	if !h.registry.Add(s) {
		h.logger.Warn("duplicate session registration", "remote", s.Addr)
		return
	}
	h.metrics.setSessions(h.registry.Len())
	h.logger.Info("session registered", "remote", s.Addr, "sessions", h.registry.Len())
	h.send(s, greeting(s.Nickname))
	h.broadcast(joined(s.Nickname), s)
}

// teardown removes s, announces the departure to everyone else and lets the
// writer flush the farewell before closing the transport.
func (h *Hub) teardown(s *Session) {
	if !h.registry.Remove(s.ID) {
		return
	}
	h.metrics.setSessions(h.registry.Len())
	h.logger.Info("session unregistered", "remote", s.Addr, "nickname", s.Nickname, "sessions", h.registry.Len())
	h.broadcast(departed(s.Nickname), s)
	h.send(s, FarewellToken)
	s.closeQueue()
}

func (h *Hub) handleLine(s *Session, line string) {
	if !h.registry.Contains(s.ID) {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, CommandPrefix) {
		h.dispatch(s, line)
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	h.handleChat(s, line)
}

func (h *Hub) handleChat(s *Session, text string) {
	verdict := h.policy.Admit(&s.State, h.clock.Now())
	h.metrics.message(verdict.Restriction)
	if !verdict.Allowed() {
		h.logger.Debug("chat message dropped",
			"remote", s.Addr,
			"nickname", s.Nickname,
			"restriction", verdict.Restriction.String(),
		)
		h.send(s, verdict.Warning())
		return
	}
	h.broadcast(chatLine(s.Nickname, text))
	h.policy.Record(&s.State)
}

// broadcast queues payload for every registered session not listed in
// exclude. Each call builds its own exclusion set.
func (h *Hub) broadcast(payload string, exclude ...*Session) {
	excluded := make(map[*Session]struct{}, len(exclude))
	for _, s := range exclude {
		excluded[s] = struct{}{}
	}
	h.registry.Each(func(s *Session) {
		if _, skip := excluded[s]; skip {
			return
		}
		h.send(s, payload)
	})
}

// send queues payload for s without blocking the hub. A full queue drops the
// payload for that recipient only.
func (h *Hub) send(s *Session, payload string) {
	if s.closed {
		return
	}
	select {
	case s.send <- payload:
	default:
		h.logger.Warn("send queue full; dropping payload", "remote", s.Addr, "nickname", s.Nickname)
	}
}

// scheduleAfter runs action on the hub goroutine once d has elapsed on the
// hub clock. The timer goroutine only hands the action over.
func (h *Hub) scheduleAfter(d time.Duration, action func()) {
	var timer *clock.Timer
	timer = h.clock.AfterFunc(d, func() {
		h.post(func() {
			delete(h.timers, timer)
			h.metrics.setPending(len(h.timers))
			action()
		})
	})
	h.timers[timer] = struct{}{}
	h.metrics.setPending(len(h.timers))
}

func (h *Hub) shutdownSessions() {
	for timer := range h.timers {
		timer.Stop()
	}
	h.timers = make(map[*clock.Timer]struct{})
	h.metrics.setPending(0)

	var sessions []*Session
	h.registry.Each(func(s *Session) {
		sessions = append(sessions, s)
	})
	for _, s := range sessions {
		h.send(s, shutdownNotice)
		h.send(s, FarewellToken)
		s.closeQueue()
		h.registry.Remove(s.ID)
	}
	h.metrics.setSessions(0)
	h.logger.Info("closed client sessions", "count", len(sessions))
}
