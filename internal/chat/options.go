package chat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/Tyrowin/linechat/internal/moderation"
)

// Option configures a Hub.
type Option func(h *Hub) error

// WithClock replaces the wall clock used by moderation and /delay.
func WithClock(c clock.Clock) Option {
	return func(h *Hub) error {
		if c == nil {
			return errors.New("chat.WithClock: clock is nil")
		}
		h.clock = c
		return nil
	}
}

// WithPolicy overrides the default moderation thresholds.
func WithPolicy(p moderation.Policy) Option {
	return func(h *Hub) error {
		if p.ComplaintThreshold <= 0 || p.MessageLimit <= 0 {
			return fmt.Errorf("chat.WithPolicy: thresholds must be positive (complaints=%d, messages=%d)",
				p.ComplaintThreshold, p.MessageLimit)
		}
		if p.BanDuration <= 0 || p.RateWindow <= 0 {
			return fmt.Errorf("chat.WithPolicy: windows must be positive (ban=%v, rate=%v)",
				p.BanDuration, p.RateWindow)
		}
		h.policy = p
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) error {
		if l == nil {
			return errors.New("chat.WithLogger: logger is nil")
		}
		h.logger = l
		return nil
	}
}

// WithSendQueueSize sets how many outbound payloads may wait per session
// before new ones are dropped.
func WithSendQueueSize(n int) Option {
	return func(h *Hub) error {
		if n <= 0 {
			return fmt.Errorf("chat.WithSendQueueSize: invalid size (%d)", n)
		}
		h.sendQueue = n
		return nil
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) error {
		h.metrics = m
		return nil
	}
}
