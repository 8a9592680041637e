// Package moderation holds the ban and message-rate rules applied to every
// ordinary chat message before it is broadcast.
//
// The policy is pure: it only reads and updates the State it is handed and
// takes the current time as an argument, so callers decide which clock drives
// it and which goroutine owns the State.
package moderation

import (
	"time"

	"github.com/hako/durafmt"
)

const (
	DefaultComplaintThreshold = 3
	DefaultBanDuration        = 240 * time.Minute
	DefaultMessageLimit       = 20
	DefaultRateWindow         = 60 * time.Minute
)

// State is the per-session moderation bookkeeping. Zero times mean "unset".
type State struct {
	MessageCount   int
	ComplaintCount int
	FirstMessageAt time.Time
	BannedAt       time.Time
}

func (s *State) banned(threshold int) bool {
	return s.ComplaintCount >= threshold
}

// Restriction names the rule that blocked a message.
type Restriction int

const (
	// None means the message may be broadcast.
	None Restriction = iota
	// Banned means the sender collected too many complaints.
	Banned
	// OverQuota means the sender used up the messages of the current rate window.
	OverQuota
)

func (r Restriction) String() string {
	switch r {
	case None:
		return "none"
	case Banned:
		return "banned"
	case OverQuota:
		return "over_quota"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of Admit.
type Verdict struct {
	Restriction Restriction
	// Remaining is how long the restriction will still hold.
	Remaining time.Duration
}

// Allowed reports whether the message passed the gate.
func (v Verdict) Allowed() bool {
	return v.Restriction == None
}

// Warning renders the sender-only notice for a blocked message.
func (v Verdict) Warning() string {
	switch v.Restriction {
	case Banned:
		return "You are banned for " + humanize(v.Remaining) + "."
	case OverQuota:
		return "Message limit reached, try again in " + humanize(v.Remaining) + "."
	default:
		return ""
	}
}

func humanize(d time.Duration) string {
	if d < time.Minute {
		d = time.Minute
	}
	return durafmt.Parse(d.Truncate(time.Minute)).LimitFirstN(2).String()
}

// Policy carries the thresholds. The zero value is not useful; start from
// DefaultPolicy.
type Policy struct {
	ComplaintThreshold int
	BanDuration        time.Duration
	MessageLimit       int
	RateWindow         time.Duration
}

// DefaultPolicy returns 3 complaints / 240 minutes and 20 messages / 60 minutes.
func DefaultPolicy() Policy {
	return Policy{
		ComplaintThreshold: DefaultComplaintThreshold,
		BanDuration:        DefaultBanDuration,
		MessageLimit:       DefaultMessageLimit,
		RateWindow:         DefaultRateWindow,
	}
}

// Expire clears a ban whose window has elapsed and restarts an elapsed rate window.
func (p Policy) Expire(s *State, now time.Time) {
	if !s.BannedAt.IsZero() && now.Sub(s.BannedAt) >= p.BanDuration {
		s.ComplaintCount = 0
		s.BannedAt = time.Time{}
	}
	if !s.FirstMessageAt.IsZero() && now.Sub(s.FirstMessageAt) >= p.RateWindow {
		s.MessageCount = 0
		s.FirstMessageAt = time.Time{}
	}
}

// CanSend applies expiry and reports whether the session is clear and within quota.
func (p Policy) CanSend(s *State, now time.Time) bool {
	p.Expire(s, now)
	return !s.banned(p.ComplaintThreshold) && s.MessageCount < p.MessageLimit
}

// Admit is the gate the hub applies to each ordinary chat message. It runs
// CanSend, stamps the start of the rate window on the first message since the
// last reset, and names the active restriction, ban first.
func (p Policy) Admit(s *State, now time.Time) Verdict {
	allowed := p.CanSend(s, now)
	if s.FirstMessageAt.IsZero() {
		s.FirstMessageAt = now
	}
	if allowed {
		return Verdict{Restriction: None}
	}
	if s.banned(p.ComplaintThreshold) {
		remaining := p.BanDuration
		if !s.BannedAt.IsZero() {
			remaining -= now.Sub(s.BannedAt)
		}
		return Verdict{Restriction: Banned, Remaining: remaining}
	}
	return Verdict{Restriction: OverQuota, Remaining: p.RateWindow - now.Sub(s.FirstMessageAt)}
}

// Record counts a message that was handed to the broadcast engine.
func (p Policy) Record(s *State) {
	s.MessageCount++
}

// RegisterComplaint counts a complaint against s and starts the ban clock when
// the threshold is reached. An already running ban clock is left untouched.
// It returns true when the session is banned after the complaint.
func (p Policy) RegisterComplaint(s *State, now time.Time) bool {
	p.Expire(s, now)
	s.ComplaintCount++
	if !s.banned(p.ComplaintThreshold) {
		return false
	}
	if s.BannedAt.IsZero() {
		s.BannedAt = now
	}
	return true
}
