package chat

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// CommandPrefix starts every client-issued control message.
	CommandPrefix = "/"
	// QuitToken is the bare line that ends a session's receive side.
	QuitToken = "quit"
	// FarewellToken is the last payload queued to a departing session.
	FarewellToken = "/quit"
)

// maxDelayMinutes is the longest /delay that still fits a time.Duration.
const maxDelayMinutes = math.MaxInt64 / int64(time.Minute)

// Command is a parsed control line: the keyword and the raw text after it.
type Command struct {
	Name string
	Body string
}

// ParseCommand splits a "/keyword args..." line. It returns false if line is
// not a command.
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, CommandPrefix) {
		return Command{}, false
	}
	args, body := splitArgs(strings.TrimPrefix(line, CommandPrefix), 1)
	if len(args) == 0 {
		return Command{Body: body}, true
	}
	return Command{Name: strings.ToLower(args[0]), Body: body}, true
}

// splitArgs cuts up to n whitespace-separated tokens off the front of s and
// returns them with the remaining text, leading space trimmed.
func splitArgs(s string, n int) ([]string, string) {
	args := make([]string, 0, n)
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for len(args) < n && rest != "" {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			args = append(args, rest)
			rest = ""
			break
		}
		args = append(args, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return args, strings.TrimRightFunc(rest, unicode.IsSpace)
}

type commandFunc func(s *Session, body string)

type commandSpec struct {
	usage string
	run   commandFunc
}

func (h *Hub) commandTable() map[string]commandSpec {
	return map[string]commandSpec{
		"nickname": {"/nickname <new>", h.cmdNickname},
		"complain": {"/complain <nickname>", h.cmdComplain},
		"delay":    {"/delay <minutes> <message>", h.cmdDelay},
		"private":  {"/private <nickname> <message>", h.cmdPrivate},
		"quit":     {"/quit", h.cmdQuit},
		"help":     {"/help", h.cmdHelp},
	}
}

// dispatch routes a command line to its handler. Replies go to the issuing
// session only.
func (h *Hub) dispatch(s *Session, line string) {
	cmd, _ := ParseCommand(line)
	spec, ok := h.commands[cmd.Name]
	if !ok {
		h.metrics.command("unknown")
		h.send(s, noSuchCommand(cmd.Name))
		return
	}
	h.metrics.command(cmd.Name)
	spec.run(s, cmd.Body)
}

func (h *Hub) usage(s *Session, name string) {
	h.send(s, "Usage: "+h.commands[name].usage)
}

func (h *Hub) cmdNickname(s *Session, body string) {
	args, _ := splitArgs(body, 1)
	if len(args) < 1 {
		h.usage(s, "nickname")
		return
	}
	old := s.Nickname
	s.Nickname = args[0]
	h.logger.Info("nickname changed", "remote", s.Addr, "from", old, "to", s.Nickname)
	h.send(s, fmt.Sprintf("Nickname changed to %s", s.Nickname))
}

func (h *Hub) cmdComplain(s *Session, body string) {
	args, _ := splitArgs(body, 1)
	if len(args) < 1 {
		h.usage(s, "complain")
		return
	}
	targets := h.registry.FindAllByNickname(args[0])
	if len(targets) == 0 {
		h.send(s, notFound(args[0]))
		return
	}
	now := h.clock.Now()
	for _, target := range targets {
		if h.policy.RegisterComplaint(&target.State, now) {
			h.logger.Warn("session banned",
				"remote", target.Addr,
				"nickname", target.Nickname,
				"complaints", target.ComplaintCount,
				"banned_at", target.BannedAt,
			)
		}
	}
	h.send(s, fmt.Sprintf("Complaint against %s registered", args[0]))
}

func (h *Hub) cmdDelay(s *Session, body string) {
	args, text := splitArgs(body, 1)
	if len(args) < 1 || text == "" {
		h.usage(s, "delay")
		return
	}
	minutes, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || minutes < 0 || minutes > maxDelayMinutes {
		h.usage(s, "delay")
		return
	}
	payload := chatLine(s.Nickname, text)
	h.scheduleAfter(time.Duration(minutes)*time.Minute, func() {
		h.broadcast(payload)
	})
	h.send(s, fmt.Sprintf("Message scheduled in %d minute(s)", minutes))
}

func (h *Hub) cmdPrivate(s *Session, body string) {
	args, text := splitArgs(body, 1)
	if len(args) < 1 || text == "" {
		h.usage(s, "private")
		return
	}
	if args[0] == s.Nickname {
		h.send(s, "You cannot send a private message to yourself")
		return
	}
	target := h.registry.FindByNickname(args[0])
	if target == nil {
		h.send(s, notFound(args[0]))
		return
	}
	h.send(target, fmt.Sprintf("[private] %s: %s", s.Nickname, text))
	h.send(s, fmt.Sprintf("Private message sent to %s", args[0]))
}

func (h *Hub) cmdQuit(s *Session, _ string) {
	h.teardown(s)
}

func (h *Hub) cmdHelp(s *Session, _ string) {
	usages := make([]string, 0, len(h.commands))
	for _, spec := range h.commands {
		usages = append(usages, spec.usage)
	}
	sort.Strings(usages)
	h.send(s, "Commands: "+strings.Join(usages, ", "))
}
