package chat

import (
	"slices"

	"github.com/google/uuid"
)

// Registry is the set of live sessions keyed by session ID. It is not safe for
// concurrent use; the Hub is its only caller.
//
// Nicknames are not unique. Lookups by nickname return the earliest
// registered match, so two users sharing a name means the later one is
// unreachable by /private until one of them renames.
type Registry struct {
	sessions map[uuid.UUID]*Session
	order    []uuid.UUID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Add registers s. It returns false if a session with the same ID is present.
func (r *Registry) Add(s *Session) bool {
	if _, ok := r.sessions[s.ID]; ok {
		return false
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	return true
}

// Remove unregisters the session with the given ID. Removing an absent ID is
// a no-op that returns false.
func (r *Registry) Remove(id uuid.UUID) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id uuid.UUID) bool {
	_, ok := r.sessions[id]
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Each calls fn for every session in registration order.
func (r *Registry) Each(fn func(*Session)) {
	for _, id := range r.order {
		fn(r.sessions[id])
	}
}

// FindByNickname returns the first registered session using nickname, or nil.
func (r *Registry) FindByNickname(nickname string) *Session {
	for _, id := range r.order {
		if s := r.sessions[id]; s.Nickname == nickname {
			return s
		}
	}
	return nil
}

// FindAllByNickname returns every session using nickname in registration order.
func (r *Registry) FindAllByNickname(nickname string) []*Session {
	var matches []*Session
	r.Each(func(s *Session) {
		if s.Nickname == nickname {
			matches = append(matches, s)
		}
	})
	return matches
}

// Nicknames returns the current nicknames in registration order.
func (r *Registry) Nicknames() []string {
	names := make([]string, 0, len(r.order))
	r.Each(func(s *Session) {
		names = append(names, s.Nickname)
	})
	return names
}
