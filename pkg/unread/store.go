package unread

import (
	"sync"

	"github.com/tinyland-inc/chatline/pkg/logger"
)

// Store holds the process-wide unread state, seeded from a snapshot and then
// advanced only by the reducers.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers []func(State)
}

func NewStore(snapshot State) *Store {
	return &Store{state: Normalize(snapshot)}
}

// Subscribe registers fn to receive the new state after every change.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

func (s *Store) OnNewMessage(room string, fromSelf bool) {
	s.apply("new_message", room, func(st State) State { return NewMessage(st, room, fromSelf) })
}

func (s *Store) OnUnreadCleared(room string, total *int) {
	s.apply("unread_cleared", room, func(st State) State { return UnreadCleared(st, room, total) })
}

func (s *Store) OnFriendRequest(kind string) {
	s.apply(kind, "", func(st State) State { return FriendRequest(st, kind) })
}

func (s *Store) apply(reason, room string, reduce func(State) State) {
	s.mu.Lock()
	prev := s.state
	next := reduce(prev)
	changed := !prev.equal(next)
	s.state = next
	subs := append([]func(State){}, s.subscribers...)
	s.mu.Unlock()

	if !changed {
		return
	}
	logger.DebugCF("unread", "Counters changed", map[string]any{
		"reason":          reason,
		"room":            room,
		"global":          next.Global,
		"friend_requests": next.FriendRequests,
	})
	for _, fn := range subs {
		fn(next.clone())
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) Room(room string) Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Badge{Value: s.state.Rooms[room]}
}

func (s *Store) Global() Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Badge{Value: s.state.Global}
}

func (s *Store) FriendRequests() Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Badge{Value: s.state.FriendRequests}
}
