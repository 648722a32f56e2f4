package unread

import (
	"maps"
	"strconv"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

// State is the full badge state. Reducers never mutate their input.
type State struct {
	Rooms          map[string]int `json:"rooms"`
	Global         int            `json:"global"`
	FriendRequests int            `json:"friend_requests"`
}

func (s State) clone() State {
	out := s
	out.Rooms = make(map[string]int, len(s.Rooms))
	maps.Copy(out.Rooms, s.Rooms)
	return out
}

func (s State) equal(o State) bool {
	return s.Global == o.Global && s.FriendRequests == o.FriendRequests && maps.Equal(s.Rooms, o.Rooms)
}

// Normalize clamps every counter at zero. Snapshots come from outside and
// are not trusted to respect that.
func Normalize(s State) State {
	out := s.clone()
	for room, n := range out.Rooms {
		if n < 0 {
			out.Rooms[room] = 0
		}
	}
	out.Global = max(0, out.Global)
	out.FriendRequests = max(0, out.FriendRequests)
	return out
}

// NewMessage counts one unread message in room unless the viewer sent it.
func NewMessage(s State, room string, fromSelf bool) State {
	if fromSelf {
		return s
	}
	out := s.clone()
	out.Rooms[room]++
	out.Global++
	return out
}

// UnreadCleared zeroes room and takes its last known count off the global
// counter. A non-nil total replaces that estimate with the server's figure.
func UnreadCleared(s State, room string, total *int) State {
	out := s.clone()
	k, ok := out.Rooms[room]
	if ok {
		out.Rooms[room] = 0
	}
	if total != nil {
		out.Global = max(0, *total)
	} else {
		out.Global = max(0, out.Global-k)
	}
	return out
}

// FriendRequest applies a friend request event to the account badge.
func FriendRequest(s State, kind string) State {
	out := s
	switch kind {
	case protocol.KindFriendRequestReceived:
		out.FriendRequests++
	case protocol.KindFriendRequestCancelled:
		out.FriendRequests = max(0, out.FriendRequests-1)
	}
	return out
}

// Badge is the display view of one counter.
type Badge struct {
	Value int
}

func (b Badge) Visible() bool { return b.Value > 0 }

// Text is kept in sync with Value even while the badge is hidden.
func (b Badge) Text() string { return strconv.Itoa(b.Value) }
