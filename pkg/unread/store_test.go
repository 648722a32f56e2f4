package unread

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

func TestNewMessage_FromSelfChangesNothing(t *testing.T) {
	s := NewStore(State{Rooms: map[string]int{"r1": 2}, Global: 2})
	s.OnNewMessage("r1", true)
	s.OnNewMessage("r2", true)

	assert.Equal(t, 2, s.Room("r1").Value)
	assert.Equal(t, 0, s.Room("r2").Value)
	assert.Equal(t, 2, s.Global().Value)
}

func TestNewMessage_IncrementsRoomAndGlobal(t *testing.T) {
	s := NewStore(State{})
	s.OnNewMessage("r1", false)
	s.OnNewMessage("r1", false)
	s.OnNewMessage("r2", false)

	assert.Equal(t, 2, s.Room("r1").Value)
	assert.Equal(t, 1, s.Room("r2").Value)
	assert.Equal(t, 3, s.Global().Value)
}

func TestUnreadCleared_DecrementsGlobalByRoomCount(t *testing.T) {
	s := NewStore(State{Rooms: map[string]int{"r1": 3, "r2": 1}, Global: 4})
	s.OnUnreadCleared("r1", nil)

	assert.Equal(t, 0, s.Room("r1").Value)
	assert.Equal(t, 1, s.Global().Value)
}

func TestUnreadCleared_ClampsGlobal(t *testing.T) {
	s := NewStore(State{Rooms: map[string]int{"r1": 3}, Global: 1})
	s.OnUnreadCleared("r1", nil)

	assert.Equal(t, 0, s.Room("r1").Value)
	assert.Equal(t, 0, s.Global().Value)
}

func TestUnreadCleared_UnknownRoom(t *testing.T) {
	s := NewStore(State{Global: 5})
	s.OnUnreadCleared("ghost", nil)
	assert.Equal(t, 5, s.Global().Value)
}

func TestUnreadCleared_AuthoritativeTotal(t *testing.T) {
	s := NewStore(State{Rooms: map[string]int{"r1": 3}, Global: 9})
	total := 2
	s.OnUnreadCleared("r1", &total)
	assert.Equal(t, 2, s.Global().Value)

	negative := -4
	s.OnUnreadCleared("r1", &negative)
	assert.Equal(t, 0, s.Global().Value)
}

func TestCountersNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rooms := []string{"a", "b", "c"}
	s := NewStore(State{Rooms: map[string]int{"a": 1}, Global: 0})

	for i := 0; i < 5000; i++ {
		room := rooms[rng.Intn(len(rooms))]
		if rng.Intn(3) == 0 {
			s.OnUnreadCleared(room, nil)
		} else {
			s.OnNewMessage(room, rng.Intn(4) == 0)
		}
		st := s.State()
		require.GreaterOrEqual(t, st.Global, 0, "step %d", i)
		for r, n := range st.Rooms {
			require.GreaterOrEqual(t, n, 0, "room %s step %d", r, i)
		}
	}
}

func TestFriendRequests(t *testing.T) {
	s := NewStore(State{})
	s.OnFriendRequest(protocol.KindFriendRequestReceived)
	s.OnFriendRequest(protocol.KindFriendRequestReceived)
	assert.Equal(t, 2, s.FriendRequests().Value)

	s.OnFriendRequest(protocol.KindFriendRequestAccepted)
	s.OnFriendRequest(protocol.KindFriendRequestRejected)
	assert.Equal(t, 2, s.FriendRequests().Value)

	for i := 0; i < 4; i++ {
		s.OnFriendRequest(protocol.KindFriendRequestCancelled)
	}
	assert.Equal(t, 0, s.FriendRequests().Value)
}

func TestNewStore_NormalizesSnapshot(t *testing.T) {
	s := NewStore(State{Rooms: map[string]int{"r1": -2}, Global: -1, FriendRequests: -3})
	st := s.State()
	assert.Equal(t, 0, st.Rooms["r1"])
	assert.Equal(t, 0, st.Global)
	assert.Equal(t, 0, st.FriendRequests)
}

func TestReducers_DoNotMutateInput(t *testing.T) {
	in := State{Rooms: map[string]int{"r1": 1}, Global: 1}
	_ = NewMessage(in, "r1", false)
	_ = UnreadCleared(in, "r1", nil)
	assert.Equal(t, 1, in.Rooms["r1"])
	assert.Equal(t, 1, in.Global)
}

func TestBadge_DisplayRule(t *testing.T) {
	zero := Badge{}
	assert.False(t, zero.Visible())
	assert.Equal(t, "0", zero.Text())

	three := Badge{Value: 3}
	assert.True(t, three.Visible())
	assert.Equal(t, "3", three.Text())
}

func TestSubscribe_OnlyOnChange(t *testing.T) {
	s := NewStore(State{})
	var seen []int
	s.Subscribe(func(st State) { seen = append(seen, st.Global) })

	s.OnNewMessage("r1", true)
	s.OnNewMessage("r1", false)
	s.OnUnreadCleared("r1", nil)
	s.OnUnreadCleared("r1", nil)

	assert.Equal(t, []int{1, 0}, seen)
}
