package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/sidebar"
	"github.com/tinyland-inc/chatline/pkg/toast"
	"github.com/tinyland-inc/chatline/pkg/unread"
)

func newNotifications(t *testing.T, h *harness, nav Navigator, toasts toast.Sink) *Notifications {
	t.Helper()
	n, err := NewNotifications(NotificationConfig{
		API:        h.api,
		Identity:   h.me,
		Dispatcher: h.disp,
		Sidebar: sidebar.New(sidebar.Self{ID: h.me.UserID, Username: h.me.Username},
			sidebar.Room{ID: "10", Name: "bob"},
			sidebar.Room{ID: "20", Name: "team", IsGroup: true},
		),
		Toasts:    toasts,
		Navigator: nav,
		Clock:     h.mock,
	})
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func TestNotifications_HandlesEveryKind(t *testing.T) {
	h := newHarness(t)
	n := newNotifications(t, h, &fakeNav{}, &toastRecorder{})

	assert.ElementsMatch(t, []string{
		protocol.KindNewMessage,
		protocol.KindMessageUpdated,
		protocol.KindUnreadCleared,
		protocol.KindUnreadUpdate,
		protocol.KindStatusChange,
		protocol.KindFriendRequestReceived,
		protocol.KindFriendRequestCancelled,
		protocol.KindFriendRequestAccepted,
		protocol.KindFriendRequestRejected,
		protocol.KindKickedFromGroup,
		protocol.KindGroupDeleted,
		protocol.KindAddedToGroup,
		protocol.KindAdminTransferred,
		protocol.KindGroupCreated,
	}, n.Router().Kinds())
}

func TestNotifications_NewMessage(t *testing.T) {
	h := newHarness(t)
	n := newNotifications(t, h, &fakeNav{}, &toastRecorder{})
	r := n.Router()

	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t,
		`{"event":"new_message","room_id":"20","from":"bob","from_user_id":2,"from_full_name":"Bob Builder","content":"lunch?"}`)))
	assert.Equal(t, 1, n.Unread().Room("20").Value)
	assert.Equal(t, 1, n.Unread().Global().Value)
	assert.Equal(t, "Bob Builder: lunch?", n.Sidebar().Preview("20"))

	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t,
		`{"event":"new_message","room_id":"20","from":"me","from_user_id":"1","content":"sure"}`)))
	assert.Equal(t, 1, n.Unread().Global().Value, "own messages are not unread")
	assert.Equal(t, "You: sure", n.Sidebar().Preview("20"))
}

func TestNotifications_UnreadClearedAndUpdate(t *testing.T) {
	h := newHarness(t)
	n, err := NewNotifications(NotificationConfig{
		API:        h.api,
		Identity:   h.me,
		Dispatcher: h.disp,
		Unread:     unread.NewStore(unread.State{Rooms: map[string]int{"10": 3, "20": 2}, Global: 5}),
		Clock:      h.mock,
	})
	require.NoError(t, err)
	r := n.Router()

	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t, `{"event":"unread_cleared","room_id":"10"}`)))
	assert.Equal(t, 0, n.Unread().Room("10").Value)
	assert.Equal(t, 2, n.Unread().Global().Value)

	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t,
		`{"event":"unread_update","room_id":"20","unread_count":0,"total_unread":7}`)))
	assert.Equal(t, 0, n.Unread().Room("20").Value)
	assert.Equal(t, 7, n.Unread().Global().Value)
}

func TestNotifications_FriendRequestsAndPresence(t *testing.T) {
	h := newHarness(t)
	n := newNotifications(t, h, &fakeNav{}, &toastRecorder{})
	r := n.Router()

	for _, raw := range []string{
		`{"event":"friend_request_received","from":"carol"}`,
		`{"event":"friend_request_received","from":"dave"}`,
		`{"event":"friend_request_cancelled","from":"carol"}`,
		`{"event":"friend_request_accepted","from":"erin"}`,
		`{"event":"status_change","user_id":2,"is_online":true}`,
	} {
		require.NoError(t, r.Dispatch(h.ctx, notifEvent(t, raw)))
	}
	assert.Equal(t, 1, n.Unread().FriendRequests().Value)
	assert.True(t, n.Sidebar().Online("2"))
}

func TestNotifications_KickedFromCurrentRoomLeaves(t *testing.T) {
	h := newHarness(t)
	nav := &fakeNav{current: "20"}
	toasts := &toastRecorder{}
	n := newNotifications(t, h, nav, toasts)

	require.NoError(t, n.Router().Dispatch(h.ctx, notifEvent(t,
		`{"event":"kicked_from_group","room_id":"20","room_name":"team"}`)))
	require.Len(t, toasts.all(), 1)
	assert.Equal(t, toast.Warning(`You were removed from "team"`), toasts.all()[0])

	leaves, _ := nav.counts()
	assert.Zero(t, leaves)
	h.mock.Add(LeaveDelay)
	require.Eventually(t, func() bool {
		l, _ := nav.counts()
		return l == 1
	}, waitFor, 5*time.Millisecond)

	_, ok := n.Sidebar().Room("20")
	assert.True(t, ok, "current room stays until navigation")
}

func TestNotifications_GroupDeletedElsewhereRemovesRoom(t *testing.T) {
	h := newHarness(t)
	nav := &fakeNav{current: "10"}
	toasts := &toastRecorder{}
	n := newNotifications(t, h, nav, toasts)

	require.NoError(t, n.Router().Dispatch(h.ctx, notifEvent(t,
		`{"event":"group_deleted","room_id":"20","room_name":"<b>team</b>"}`)))
	assert.Equal(t, toast.Info(`Group "team" was deleted`), toasts.all()[0])
	_, ok := n.Sidebar().Room("20")
	assert.False(t, ok)

	h.mock.Add(LeaveDelay)
	leaves, _ := nav.counts()
	assert.Zero(t, leaves)
}

func TestNotifications_AddedAndAdminTransferred(t *testing.T) {
	h := newHarness(t)
	nav := &fakeNav{current: "20"}
	toasts := &toastRecorder{}
	n := newNotifications(t, h, nav, toasts)
	r := n.Router()

	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t,
		`{"event":"added_to_group","room_id":"30","room_name":"ops","added_by":"bob"}`)))
	require.NoError(t, r.Dispatch(h.ctx, notifEvent(t,
		`{"event":"admin_transferred","room_id":"20","room_name":"team"}`)))

	got := toasts.all()
	require.Len(t, got, 2)
	assert.Equal(t, toast.Success(`You were added to "ops" by bob`), got[0])
	assert.Equal(t, toast.Success(`You are now admin of "team"`), got[1])

	h.mock.Add(ReloadDelay)
	require.Eventually(t, func() bool {
		_, reloads := nav.counts()
		return reloads == 2
	}, waitFor, 5*time.Millisecond)
}

func TestNotifications_GroupCreatedReloads(t *testing.T) {
	h := newHarness(t)
	nav := &fakeNav{}
	n := newNotifications(t, h, nav, &toastRecorder{})

	require.NoError(t, n.Router().Dispatch(h.ctx, notifEvent(t, `{"event":"group_created","room_id":"40"}`)))
	_, reloads := nav.counts()
	assert.Equal(t, 1, reloads)
}

func TestNotifications_UnknownKindDropped(t *testing.T) {
	h := newHarness(t)
	n := newNotifications(t, h, &fakeNav{}, &toastRecorder{})

	err := n.Router().Dispatch(h.ctx, notifEvent(t, `{"event":"poke"}`))
	assert.Error(t, err)
	assert.Zero(t, n.Unread().Global().Value)
}

func TestNotifications_NoIdentityDoesNotDial(t *testing.T) {
	h := newHarness(t)
	n, err := NewNotifications(NotificationConfig{API: h.api, Dispatcher: h.disp})
	require.NoError(t, err)

	assert.ErrorIs(t, n.Start(h.ctx), ErrNoIdentity)
	assert.Nil(t, n.Session())
	assert.Zero(t, h.srv.Dials(protocol.Notifications().Path()))
}

func TestNotifications_LiveOverWebsocket(t *testing.T) {
	h := newHarness(t)
	n := newNotifications(t, h, &fakeNav{}, &toastRecorder{})
	require.NoError(t, n.Start(h.ctx))

	path := protocol.Notifications().Path()
	require.Eventually(t, func() bool { return h.srv.Connections(path) == 1 }, waitFor, 5*time.Millisecond)

	h.srv.PushNotification(map[string]any{
		"event":          "new_message",
		"room_id":        "10",
		"from":           "bob",
		"from_user_id":   2,
		"from_full_name": "Bob Builder",
		"content":        "ping",
	})
	require.Eventually(t, func() bool { return n.Unread().Global().Value == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "ping", n.Sidebar().Preview("10"))
}
