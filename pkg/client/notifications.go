package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/router"
	"github.com/tinyland-inc/chatline/pkg/session"
	"github.com/tinyland-inc/chatline/pkg/sidebar"
	"github.com/tinyland-inc/chatline/pkg/toast"
	"github.com/tinyland-inc/chatline/pkg/unread"
)

const (
	LeaveDelay  = 1000 * time.Millisecond
	ReloadDelay = 1500 * time.Millisecond
)

var ErrNoIdentity = errors.New("no signed-in identity")

type Identity struct {
	UserID   protocol.ID
	Username string
	FullName string
}

func (id Identity) isSelf(userID protocol.ID, username string) bool {
	if id.UserID != "" && userID != "" {
		return id.UserID == userID
	}
	return id.Username != "" && id.Username == username
}

// Navigator is the page the user is on. Leave goes back to the room list;
// Reload refreshes the room list and the current room.
type Navigator interface {
	Current() protocol.ID
	Leave()
	Reload()
}

type NotificationConfig struct {
	API        *api.Client
	Identity   Identity
	Dispatcher *Dispatcher
	Unread     *unread.Store
	Sidebar    *sidebar.Sidebar
	Toasts     toast.Sink
	Navigator  Navigator
	Clock      clock.Clock
	Session    []session.Option
}

// Notifications handles the account-wide notification channel.
type Notifications struct {
	cfg     NotificationConfig
	session *session.Session
	router  *router.Router

	mu     sync.Mutex
	timers []*clock.Timer
}

func NewNotifications(cfg NotificationConfig) (*Notifications, error) {
	if cfg.API == nil || cfg.Dispatcher == nil {
		return nil, errors.New("notifications: api client and dispatcher are required")
	}
	if cfg.Unread == nil {
		cfg.Unread = unread.NewStore(unread.State{})
	}
	if cfg.Sidebar == nil {
		cfg.Sidebar = sidebar.New(sidebar.Self{ID: cfg.Identity.UserID, Username: cfg.Identity.Username})
	}
	if cfg.Toasts == nil {
		cfg.Toasts = toast.LogSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	n := &Notifications{cfg: cfg}
	n.router = n.buildRouter()
	return n, nil
}

func (n *Notifications) Unread() *unread.Store     { return n.cfg.Unread }
func (n *Notifications) Sidebar() *sidebar.Sidebar { return n.cfg.Sidebar }
func (n *Notifications) Router() *router.Router    { return n.router }

// Session is nil until Start has dialed.
func (n *Notifications) Session() *session.Session { return n.session }

// Start opens the notification channel. Without an identity nothing is
// dialed and ErrNoIdentity is returned so callers can log it.
func (n *Notifications) Start(ctx context.Context) error {
	if n.cfg.Identity.Username == "" {
		logger.InfoC("client", "No identity, notification channel not opened")
		return ErrNoIdentity
	}

	ch := protocol.Notifications()
	url, err := ch.URL(n.cfg.API.BaseURL())
	if err != nil {
		return err
	}
	opts := append([]session.Option{
		session.WithHeader(handshakeHeader(n.cfg.API)),
		session.WithClock(n.cfg.Clock),
	}, n.cfg.Session...)
	n.session = session.New(ch, url, opts...)
	n.session.OnEvent(n.cfg.Dispatcher.Publish)
	n.cfg.Dispatcher.Route(ch, n.router)

	if err := n.session.Start(ctx); err != nil {
		return fmt.Errorf("notification channel: %w", err)
	}
	return nil
}

func (n *Notifications) Stop() {
	n.mu.Lock()
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
	n.mu.Unlock()

	if n.session != nil {
		n.session.Stop()
	}
	n.cfg.Dispatcher.Remove(protocol.Notifications())
}

func (n *Notifications) after(d time.Duration, fn func()) {
	if n.cfg.Navigator == nil {
		return
	}
	n.mu.Lock()
	n.timers = append(n.timers, n.cfg.Clock.AfterFunc(d, fn))
	n.mu.Unlock()
}

func (n *Notifications) isCurrent(room protocol.ID) bool {
	return n.cfg.Navigator != nil && room != "" && n.cfg.Navigator.Current() == room
}

func (n *Notifications) toast(ctx context.Context, t toast.Toast) {
	if err := n.cfg.Toasts.Notify(ctx, t); err != nil {
		logger.WarnCF("client", "Toast delivery failed", map[string]any{"error": err.Error()})
	}
}

func (n *Notifications) buildRouter() *router.Router {
	r := router.New("notifications")

	r.Handle(protocol.KindNewMessage, router.Typed(func(_ context.Context, p protocol.NewMessage) error {
		fromSelf := n.cfg.Identity.isSelf(p.FromUserID, p.From)
		n.cfg.Sidebar.OnNewMessage(p)
		n.cfg.Unread.OnNewMessage(string(p.RoomID), fromSelf)
		return nil
	}))

	r.Handle(protocol.KindMessageUpdated, router.Typed(func(_ context.Context, p protocol.MessageUpdated) error {
		n.cfg.Sidebar.OnMessageUpdated(p)
		return nil
	}))

	cleared := router.Typed(func(_ context.Context, p protocol.UnreadCleared) error {
		n.cfg.Unread.OnUnreadCleared(string(p.RoomID), p.TotalUnread)
		return nil
	})
	r.Handle(protocol.KindUnreadCleared, cleared)
	r.Handle(protocol.KindUnreadUpdate, cleared)

	r.Handle(protocol.KindStatusChange, router.Typed(func(_ context.Context, p protocol.StatusChange) error {
		n.cfg.Sidebar.SetPresence(p)
		return nil
	}))

	for _, kind := range []string{
		protocol.KindFriendRequestReceived,
		protocol.KindFriendRequestCancelled,
		protocol.KindFriendRequestAccepted,
		protocol.KindFriendRequestRejected,
	} {
		r.Handle(kind, func(_ context.Context, _ protocol.InboundEvent) error {
			n.cfg.Unread.OnFriendRequest(kind)
			return nil
		})
	}

	r.Handle(protocol.KindKickedFromGroup, router.Typed(func(ctx context.Context, p protocol.GroupNotice) error {
		n.toast(ctx, toast.Warning(fmt.Sprintf("You were removed from \"%s\"", toast.Clean(p.RoomName))))
		n.dropRoom(p.RoomID)
		return nil
	}))

	r.Handle(protocol.KindGroupDeleted, router.Typed(func(ctx context.Context, p protocol.GroupNotice) error {
		n.toast(ctx, toast.Info(fmt.Sprintf("Group \"%s\" was deleted", toast.Clean(p.RoomName))))
		n.dropRoom(p.RoomID)
		return nil
	}))

	r.Handle(protocol.KindAddedToGroup, router.Typed(func(ctx context.Context, p protocol.GroupNotice) error {
		n.toast(ctx, toast.Success(fmt.Sprintf("You were added to \"%s\" by %s", toast.Clean(p.RoomName), toast.Clean(p.AddedBy))))
		n.after(ReloadDelay, func() { n.cfg.Navigator.Reload() })
		return nil
	}))

	r.Handle(protocol.KindAdminTransferred, router.Typed(func(ctx context.Context, p protocol.GroupNotice) error {
		n.toast(ctx, toast.Success(fmt.Sprintf("You are now admin of \"%s\"", toast.Clean(p.RoomName))))
		if n.isCurrent(p.RoomID) {
			n.after(ReloadDelay, func() { n.cfg.Navigator.Reload() })
		}
		return nil
	}))

	r.Handle(protocol.KindGroupCreated, func(_ context.Context, _ protocol.InboundEvent) error {
		if n.cfg.Navigator != nil {
			n.cfg.Navigator.Reload()
		}
		return nil
	})

	return r
}

// dropRoom leaves the room if it is open, otherwise takes it off the sidebar.
func (n *Notifications) dropRoom(room protocol.ID) {
	if n.isCurrent(room) {
		n.after(LeaveDelay, func() { n.cfg.Navigator.Leave() })
		return
	}
	n.cfg.Sidebar.RemoveRoom(room)
}
