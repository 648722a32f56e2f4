package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/receipts"
	"github.com/tinyland-inc/chatline/pkg/router"
	"github.com/tinyland-inc/chatline/pkg/session"
	"github.com/tinyland-inc/chatline/pkg/timeline"
	"github.com/tinyland-inc/chatline/pkg/toast"
	"github.com/tinyland-inc/chatline/pkg/typing"
)

var ErrEmptyMessage = errors.New("message is empty")

// RoomTimings overrides the room defaults. Zero fields keep the default.
type RoomTimings struct {
	PageSize        int
	TypingIdle      time.Duration
	TypingHide      time.Duration
	TypingExpiry    time.Duration
	ReceiptDebounce time.Duration
	BottomThreshold int
	LeaveWindow     time.Duration
}

type RoomConfig struct {
	Room       string
	Identity   Identity
	API        *api.Client
	Dispatcher *Dispatcher
	Toasts     toast.Sink
	Clock      clock.Clock
	Timings    RoomTimings
	Session    []session.Option

	// OnMessage sees every message added to the timeline, history included.
	OnMessage func(m timeline.Message)
}

// Room is an open chat room: its socket session, timeline, typing state and
// read-receipt trigger.
type Room struct {
	cfg       RoomConfig
	channel   protocol.Channel
	session   *session.Session
	router    *router.Router
	timeline  *timeline.Timeline
	signaler  *typing.Signaler
	indicator *typing.Indicator
	receipts  *receipts.Trigger
	flash     *toast.Flash

	// messages at least half on screen after the last viewport change
	visMu   sync.Mutex
	visible map[protocol.ID]struct{}
}

func NewRoom(cfg RoomConfig) (*Room, error) {
	if cfg.Room == "" {
		return nil, errors.New("room: name is required")
	}
	if cfg.API == nil || cfg.Dispatcher == nil {
		return nil, errors.New("room: api client and dispatcher are required")
	}
	if cfg.Toasts == nil {
		cfg.Toasts = toast.LogSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	ch := protocol.Room(cfg.Room)
	url, err := ch.URL(cfg.API.BaseURL())
	if err != nil {
		return nil, err
	}

	r := &Room{cfg: cfg, channel: ch, visible: make(map[protocol.ID]struct{})}
	opts := append([]session.Option{
		session.WithHeader(handshakeHeader(cfg.API)),
		session.WithClock(cfg.Clock),
	}, cfg.Session...)
	r.session = session.New(ch, url, opts...)

	t := cfg.Timings
	tlOpts := []timeline.Option{timeline.WithClock(cfg.Clock)}
	if t.PageSize > 0 {
		tlOpts = append(tlOpts, timeline.WithPageSize(t.PageSize))
	}
	if t.LeaveWindow > 0 {
		tlOpts = append(tlOpts, timeline.WithLeaveWindow(t.LeaveWindow))
	}
	self := timeline.Self{ID: cfg.Identity.UserID, Username: cfg.Identity.Username, FullName: cfg.Identity.FullName}
	r.timeline = timeline.New(cfg.Room, self, tlOpts...)

	typingOpts := []typing.Option{typing.WithClock(cfg.Clock)}
	if t.TypingIdle > 0 {
		typingOpts = append(typingOpts, typing.WithIdle(t.TypingIdle))
	}
	if t.TypingHide > 0 {
		typingOpts = append(typingOpts, typing.WithHideDelay(t.TypingHide))
	}
	if t.TypingExpiry > 0 {
		typingOpts = append(typingOpts, typing.WithExpiry(t.TypingExpiry))
	}
	r.signaler = typing.NewSignaler(r.session, typingOpts...)
	r.indicator = typing.NewIndicator(typing.Self{ID: cfg.Identity.UserID, Username: cfg.Identity.Username}, typingOpts...)

	rcOpts := []receipts.Option{receipts.WithClock(cfg.Clock)}
	if t.ReceiptDebounce > 0 {
		rcOpts = append(rcOpts, receipts.WithDebounce(t.ReceiptDebounce))
	}
	if t.BottomThreshold > 0 {
		rcOpts = append(rcOpts, receipts.WithThreshold(t.BottomThreshold))
	}
	r.receipts = receipts.New(r.session, rcOpts...)

	r.flash = toast.NewFlash(cfg.Clock)
	r.router = r.buildRouter()
	return r, nil
}

func (r *Room) Name() string                 { return r.cfg.Room }
func (r *Room) Session() *session.Session    { return r.session }
func (r *Room) Timeline() *timeline.Timeline { return r.timeline }
func (r *Room) Indicator() *typing.Indicator { return r.indicator }
func (r *Room) Signaler() *typing.Signaler   { return r.signaler }
func (r *Room) Receipts() *receipts.Trigger  { return r.receipts }
func (r *Room) Flash() *toast.Flash          { return r.flash }
func (r *Room) Router() *router.Router       { return r.router }

// Start loads the newest history page, then opens the room channel. A
// failed history load is reported but the channel is still opened.
func (r *Room) Start(ctx context.Context) error {
	r.cfg.Dispatcher.Route(r.channel, r.router)
	r.session.OnEvent(r.cfg.Dispatcher.Publish)

	var loadErr error
	page, err := r.cfg.API.FetchMessages(ctx, r.cfg.Room, 0)
	if err != nil {
		loadErr = fmt.Errorf("load history: %w", err)
		logger.WarnCF("client", "Initial history load failed", map[string]any{"room": r.cfg.Room, "error": err.Error()})
	} else {
		r.timeline.Load(page)
		r.observeAll()
		r.reveal()
	}

	if err := r.session.Start(ctx); err != nil {
		return errors.Join(loadErr, fmt.Errorf("room channel: %w", err))
	}
	return loadErr
}

// Stop closes the session and cancels every pending timer. Pages still in
// flight are discarded when they land.
func (r *Room) Stop() {
	r.signaler.Stop()
	r.receipts.Stop()
	r.indicator.Close()
	r.timeline.Close()
	r.flash.Clear()
	r.session.Stop()
	r.cfg.Dispatcher.Remove(r.channel)
}

func (r *Room) observe(m timeline.Message) {
	if r.cfg.OnMessage != nil {
		r.cfg.OnMessage(m)
	}
}

func (r *Room) observeID(id protocol.ID) {
	if m, ok := r.timeline.Message(id); ok {
		r.observe(m)
	}
}

func (r *Room) observeAll() {
	if r.cfg.OnMessage == nil {
		return
	}
	for _, it := range r.timeline.Items() {
		if it.Kind == timeline.ItemMessage {
			r.cfg.OnMessage(it.Message)
		}
	}
}

// Send sends a text message. It reports false when the session was not
// open and the message was dropped.
func (r *Room) Send(text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, ErrEmptyMessage
	}
	ok := r.session.Send(protocol.ChatFrame(text, false))
	r.signaler.MessageSent()
	if !ok {
		r.flash.Show("Not connected, message not sent")
	}
	return ok, nil
}

func (r *Room) Keystroke(k typing.Key) {
	r.signaler.Keystroke(k)
}

// Edit changes the content of one of the viewer's messages. Local checks
// run first so an expired edit never reaches the server.
func (r *Room) Edit(ctx context.Context, id protocol.ID, content string) error {
	if err := r.timeline.CheckEditable(id); err != nil {
		r.flash.Show(editError(err))
		return err
	}
	stored, err := r.cfg.API.EditMessage(ctx, id, content)
	if err != nil {
		r.report(ctx, err)
		return err
	}
	if r.timeline.ApplyEdit(id, stored) {
		r.observeID(id)
	}
	return nil
}

func editError(err error) string {
	switch {
	case errors.Is(err, timeline.ErrEditWindowExpired):
		return "Messages can only be edited within 15 minutes"
	case errors.Is(err, timeline.ErrNotEditable):
		return "This message cannot be edited"
	default:
		return "Message not found"
	}
}

func (r *Room) Delete(ctx context.Context, id protocol.ID) error {
	m, ok := r.timeline.Message(id)
	if !ok {
		r.flash.Show("Message not found")
		return timeline.ErrMessageNotFound
	}
	if !timeline.CanDelete(m) {
		r.flash.Show("You can only delete your own messages")
		return timeline.ErrNotEditable
	}
	if err := r.cfg.API.DeleteMessage(ctx, id); err != nil {
		r.report(ctx, err)
		return err
	}
	if r.timeline.ApplyDelete(id) {
		r.observeID(id)
	}
	return nil
}

// Upload sends a file from disk and posts it to the room. Files that fail
// validation are reported on the flash line and never sent.
func (r *Room) Upload(ctx context.Context, path string) (string, error) {
	url, err := r.cfg.API.UploadFile(ctx, path)
	if err != nil {
		r.report(ctx, err)
		return "", err
	}
	if !r.session.Send(protocol.ChatFrame(url, true)) {
		r.flash.Show("Not connected, file uploaded but not posted")
	}
	return url, nil
}

// report shows validation failures inline and everything else as a toast.
func (r *Room) report(ctx context.Context, err error) {
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		r.flash.Show(verr.Error())
		return
	}
	msg := err.Error()
	var serr *api.ServerError
	if errors.As(err, &serr) && serr.Message != "" {
		msg = serr.Message
	}
	if nerr := r.cfg.Toasts.Notify(ctx, toast.Error(msg)); nerr != nil {
		logger.WarnCF("client", "Toast delivery failed", map[string]any{"error": nerr.Error()})
	}
}

// Scroll moves the viewport by delta rows, updates the read-receipt mode and
// loads older history when the top is reached.
func (r *Room) Scroll(ctx context.Context, delta int) (timeline.ScrollState, error) {
	st := r.timeline.ScrollBy(delta)
	r.receipts.OnScroll(st.DistanceFromBottom)
	r.reveal()
	if !st.AtTop {
		return st, nil
	}
	if _, err := r.LoadOlder(ctx); err != nil {
		return st, err
	}
	r.reveal()
	return r.timeline.View(), nil
}

func (r *Room) ScrollToBottom() timeline.ScrollState {
	st := r.timeline.ScrollToBottom()
	r.receipts.OnScroll(st.DistanceFromBottom)
	r.reveal()
	return st
}

// SetViewportHeight resizes the viewport in rows. Messages it brings into
// view count as seen.
func (r *Room) SetViewportHeight(rows int) timeline.ScrollState {
	r.timeline.SetViewportHeight(rows)
	r.reveal()
	return r.timeline.View()
}

// reveal tells the receipt trigger about messages that came at least half
// into view since the last call.
func (r *Room) reveal() {
	best := 0.0
	now := make(map[protocol.ID]struct{})
	r.visMu.Lock()
	for _, v := range r.timeline.VisibleMessages() {
		if v.ID == "" || v.Ratio < receipts.VisibleRatio {
			continue
		}
		now[v.ID] = struct{}{}
		if _, ok := r.visible[v.ID]; !ok {
			best = max(best, v.Ratio)
		}
	}
	r.visible = now
	r.visMu.Unlock()

	if best > 0 {
		r.receipts.OnVisible(best)
	}
}

// LoadOlder prepends the next history page.
func (r *Room) LoadOlder(ctx context.Context) (int, error) {
	n, err := r.timeline.LoadOlder(ctx, r.cfg.API)
	if err != nil {
		if !errors.Is(err, timeline.ErrClosed) {
			r.report(ctx, err)
		}
		return 0, err
	}
	if n > 0 && r.cfg.OnMessage != nil {
		for _, it := range r.timeline.Items()[:n] {
			if it.Kind == timeline.ItemMessage {
				r.cfg.OnMessage(it.Message)
			}
		}
	}
	return n, nil
}

// followNotice keeps the bottom in view after a notice unless the viewer
// scrolled up to read older messages.
func (r *Room) followNotice(added bool) {
	if added && !r.receipts.ViewingOld() {
		r.timeline.ScrollToBottom()
		r.reveal()
	}
}

func (r *Room) buildRouter() *router.Router {
	rt := router.New("room:" + r.cfg.Room)

	rt.Default(router.Typed(func(_ context.Context, p protocol.ChatMessage) error {
		m := timeline.FromPush(p, r.timeline.Self(), r.cfg.Clock.Now())
		follow := r.receipts.OnLiveMessage()
		if r.timeline.Append(m, follow) {
			r.observe(m)
			if follow {
				r.reveal()
			}
		}
		return nil
	}))

	membership := func(kind string) router.HandlerFunc {
		return router.Typed(func(_ context.Context, p protocol.Membership) error {
			r.followNotice(r.timeline.Membership(kind, p.Username))
			return nil
		})
	}
	rt.Handle(protocol.KindUserJoin, membership(protocol.KindUserJoin))
	rt.Handle(protocol.KindUserLeave, membership(protocol.KindUserLeave))

	rt.Handle(protocol.KindTyping, router.Typed(func(_ context.Context, p protocol.Typing) error {
		r.indicator.Observe(p)
		return nil
	}))

	rt.Handle(protocol.KindMessageEdited, router.Typed(func(_ context.Context, p protocol.MessageEdited) error {
		if r.timeline.ApplyEdit(p.MessageID, p.Content) {
			r.observeID(p.MessageID)
		}
		return nil
	}))

	rt.Handle(protocol.KindMessageDeleted, router.Typed(func(_ context.Context, p protocol.MessageDeleted) error {
		if r.timeline.ApplyDelete(p.MessageID) {
			r.observeID(p.MessageID)
		}
		return nil
	}))

	rt.Handle(protocol.KindGroupUpdate, router.Typed(func(_ context.Context, p protocol.GroupUpdate) error {
		r.followNotice(r.timeline.GroupUpdate(p))
		return nil
	}))

	return rt
}
