package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	DefaultPageSize    = 20
	DefaultLeaveWindow = 2 * time.Second
)

var (
	ErrClosed            = errors.New("timeline closed")
	ErrMessageNotFound   = errors.New("message not found")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrNotEditable       = errors.New("message cannot be edited")
)

// Fetcher loads one page of history, newest first, starting offset rows
// back from the newest message.
type Fetcher interface {
	FetchMessages(ctx context.Context, room string, offset int) ([]protocol.HistoryMessage, error)
}

type ItemKind int

const (
	ItemMessage ItemKind = iota
	ItemNotice
)

type Item struct {
	Kind    ItemKind
	Message Message
	Notice  string
	At      time.Time
}

// Rows is the height of the item in the viewport.
func (it Item) Rows() int {
	if it.Kind == ItemNotice {
		return 1
	}
	return 1 + strings.Count(it.Message.Content, "\n")
}

// Cursor is the offset of the next history page. Exhausted is set once a
// fetch returns no rows.
type Cursor struct {
	Offset    int
	Exhausted bool
}

type Option func(*Timeline)

func WithClock(c clock.Clock) Option {
	return func(t *Timeline) { t.clock = c }
}

func WithPageSize(n int) Option {
	return func(t *Timeline) { t.pageSize = n }
}

func WithLeaveWindow(d time.Duration) Option {
	return func(t *Timeline) { t.leaveWindow = d }
}

// Timeline is the ordered, oldest-first content of one room.
type Timeline struct {
	mu          sync.Mutex
	room        string
	self        Self
	clock       clock.Clock
	pageSize    int
	leaveWindow time.Duration

	items     []Item
	ids       map[protocol.ID]struct{}
	cursor    Cursor
	loading   bool
	loaded    bool
	closed    bool
	lastLeave map[string]time.Time
	view      Viewport
	onChange  func()
}

func New(room string, self Self, opts ...Option) *Timeline {
	t := &Timeline{
		room:        room,
		self:        self,
		clock:       clock.New(),
		pageSize:    DefaultPageSize,
		leaveWindow: DefaultLeaveWindow,
		ids:         make(map[protocol.ID]struct{}),
		lastLeave:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Timeline) Room() string { return t.room }
func (t *Timeline) Self() Self   { return t.self }

// OnChange registers fn to run after every visible change.
func (t *Timeline) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Timeline) changed() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load installs the initial page, given newest first as the server sends it,
// and scrolls to the bottom.
func (t *Timeline) Load(page []protocol.HistoryMessage) {
	t.mu.Lock()
	now := t.clock.Now()
	t.items = t.items[:0]
	t.ids = make(map[protocol.ID]struct{}, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		t.appendLocked(FromHistory(page[i], now), now)
	}
	t.cursor = Cursor{Offset: len(page)}
	t.loaded = true
	t.view.scrollToBottom(t.contentRowsLocked())
	t.mu.Unlock()

	t.changed()
}

func (t *Timeline) appendLocked(m Message, at time.Time) bool {
	if m.ID != "" {
		if _, dup := t.ids[m.ID]; dup {
			return false
		}
		t.ids[m.ID] = struct{}{}
	}
	t.items = append(t.items, Item{Kind: ItemMessage, Message: m, At: at})
	return true
}

// Append adds a live message at the end. Duplicate ids are ignored. With
// follow the viewport is scrolled to reveal it, otherwise it stays put.
func (t *Timeline) Append(m Message, follow bool) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if !t.appendLocked(m, t.clock.Now()) {
		t.mu.Unlock()
		logger.DebugCF("timeline", "Ignoring duplicate message", map[string]any{
			"room": t.room,
			"id":   string(m.ID),
		})
		return false
	}
	// history offsets count back from the newest row
	if t.loaded {
		t.cursor.Offset++
	}
	if follow {
		t.view.scrollToBottom(t.contentRowsLocked())
	}
	t.mu.Unlock()

	t.changed()
	return true
}

// AppendPush converts a chat push and appends it.
func (t *Timeline) AppendPush(p protocol.ChatMessage, follow bool) bool {
	return t.Append(FromPush(p, t.self, t.clock.Now()), follow)
}

// LoadOlder fetches the next history page and prepends it. It is a no-op
// while another fetch is in flight or once history is exhausted. A result
// that arrives after Close is discarded.
func (t *Timeline) LoadOlder(ctx context.Context, f Fetcher) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	if t.loading || t.cursor.Exhausted {
		t.mu.Unlock()
		return 0, nil
	}
	t.loading = true
	offset := t.cursor.Offset
	t.mu.Unlock()

	page, err := f.FetchMessages(ctx, t.room, offset)

	t.mu.Lock()
	t.loading = false
	if t.closed {
		t.mu.Unlock()
		logger.DebugCF("timeline", "Discarding page for closed timeline", map[string]any{"room": t.room})
		return 0, ErrClosed
	}
	if err != nil {
		t.mu.Unlock()
		logger.WarnCF("timeline", "Failed to load older messages", map[string]any{
			"room":   t.room,
			"offset": offset,
			"error":  err.Error(),
		})
		return 0, fmt.Errorf("load older messages: %w", err)
	}
	if len(page) == 0 {
		t.cursor.Exhausted = true
		t.mu.Unlock()
		logger.DebugCF("timeline", "History exhausted", map[string]any{"room": t.room, "offset": offset})
		return 0, nil
	}

	now := t.clock.Now()
	older := make([]Item, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		m := FromHistory(page[i], now)
		if m.ID != "" {
			if _, dup := t.ids[m.ID]; dup {
				continue
			}
			t.ids[m.ID] = struct{}{}
		}
		older = append(older, Item{Kind: ItemMessage, Message: m, At: now})
	}

	before := t.contentRowsLocked()
	t.items = append(older, t.items...)
	t.cursor.Offset += len(page)
	t.view.Top += t.contentRowsLocked() - before
	t.mu.Unlock()

	t.changed()
	return len(older), nil
}

func (t *Timeline) findLocked(id protocol.ID) int {
	for i := len(t.items) - 1; i >= 0; i-- {
		if t.items[i].Kind == ItemMessage && t.items[i].Message.ID == id {
			return i
		}
	}
	return -1
}

// ApplyEdit replaces the content of message id and marks it edited. Edits of
// deleted messages are ignored.
func (t *Timeline) ApplyEdit(id protocol.ID, content string) bool {
	t.mu.Lock()
	i := t.findLocked(id)
	if i < 0 || t.items[i].Message.Deleted {
		t.mu.Unlock()
		return false
	}
	t.items[i].Message.Content = content
	t.items[i].Message.Edited = true
	t.mu.Unlock()

	t.changed()
	return true
}

// ApplyDelete replaces message id with a tombstone. There is no way back.
func (t *Timeline) ApplyDelete(id protocol.ID) bool {
	t.mu.Lock()
	i := t.findLocked(id)
	if i < 0 || t.items[i].Message.Deleted {
		t.mu.Unlock()
		return false
	}
	m := &t.items[i].Message
	m.Content = Tombstone
	m.Kind = KindText
	m.Deleted = true
	m.Edited = false
	t.mu.Unlock()

	t.changed()
	return true
}

// Membership appends a join or leave notice. Leave notices for the same user
// inside the leave window are dropped.
func (t *Timeline) Membership(kind, username string) bool {
	var text string
	switch kind {
	case protocol.KindUserJoin:
		text = username + " joined the chat"
	case protocol.KindUserLeave:
		text = username + " left the chat"
	default:
		return false
	}

	t.mu.Lock()
	now := t.clock.Now()
	if kind == protocol.KindUserLeave {
		if last, ok := t.lastLeave[username]; ok && now.Sub(last) < t.leaveWindow {
			t.mu.Unlock()
			return false
		}
		t.lastLeave[username] = now
	}
	t.items = append(t.items, Item{Kind: ItemNotice, Notice: text, At: now})
	t.mu.Unlock()

	t.changed()
	return true
}

// GroupUpdate appends a notice for a group membership change.
func (t *Timeline) GroupUpdate(u protocol.GroupUpdate) bool {
	name := u.Username
	if name == "" {
		name = "A member"
	}
	var text string
	switch u.EventType {
	case protocol.GroupMemberLeft:
		text = name + " left the group"
	case protocol.GroupMemberKicked:
		text = name + " was removed from the group"
	case protocol.GroupAdminTransferred:
		admin := u.NewAdmin
		if admin == "" {
			admin = "A member"
		}
		text = admin + " is now the group admin"
	default:
		return false
	}

	t.mu.Lock()
	t.items = append(t.items, Item{Kind: ItemNotice, Notice: text, At: t.clock.Now()})
	t.mu.Unlock()

	t.changed()
	return true
}

// CheckEditable reports why message id may not be edited right now.
func (t *Timeline) CheckEditable(id protocol.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.findLocked(id)
	if i < 0 {
		return ErrMessageNotFound
	}
	m := t.items[i].Message
	if !m.IsMe || m.Deleted || m.Kind != KindText {
		return ErrNotEditable
	}
	if !CanEdit(m, t.clock.Now()) {
		return ErrEditWindowExpired
	}
	return nil
}

func (t *Timeline) Message(id protocol.ID) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.findLocked(id); i >= 0 {
		return t.items[i].Message, true
	}
	return Message{}, false
}

func (t *Timeline) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.items...)
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// MessageCount counts message items, ignoring notices.
func (t *Timeline) MessageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, it := range t.items {
		if it.Kind == ItemMessage {
			n++
		}
	}
	return n
}

func (t *Timeline) Cursor() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Timeline) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Close marks the timeline as torn down. In-flight fetches resolve as no-ops.
func (t *Timeline) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Timeline) contentRowsLocked() int {
	rows := 0
	for _, it := range t.items {
		rows += it.Rows()
	}
	return rows
}
