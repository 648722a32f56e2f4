package typing

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

// Self identifies the local user so their own typing echoes are ignored.
type Self struct {
	ID       protocol.ID
	Username string
}

func (s Self) matches(ev protocol.Typing) bool {
	if s.ID != "" && ev.UserID != "" {
		return s.ID == ev.UserID
	}
	return ev.Username != "" && ev.Username == s.Username
}

type typer struct {
	name      string
	expiry    *clock.Timer
	hide      *clock.Timer
	expiryGen uint64
	hideGen   uint64
}

// Indicator tracks which remote users are typing in one room.
type Indicator struct {
	mu       sync.Mutex
	clock    clock.Clock
	hide     time.Duration
	expiry   time.Duration
	self     Self
	typers   map[string]*typer
	order    []string
	onChange func(text string)
}

func NewIndicator(self Self, opts ...Option) *Indicator {
	s := newSettings(opts)
	return &Indicator{
		clock:  s.clock,
		hide:   s.hide,
		expiry: s.expiry,
		self:   self,
		typers: make(map[string]*typer),
	}
}

// OnChange registers fn to receive the rendered text whenever the set of
// typing users changes.
func (in *Indicator) OnChange(fn func(text string)) {
	in.mu.Lock()
	in.onChange = fn
	in.mu.Unlock()
}

func (in *Indicator) Observe(ev protocol.Typing) {
	if in.self.matches(ev) {
		return
	}
	key := string(ev.UserID)
	if key == "" {
		key = ev.Username
	}
	if key == "" {
		logger.DebugC("typing", "Ignoring typing event without a user")
		return
	}

	in.mu.Lock()
	changed := false
	if ev.IsTyping {
		changed = in.showLocked(key, ev.Username)
	} else {
		in.scheduleHideLocked(key)
	}
	text, fn := in.textLocked(), in.onChange
	in.mu.Unlock()

	if changed && fn != nil {
		fn(text)
	}
}

func (in *Indicator) showLocked(key, name string) bool {
	t, ok := in.typers[key]
	if !ok {
		if name == "" {
			name = key
		}
		t = &typer{name: name}
		in.typers[key] = t
		in.order = append(in.order, key)
	}

	if t.hide != nil {
		t.hide.Stop()
		t.hide = nil
	}
	t.hideGen++

	if t.expiry != nil {
		t.expiry.Stop()
	}
	t.expiryGen++
	gen := t.expiryGen
	t.expiry = in.clock.AfterFunc(in.expiry, func() { in.expire(key, t, gen, false) })

	return !ok
}

func (in *Indicator) scheduleHideLocked(key string) {
	t, ok := in.typers[key]
	if !ok || t.hide != nil {
		return
	}
	t.hideGen++
	gen := t.hideGen
	t.hide = in.clock.AfterFunc(in.hide, func() { in.expire(key, t, gen, true) })
}

func (in *Indicator) expire(key string, t *typer, gen uint64, hide bool) {
	in.mu.Lock()
	current, ok := in.typers[key]
	stale := !ok || current != t
	if hide {
		stale = stale || gen != t.hideGen
	} else {
		stale = stale || gen != t.expiryGen
	}
	if stale {
		in.mu.Unlock()
		return
	}
	in.removeLocked(key)
	text, fn := in.textLocked(), in.onChange
	in.mu.Unlock()

	if !hide {
		logger.DebugCF("typing", "Typing indicator expired", map[string]any{"user": t.name})
	}
	if fn != nil {
		fn(text)
	}
}

func (in *Indicator) removeLocked(key string) {
	t := in.typers[key]
	if t.expiry != nil {
		t.expiry.Stop()
	}
	if t.hide != nil {
		t.hide.Stop()
	}
	delete(in.typers, key)
	for i, k := range in.order {
		if k == key {
			in.order = append(in.order[:i], in.order[i+1:]...)
			break
		}
	}
}

// Typing returns the display names of typing users, oldest first.
func (in *Indicator) Typing() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	names := make([]string, 0, len(in.order))
	for _, k := range in.order {
		names = append(names, in.typers[k].name)
	}
	return names
}

func (in *Indicator) Text() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.textLocked()
}

func (in *Indicator) textLocked() string {
	switch n := len(in.order); n {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", in.typers[in.order[0]].name)
	case 2:
		return fmt.Sprintf("%s and 1 other are typing...", in.typers[in.order[0]].name)
	default:
		return fmt.Sprintf("%s and %d others are typing...", in.typers[in.order[0]].name, n-1)
	}
}

// Close stops every pending timer.
func (in *Indicator) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for key := range in.typers {
		in.removeLocked(key)
	}
}
