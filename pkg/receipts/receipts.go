package receipts

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	DefaultDebounce  = 100 * time.Millisecond
	DefaultThreshold = 50

	// VisibleRatio is the share of a message that must be on screen for it
	// to count as seen.
	VisibleRatio = 0.5
)

type Sender interface {
	Send(frame protocol.Frame) bool
}

type Option func(*Trigger)

func WithClock(c clock.Clock) Option {
	return func(t *Trigger) { t.clock = c }
}

func WithDebounce(d time.Duration) Option {
	return func(t *Trigger) { t.debounce = d }
}

// WithThreshold sets how close to the bottom counts as "at the bottom".
func WithThreshold(n int) Option {
	return func(t *Trigger) { t.threshold = n }
}

// Trigger decides when to tell the server the room was read. Bursts of
// qualifying events collapse into one message_read frame.
type Trigger struct {
	mu         sync.Mutex
	clock      clock.Clock
	debounce   time.Duration
	threshold  int
	sender     Sender
	viewingOld bool
	timer      *clock.Timer
	gen        uint64
	sent       int
	closed     bool
}

func New(sender Sender, opts ...Option) *Trigger {
	t := &Trigger{
		clock:     clock.New(),
		debounce:  DefaultDebounce,
		threshold: DefaultThreshold,
		sender:    sender,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnScroll updates the viewing-old-messages mode from the distance between
// the viewport and the bottom, and marks the room read at the bottom.
func (t *Trigger) OnScroll(distanceFromBottom int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if distanceFromBottom <= t.threshold {
		t.viewingOld = false
		t.markLocked()
		return
	}
	t.viewingOld = true
}

// OnLiveMessage marks the room read if the viewer is at the bottom and
// reports whether the viewport should follow the new message.
func (t *Trigger) OnLiveMessage() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.viewingOld {
		return false
	}
	t.markLocked()
	return true
}

// OnVisible is fed the visible share of a message as it scrolls into view.
func (t *Trigger) OnVisible(ratio float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ratio >= VisibleRatio && !t.viewingOld {
		t.markLocked()
	}
}

func (t *Trigger) ViewingOld() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewingOld
}

// MarkRead schedules a message_read frame, restarting the debounce window.
func (t *Trigger) MarkRead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markLocked()
}

// Sent counts flushed frames, including ones the session dropped.
func (t *Trigger) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// Stop cancels a pending flush.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Trigger) markLocked() {
	if t.closed {
		return
	}
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.debounce, func() { t.flush(gen) })
}

func (t *Trigger) flush(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.sent++
	t.mu.Unlock()

	if !t.sender.Send(protocol.MessageReadFrame()) {
		logger.DebugC("receipts", "Read receipt dropped, session not open")
	}
}
