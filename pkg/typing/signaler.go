package typing

import (
	"sync"
	"time"
	"unicode"

	"github.com/benbjohnson/clock"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

// Sender is the outbound half of a room session.
type Sender interface {
	Send(frame protocol.Frame) bool
}

// Key describes one keystroke in the composer.
type Key struct {
	Rune      rune
	Backspace bool
	Enter     bool
	Ctrl      bool
	Alt       bool
	Meta      bool
}

// Signals reports whether the keystroke counts as typing: a printable
// character or backspace, without Enter or a modifier.
func (k Key) Signals() bool {
	if k.Enter || k.Ctrl || k.Alt || k.Meta {
		return false
	}
	if k.Backspace {
		return true
	}
	return k.Rune != 0 && unicode.IsPrint(k.Rune)
}

// Signaler turns local keystrokes into typing frames: one "typing" when the
// user starts and one "stopped" after the idle window.
type Signaler struct {
	mu     sync.Mutex
	clock  clock.Clock
	idle   time.Duration
	sender Sender
	typing bool
	timer  *clock.Timer
	gen    uint64
}

func NewSignaler(sender Sender, opts ...Option) *Signaler {
	s := newSettings(opts)
	return &Signaler{
		clock:  s.clock,
		idle:   s.idle,
		sender: sender,
	}
}

func (s *Signaler) Keystroke(k Key) {
	if !k.Signals() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.typing {
		s.typing = true
		s.sender.Send(protocol.TypingFrame(true))
	}
	s.restartLocked()
}

// MessageSent emits "stopped typing" right away.
func (s *Signaler) MessageSent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.typing = false
	s.sender.Send(protocol.TypingFrame(false))
}

func (s *Signaler) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Stop cancels the idle timer without sending anything.
func (s *Signaler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.typing = false
}

func (s *Signaler) restartLocked() {
	s.cancelLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.idle, func() { s.idleExpired(gen) })
}

func (s *Signaler) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Signaler) idleExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.typing {
		return
	}
	s.timer = nil
	s.typing = false
	s.sender.Send(protocol.TypingFrame(false))
}
