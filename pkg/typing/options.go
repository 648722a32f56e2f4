package typing

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultIdle   = 1000 * time.Millisecond
	DefaultHide   = 300 * time.Millisecond
	DefaultExpiry = 5 * time.Second
)

type settings struct {
	clock  clock.Clock
	idle   time.Duration
	hide   time.Duration
	expiry time.Duration
}

type Option func(*settings)

func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithIdle sets how long after the last keystroke "stopped typing" is sent.
func WithIdle(d time.Duration) Option {
	return func(s *settings) { s.idle = d }
}

// WithHideDelay sets how long a remote "stopped typing" waits before hiding.
func WithHideDelay(d time.Duration) Option {
	return func(s *settings) { s.hide = d }
}

// WithExpiry sets how long a remote typer stays visible without a fresh
// "typing" event.
func WithExpiry(d time.Duration) Option {
	return func(s *settings) { s.expiry = d }
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:  clock.New(),
		idle:   DefaultIdle,
		hide:   DefaultHide,
		expiry: DefaultExpiry,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
