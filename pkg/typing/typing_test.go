package typing

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

type sentFrame struct {
	isTyping bool
	at       time.Time
}

type recordingSender struct {
	mu     sync.Mutex
	clock  clock.Clock
	frames []sentFrame
}

func (r *recordingSender) Send(f protocol.Frame) bool {
	raw, _ := f.Encode()
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			IsTyping bool `json:"is_typing"`
		} `json:"data"`
	}
	_ = json.Unmarshal(raw, &decoded)

	r.mu.Lock()
	defer r.mu.Unlock()
	if decoded.Type == protocol.FrameTyping {
		r.frames = append(r.frames, sentFrame{isTyping: decoded.Data.IsTyping, at: r.clock.Now()})
	}
	return true
}

func (r *recordingSender) sent() []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentFrame(nil), r.frames...)
}

func letter(r rune) Key { return Key{Rune: r} }

func TestSignaler_BurstProducesOneStartAndOneStop(t *testing.T) {
	mock := clock.NewMock()
	sender := &recordingSender{clock: mock}
	s := NewSignaler(sender, WithClock(mock))

	start := mock.Now()
	for i, r := range "hello" {
		if i > 0 {
			mock.Add(400 * time.Millisecond)
		}
		s.Keystroke(letter(r))
	}
	last := mock.Now()

	mock.Add(999 * time.Millisecond)
	require.Len(t, sender.sent(), 1)
	assert.True(t, sender.sent()[0].isTyping)
	assert.Equal(t, start, sender.sent()[0].at)

	mock.Add(1 * time.Millisecond)
	require.Eventually(t, func() bool { return len(sender.sent()) == 2 }, time.Second, time.Millisecond)

	frames := sender.sent()
	assert.False(t, frames[1].isTyping)
	assert.Equal(t, last.Add(time.Second), frames[1].at)
	assert.False(t, s.Typing())
}

func TestSignaler_IgnoresNonTypingKeys(t *testing.T) {
	mock := clock.NewMock()
	sender := &recordingSender{clock: mock}
	s := NewSignaler(sender, WithClock(mock))

	s.Keystroke(Key{Enter: true})
	s.Keystroke(Key{Rune: 'c', Ctrl: true})
	s.Keystroke(Key{Rune: 'x', Alt: true})
	s.Keystroke(Key{Rune: 'v', Meta: true})
	s.Keystroke(Key{Rune: '\t'})
	s.Keystroke(Key{})
	assert.Empty(t, sender.sent())

	s.Keystroke(Key{Backspace: true})
	assert.Len(t, sender.sent(), 1)
}

func TestSignaler_MessageSentStopsImmediately(t *testing.T) {
	mock := clock.NewMock()
	sender := &recordingSender{clock: mock}
	s := NewSignaler(sender, WithClock(mock))

	s.Keystroke(letter('h'))
	s.MessageSent()

	frames := sender.sent()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].isTyping)
	assert.False(t, frames[1].isTyping)

	// the cancelled idle timer must not emit a second stop
	mock.Add(2 * time.Second)
	time.Sleep(5 * time.Millisecond)
	assert.Len(t, sender.sent(), 2)
}

func TestSignaler_RestartsAfterStop(t *testing.T) {
	mock := clock.NewMock()
	sender := &recordingSender{clock: mock}
	s := NewSignaler(sender, WithClock(mock))

	s.Keystroke(letter('a'))
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return len(sender.sent()) == 2 }, time.Second, time.Millisecond)

	s.Keystroke(letter('b'))
	frames := sender.sent()
	require.Len(t, frames, 3)
	assert.True(t, frames[2].isTyping)
}

func remote(name string, on bool) protocol.Typing {
	return protocol.Typing{Username: name, IsTyping: on}
}

func TestIndicator_IgnoresSelf(t *testing.T) {
	in := NewIndicator(Self{ID: "1", Username: "me"}, WithClock(clock.NewMock()))
	in.Observe(remote("me", true))
	in.Observe(protocol.Typing{UserID: "1", Username: "renamed", IsTyping: true})
	assert.Empty(t, in.Typing())
	assert.Equal(t, "", in.Text())
}

func TestIndicator_ShowIsIdempotent(t *testing.T) {
	in := NewIndicator(Self{Username: "me"}, WithClock(clock.NewMock()))
	var changes []string
	in.OnChange(func(text string) { changes = append(changes, text) })

	in.Observe(remote("alice", true))
	in.Observe(remote("alice", true))
	in.Observe(remote("alice", true))

	assert.Equal(t, []string{"alice is typing..."}, changes)
}

func TestIndicator_HideIsDebounced(t *testing.T) {
	mock := clock.NewMock()
	in := NewIndicator(Self{Username: "me"}, WithClock(mock))

	in.Observe(remote("alice", true))
	in.Observe(remote("alice", false))
	mock.Add(200 * time.Millisecond)
	in.Observe(remote("alice", true))
	mock.Add(500 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, []string{"alice"}, in.Typing())

	in.Observe(remote("alice", false))
	mock.Add(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(in.Typing()) == 0 }, time.Second, time.Millisecond)
}

func TestIndicator_DefensiveExpiry(t *testing.T) {
	mock := clock.NewMock()
	in := NewIndicator(Self{Username: "me"}, WithClock(mock), WithExpiry(3*time.Second))

	in.Observe(remote("bob", true))
	mock.Add(2 * time.Second)
	in.Observe(remote("bob", true))
	mock.Add(2 * time.Second)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, []string{"bob"}, in.Typing())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return in.Text() == "" }, time.Second, time.Millisecond)
}

func TestIndicator_Text(t *testing.T) {
	in := NewIndicator(Self{Username: "me"}, WithClock(clock.NewMock()))
	assert.Equal(t, "", in.Text())

	in.Observe(remote("alice", true))
	assert.Equal(t, "alice is typing...", in.Text())

	in.Observe(remote("bob", true))
	assert.Equal(t, "alice and 1 other are typing...", in.Text())

	in.Observe(remote("carol", true))
	assert.Equal(t, "alice and 2 others are typing...", in.Text())

	in.Close()
	assert.Equal(t, "", in.Text())
}
