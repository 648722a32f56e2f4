package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	DefaultReconnectDelay   = 3000 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 1 << 20
)

var (
	ErrStopped        = errors.New("session stopped")
	ErrAlreadyStarted = errors.New("session already started")
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type Option func(*Session)

func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithReconnectDelay sets the fixed pause between an unexpected close and
// the next dial.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithHeader sets handshake headers such as Cookie and Origin.
func WithHeader(h http.Header) Option {
	return func(s *Session) { s.header = h.Clone() }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) { s.handshakeTimeout = d }
}

// connection is one physical socket. It is never reused after it closes.
type connection struct {
	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Session keeps one logical connection to a channel alive. After an
// unexpected close it dials again after a fixed delay, forever, until Stop.
type Session struct {
	id               string
	channel          protocol.Channel
	url              string
	header           http.Header
	dial             Dialer
	clock            clock.Clock
	delay            time.Duration
	handshakeTimeout time.Duration

	mu         sync.Mutex
	state      State
	started    bool
	stopped    bool
	retries    int
	conn       *connection
	retryTimer *clock.Timer
	ctx        context.Context
	cancel     context.CancelFunc
	onEvent    func(protocol.InboundEvent)
	onState    func(State)
}

func New(ch protocol.Channel, url string, opts ...Option) *Session {
	s := &Session{
		id:               uuid.New().String(),
		channel:          ch,
		url:              url,
		header:           http.Header{},
		dial:             WebsocketDialer(nil),
		clock:            clock.New(),
		delay:            DefaultReconnectDelay,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Channel() protocol.Channel { return s.channel }

// OnEvent registers the callback that receives every parsed inbound frame.
// It runs on the session's read goroutine.
func (s *Session) OnEvent(fn func(protocol.InboundEvent)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Retries counts reconnects scheduled since Start.
func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// Start dials the channel. A failed first dial is returned for reporting,
// but the session still retries in the background until Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	return s.connect()
}

// Send queues frame if the session is open. Otherwise the frame is dropped
// and Send reports false; delivery is never guaranteed.
func (s *Session) Send(frame protocol.Frame) bool {
	data, err := frame.Encode()
	if err != nil {
		logger.ErrorCF("session", "Failed to encode frame", map[string]any{
			"channel": s.channel.String(),
			"type":    frame.Type,
			"error":   err.Error(),
		})
		return false
	}

	s.mu.Lock()
	c := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || c == nil {
		logger.DebugCF("session", "Dropping frame, session not open", map[string]any{
			"channel": s.channel.String(),
			"type":    frame.Type,
		})
		return false
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		logger.WarnCF("session", "Send buffer full, dropping frame", map[string]any{
			"channel": s.channel.String(),
			"type":    frame.Type,
		})
		return false
	}
}

// Stop closes the current connection and cancels any pending reconnect.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	c := s.conn
	s.conn = nil
	s.state = StateClosed
	if s.cancel != nil {
		s.cancel()
	}
	notify := s.onState
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	if notify != nil {
		notify(StateClosed)
	}
	logger.InfoCF("session", "Session stopped", map[string]any{
		"channel": s.channel.String(),
		"session": s.id,
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	notify := s.onState
	s.mu.Unlock()
	if notify != nil {
		notify(st)
	}
}

func (s *Session) connect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.retryTimer = nil
	ctx := s.ctx
	s.mu.Unlock()

	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	conn, err := s.dial(dialCtx, s.url, s.header.Clone())
	cancel()
	if err != nil {
		logger.WarnCF("session", "Dial failed", map[string]any{
			"channel": s.channel.String(),
			"session": s.id,
			"error":   err.Error(),
		})
		s.mu.Lock()
		s.state = StateClosed
		s.scheduleReconnectLocked()
		notify := s.onState
		s.mu.Unlock()
		if notify != nil {
			notify(StateClosed)
		}
		return err
	}

	c := &connection{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrStopped
	}
	s.conn = c
	s.mu.Unlock()
	s.setState(StateOpen)

	logger.InfoCF("session", "Connected", map[string]any{
		"channel": s.channel.String(),
		"session": s.id,
		"retries": s.Retries(),
	})

	go s.readLoop(c)
	go s.writeLoop(c)
	return nil
}

// scheduleReconnectLocked arms the single reconnect timer. The caller holds s.mu.
func (s *Session) scheduleReconnectLocked() {
	if s.stopped || s.retryTimer != nil {
		return
	}
	s.retries++
	s.retryTimer = s.clock.AfterFunc(s.delay, func() {
		_ = s.connect()
	})
	logger.InfoCF("session", "Reconnect scheduled", map[string]any{
		"channel":  s.channel.String(),
		"delay_ms": s.delay.Milliseconds(),
		"attempt":  s.retries,
	})
}

// dropConnection discards c and schedules a reconnect if c was current.
func (s *Session) dropConnection(c *connection) {
	c.close()

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateClosed
	s.scheduleReconnectLocked()
	notify := s.onState
	s.mu.Unlock()

	if notify != nil {
		notify(StateClosed)
	}
}

func (s *Session) readLoop(c *connection) {
	defer s.dropConnection(c)

	if ka, ok := c.conn.(keepAliveConn); ok {
		ka.SetReadLimit(maxFrameSize)
		_ = ka.SetReadDeadline(time.Now().Add(pongWait))
		ka.SetPongHandler(func(string) error {
			return ka.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.WarnCF("session", "Connection lost", map[string]any{
						"channel": s.channel.String(),
						"error":   err.Error(),
					})
				} else {
					logger.DebugCF("session", "Read ended", map[string]any{
						"channel": s.channel.String(),
						"error":   err.Error(),
					})
				}
			}
			return
		}

		ev, err := protocol.ParseEvent(s.channel, data)
		if err != nil {
			logger.WarnCF("session", "Dropping malformed frame", map[string]any{
				"channel": s.channel.String(),
				"bytes":   len(data),
			})
			continue
		}

		s.mu.Lock()
		fn := s.onEvent
		s.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	}
}

func (s *Session) writeLoop(c *connection) {
	ka, keepAlive := c.conn.(keepAliveConn)
	var tick <-chan time.Time
	if keepAlive {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if keepAlive {
				_ = ka.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WarnCF("session", "Write failed", map[string]any{
					"channel": s.channel.String(),
					"error":   err.Error(),
				})
				c.close()
				return
			}
		case <-tick:
			_ = ka.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
