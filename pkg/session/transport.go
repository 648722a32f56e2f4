package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport handle of one physical connection. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// keepAliveConn is implemented by transports that support ping/pong and
// deadlines. Other transports run without keepalive.
type keepAliveConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Dialer opens a transport to url.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// WebsocketDialer adapts a gorilla dialer. A nil d uses websocket.DefaultDialer.
func WebsocketDialer(d *websocket.Dialer) Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}
