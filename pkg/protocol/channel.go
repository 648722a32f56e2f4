package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

type ChannelKind string

const (
	ChannelNotifications ChannelKind = "notifications"
	ChannelRoom          ChannelKind = "room"
)

// Channel names the logical target of a socket session: the account-wide
// notification stream or one chat room.
type Channel struct {
	Kind ChannelKind
	Room string
}

func Notifications() Channel {
	return Channel{Kind: ChannelNotifications}
}

func Room(name string) Channel {
	return Channel{Kind: ChannelRoom, Room: name}
}

func (c Channel) String() string {
	if c.Kind == ChannelRoom {
		return "room:" + c.Room
	}
	return string(c.Kind)
}

// Path is the escaped websocket endpoint path for the channel.
func (c Channel) Path() string {
	if c.Kind == ChannelRoom {
		return "/ws/chat/" + url.PathEscape(c.Room) + "/"
	}
	return "/ws/notifications/"
}

func (c Channel) rawPath() string {
	if c.Kind == ChannelRoom {
		return "/ws/chat/" + c.Room + "/"
	}
	return "/ws/notifications/"
}

// URL resolves the channel against an http(s) or ws(s) base URL and returns
// the websocket URL to dial.
func (c Channel) URL(base string) (string, error) {
	if c.Kind == ChannelRoom && c.Room == "" {
		return "", fmt.Errorf("room channel without a room name")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	// Path holds the decoded form; RawPath keeps a '/' inside a room name escaped.
	escaped := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + c.rawPath()
	u.RawPath = escaped + c.Path()
	return u.String(), nil
}
