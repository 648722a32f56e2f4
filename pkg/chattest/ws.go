package chattest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn, path: r.URL.EscapedPath()}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.dials[c.path]++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	room, err := url.PathUnescape(chi.URLParam(r, "room"))
	if err != nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if room == "" {
			continue
		}
		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		s.handleRoomFrame(room, f)
	}
}

func (s *Server) handleRoomFrame(room string, f clientFrame) {
	switch f.Type {
	case protocol.FrameMessage:
		var d struct {
			Message string `json:"message"`
			IsFile  bool   `json:"is_file"`
		}
		if json.Unmarshal(f.Data, &d) != nil || d.Message == "" {
			return
		}
		s.mu.Lock()
		m := s.storeLocked(room, s.User, d.Message, d.IsFile)
		s.mu.Unlock()

		s.PushRoom(room, map[string]any{
			"id":        m.id,
			"sender":    map[string]any{"id": s.User.ID, "username": s.User.Username, "full_name": s.User.FullName},
			"message":   m.content,
			"is_file":   m.isFile,
			"timestamp": m.timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		})
		s.PushNotification(map[string]any{
			"event":          protocol.KindNewMessage,
			"room_id":        room,
			"room_name":      room,
			"from":           s.User.Username,
			"from_user_id":   s.User.ID,
			"from_full_name": s.User.FullName,
			"content":        m.content,
			"is_file":        m.isFile,
		})
	case protocol.FrameTyping:
		var d struct {
			IsTyping bool `json:"is_typing"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return
		}
		s.PushRoom(room, map[string]any{
			"event":     protocol.KindTyping,
			"username":  s.User.Username,
			"user_id":   s.User.ID,
			"is_typing": d.IsTyping,
		})
	case protocol.FrameMessageRead:
		s.mu.Lock()
		s.reads[room]++
		s.mu.Unlock()
	}
}

func (s *Server) broadcast(path string, v any) {
	s.mu.Lock()
	var targets []*wsConn
	for c := range s.conns {
		if c.path == path {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		_ = c.writeJSON(v)
	}
}

// PushNotification sends v to every open notification connection.
func (s *Server) PushNotification(v any) {
	s.broadcast(protocol.Notifications().Path(), v)
}

// PushRoom sends v to every connection open on room.
func (s *Server) PushRoom(room string, v any) {
	s.broadcast(protocol.Room(room).Path(), v)
}

// PushChat sends a chat message from another user to room and stores it.
func (s *Server) PushChat(room string, from User, text string) protocol.ID {
	s.mu.Lock()
	m := s.storeLocked(room, from, text, false)
	s.mu.Unlock()

	s.PushRoom(room, map[string]any{
		"id":        m.id,
		"sender":    map[string]any{"id": from.ID, "username": from.Username, "full_name": from.FullName},
		"message":   text,
		"is_file":   false,
		"timestamp": m.timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
	})
	return protocol.ID(strconv.Itoa(m.id))
}

// DropConnections closes every websocket from the server side, the way a
// backend restart would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	var all []*wsConn
	for c := range s.conns {
		all = append(all, c)
	}
	s.mu.Unlock()

	for _, c := range all {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseServiceRestart, "restart"), time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
}
