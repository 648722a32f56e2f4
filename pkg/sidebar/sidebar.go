// Package sidebar keeps the room list view model: last-message previews,
// presence dots and room removal.
package sidebar

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	previewLimit = 30
	sentImage    = "Sent an image"
	sentFile     = "Sent a file"
)

type Room struct {
	ID      protocol.ID
	Name    string
	IsGroup bool
	// PeerID is the other member of a direct room, used for the presence dot.
	PeerID  protocol.ID
	Preview string
}

type Self struct {
	ID       protocol.ID
	Username string
}

type Sidebar struct {
	mu       sync.Mutex
	self     Self
	rooms    map[protocol.ID]*Room
	order    []protocol.ID
	presence map[protocol.ID]bool
	onChange func()
	policy   *bluemonday.Policy
}

func New(self Self, rooms ...Room) *Sidebar {
	s := &Sidebar{
		self:     self,
		rooms:    make(map[protocol.ID]*Room),
		presence: make(map[protocol.ID]bool),
		policy:   bluemonday.StrictPolicy(),
	}
	for _, r := range rooms {
		s.addLocked(r)
	}
	return s
}

// OnChange registers fn to run after any visible change. fn runs without the
// sidebar lock held.
func (s *Sidebar) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Sidebar) notify(changed bool) {
	if !changed {
		return
	}
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Sidebar) addLocked(r Room) bool {
	if _, ok := s.rooms[r.ID]; ok {
		return false
	}
	room := r
	s.rooms[r.ID] = &room
	s.order = append(s.order, r.ID)
	return true
}

// AddRoom appends a room. Adding a known id is a no-op.
func (s *Sidebar) AddRoom(r Room) {
	s.mu.Lock()
	changed := s.addLocked(r)
	s.mu.Unlock()
	s.notify(changed)
}

func (s *Sidebar) RemoveRoom(id protocol.ID) bool {
	s.mu.Lock()
	_, ok := s.rooms[id]
	if ok {
		delete(s.rooms, id)
		for i, rid := range s.order {
			if rid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		logger.DebugCF("sidebar", "Room removed", map[string]any{"room_id": string(id)})
	}
	s.mu.Unlock()
	s.notify(ok)
	return ok
}

// clean strips markup from server text and returns it as plain text.
func (s *Sidebar) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}

func (s *Sidebar) isSelf(userID protocol.ID, username string) bool {
	if s.self.ID != "" && userID != "" {
		return s.self.ID == userID
	}
	return s.self.Username != "" && s.self.Username == username
}

// OnNewMessage updates the room's preview. It returns false when the room is
// not in the sidebar.
func (s *Sidebar) OnNewMessage(p protocol.NewMessage) bool {
	s.mu.Lock()
	room, ok := s.rooms[p.RoomID]
	if ok {
		var prefix string
		switch {
		case s.isSelf(p.FromUserID, p.From):
			prefix = "You: "
		case room.IsGroup || p.IsGroup:
			prefix = s.clean(p.FromFullName) + ": "
		}

		var content string
		switch {
		case p.IsFile && p.IsImage:
			content = sentImage
		case p.IsFile:
			content = sentFile
		default:
			content = truncate(s.clean(p.Content), previewLimit)
		}
		room.Preview = prefix + content
	}
	s.mu.Unlock()
	s.notify(ok)
	return ok
}

// OnMessageUpdated replaces the preview after an edit or delete. The server
// sends the full sentence ("edited a message"), so no colon follows the name.
func (s *Sidebar) OnMessageUpdated(p protocol.MessageUpdated) bool {
	s.mu.Lock()
	room, ok := s.rooms[p.RoomID]
	if ok {
		var prefix string
		switch {
		case s.isSelf(p.FromUserID, p.From):
			prefix = "You "
		case room.IsGroup || p.IsGroup:
			prefix = s.clean(p.FromFullName) + " "
		}
		room.Preview = prefix + s.clean(p.Content)
	}
	s.mu.Unlock()
	s.notify(ok)
	return ok
}

func (s *Sidebar) SetPresence(p protocol.StatusChange) {
	s.mu.Lock()
	prev, known := s.presence[p.UserID]
	s.presence[p.UserID] = p.IsOnline
	s.mu.Unlock()
	s.notify(!known || prev != p.IsOnline)
}

func (s *Sidebar) Online(userID protocol.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[userID]
}

func (s *Sidebar) Preview(id protocol.ID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r.Preview
	}
	return ""
}

func (s *Sidebar) Room(id protocol.ID) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return Room{}, false
	}
	return *r, true
}

// Rooms returns the rooms in display order.
func (s *Sidebar) Rooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rooms[id])
	}
	return out
}
