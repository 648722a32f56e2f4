package timeline

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	EditWindow  = 15 * time.Minute
	Tombstone   = "This message was deleted"
	maxFileName = 40
)

var imagePattern = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png)$`)

type ContentKind int

const (
	KindText ContentKind = iota
	KindFile
	KindImage
)

func (k ContentKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindImage:
		return "image"
	default:
		return "text"
	}
}

type Sender struct {
	ID       protocol.ID
	Username string
	FullName string
}

func (s Sender) DisplayName() string {
	if s.FullName != "" {
		return s.FullName
	}
	return s.Username
}

// Self is the viewer's identity, used to mark own messages.
type Self = Sender

func (s Sender) is(other Sender) bool {
	if s.ID != "" && other.ID != "" {
		return s.ID == other.ID
	}
	return s.Username != "" && s.Username == other.Username
}

type Message struct {
	ID        protocol.ID
	Sender    Sender
	Content   string
	Kind      ContentKind
	Timestamp time.Time
	Edited    bool
	Deleted   bool
	IsMe      bool
}

// FileName is the display name of a file message: the last path segment of
// its URL, cut to 40 characters.
func (m Message) FileName() string {
	if m.Kind == KindText {
		return ""
	}
	name := path.Base(strings.TrimSuffix(m.Content, "/"))
	if r := []rune(name); len(r) > maxFileName {
		return string(r[:maxFileName]) + "..."
	}
	return name
}

// CanEdit reports whether the edit control for m is enabled at now: only the
// author's own text messages, not deleted, within EditWindow of sending.
func CanEdit(m Message, now time.Time) bool {
	if !m.IsMe || m.Deleted || m.Kind != KindText {
		return false
	}
	return now.Sub(m.Timestamp) <= EditWindow
}

// CanDelete reports whether the delete control for m is shown.
func CanDelete(m Message) bool {
	return m.IsMe && !m.Deleted
}

// FromPush builds a message from a live chat push. Pushes have no image
// flag, so images are recognised by extension.
func FromPush(p protocol.ChatMessage, self Self, now time.Time) Message {
	sender := Sender{ID: p.Sender.ID, Username: p.Sender.Username, FullName: p.Sender.FullName}
	m := Message{
		ID:        p.ID,
		Sender:    sender,
		Content:   p.Message,
		Timestamp: parseTimestamp(p.Timestamp, now),
		IsMe:      self.is(sender),
	}
	if p.IsFile {
		m.Kind = KindFile
		if imagePattern.MatchString(p.Message) {
			m.Kind = KindImage
		}
	}
	return m
}

func FromHistory(h protocol.HistoryMessage, now time.Time) Message {
	m := Message{
		ID:        h.ID,
		Sender:    Sender{Username: h.Sender},
		Content:   h.Content,
		Timestamp: parseTimestamp(h.Timestamp, now),
		IsMe:      h.IsMe,
	}
	switch {
	case h.IsImage:
		m.Kind = KindImage
	case h.IsFile:
		m.Kind = KindFile
	}
	return m
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return fallback
}
