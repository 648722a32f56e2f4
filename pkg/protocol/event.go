package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Notification channel kinds.
const (
	KindNewMessage             = "new_message"
	KindMessageUpdated         = "message_updated"
	KindUnreadCleared          = "unread_cleared"
	KindUnreadUpdate           = "unread_update"
	KindStatusChange           = "status_change"
	KindFriendRequestReceived  = "friend_request_received"
	KindFriendRequestCancelled = "friend_request_cancelled"
	KindFriendRequestAccepted  = "friend_request_accepted"
	KindFriendRequestRejected  = "friend_request_rejected"
	KindKickedFromGroup        = "kicked_from_group"
	KindGroupDeleted           = "group_deleted"
	KindAddedToGroup           = "added_to_group"
	KindAdminTransferred       = "admin_transferred"
	KindGroupCreated           = "group_created"
)

// Room channel kinds. A frame without an "event" field is a chat message push.
const (
	KindChatMessage    = ""
	KindUserJoin       = "user_join"
	KindUserLeave      = "user_leave"
	KindTyping         = "typing"
	KindMessageEdited  = "message_edited"
	KindMessageDeleted = "message_deleted"
	KindGroupUpdate    = "group_update"
)

var ErrMalformedFrame = errors.New("malformed frame")

// InboundEvent is one decoded-on-demand frame received on a channel.
type InboundEvent struct {
	Channel Channel
	Kind    string
	raw     []byte
}

// ParseEvent validates a raw frame and reads its kind discriminator. The
// payload is only decoded by the handler that receives it.
func ParseEvent(ch Channel, data []byte) (InboundEvent, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return InboundEvent{}, ErrMalformedFrame
	}
	kind := ""
	if ev := gjson.GetBytes(data, "event"); ev.Exists() {
		if ev.Type != gjson.String {
			return InboundEvent{}, ErrMalformedFrame
		}
		kind = ev.String()
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return InboundEvent{Channel: ch, Kind: kind, raw: raw}, nil
}

// NewEvent builds an event from a payload value, mostly for tests and replays.
func NewEvent(ch Channel, payload any) (InboundEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return InboundEvent{}, err
	}
	return ParseEvent(ch, data)
}

func (e InboundEvent) Decode(v any) error {
	return json.Unmarshal(e.raw, v)
}

func (e InboundEvent) Raw() []byte {
	out := make([]byte, len(e.raw))
	copy(out, e.raw)
	return out
}

// ID accepts both JSON numbers and strings; the backend mixes integer
// primary keys with stringified UUIDs.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return errors.New("id must be a string or a number")
	}
	*id = ID(s)
	return nil
}

func (id ID) String() string { return string(id) }
