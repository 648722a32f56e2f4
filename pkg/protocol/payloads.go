package protocol

type NewMessage struct {
	RoomID       ID     `json:"room_id"`
	RoomName     string `json:"room_name"`
	From         string `json:"from"`
	FromUserID   ID     `json:"from_user_id"`
	FromFullName string `json:"from_full_name"`
	Content      string `json:"content"`
	IsFile       bool   `json:"is_file"`
	IsImage      bool   `json:"is_image"`
	IsGroup      bool   `json:"is_group"`
}

type MessageUpdated struct {
	RoomID       ID     `json:"room_id"`
	From         string `json:"from"`
	FromUserID   ID     `json:"from_user_id"`
	FromFullName string `json:"from_full_name"`
	Content      string `json:"content"`
	IsGroup      bool   `json:"is_group"`
	IsDelete     bool   `json:"is_delete"`
}

// UnreadCleared is sent when the account read a room elsewhere. TotalUnread
// is only present when the server computed an authoritative total.
type UnreadCleared struct {
	RoomID      ID   `json:"room_id"`
	TotalUnread *int `json:"total_unread,omitempty"`
}

type StatusChange struct {
	UserID   ID   `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

type FriendRequest struct {
	From       string `json:"from"`
	FromUserID ID     `json:"from_user_id"`
}

// GroupNotice covers kicked_from_group, group_deleted, added_to_group,
// admin_transferred and group_created.
type GroupNotice struct {
	RoomID   ID     `json:"room_id"`
	RoomName string `json:"room_name"`
	AddedBy  string `json:"added_by"`
}

type Sender struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type ChatMessage struct {
	ID        ID     `json:"id"`
	Sender    Sender `json:"sender"`
	Message   string `json:"message"`
	IsFile    bool   `json:"is_file"`
	Timestamp string `json:"timestamp"`
}

type Membership struct {
	Username string `json:"username"`
}

type Typing struct {
	Username string `json:"username"`
	UserID   ID     `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type MessageEdited struct {
	MessageID ID     `json:"message_id"`
	Content   string `json:"content"`
	SenderID  ID     `json:"sender_id"`
}

type MessageDeleted struct {
	MessageID ID `json:"message_id"`
}

// Group update sub-kinds carried in GroupUpdate.EventType.
const (
	GroupMemberLeft       = "member_left"
	GroupMemberKicked     = "member_kicked"
	GroupAdminTransferred = "admin_transferred"
)

type GroupUpdate struct {
	EventType  string `json:"event_type"`
	UserID     ID     `json:"user_id"`
	Username   string `json:"username"`
	NewAdminID ID     `json:"new_admin_id"`
	NewAdmin   string `json:"new_admin"`
	OldAdminID ID     `json:"old_admin_id"`
	KickedBy   string `json:"kicked_by"`
}

// HistoryMessage is one row of GET /chat/messages/<room>/. Rows arrive
// newest first.
type HistoryMessage struct {
	ID        ID     `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	IsFile    bool   `json:"is_file"`
	IsImage   bool   `json:"is_image"`
	IsMe      bool   `json:"is_me"`
}
