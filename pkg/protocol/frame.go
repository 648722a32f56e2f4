package protocol

import "encoding/json"

const (
	FrameMessage     = "message"
	FrameTyping      = "typing"
	FrameMessageRead = "message_read"
)

// Frame is an outbound client-to-server frame on a room channel.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type chatData struct {
	Message string `json:"message"`
	IsFile  bool   `json:"is_file"`
}

type typingData struct {
	IsTyping bool `json:"is_typing"`
}

func ChatFrame(message string, isFile bool) Frame {
	return Frame{Type: FrameMessage, Data: chatData{Message: message, IsFile: isFile}}
}

func TypingFrame(isTyping bool) Frame {
	return Frame{Type: FrameTyping, Data: typingData{IsTyping: isTyping}}
}

func MessageReadFrame() Frame {
	return Frame{Type: FrameMessageRead, Data: struct{}{}}
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
