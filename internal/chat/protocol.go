package chat

import (
	"encoding/json"
	"time"

	"github.com/mohamedkhairy/chat-server/internal/models"
)

// MessageType represents the type of an inbound client message
type MessageType string

const (
	MessageTypeSend MessageType = "sendMessage"
	MessageTypePing MessageType = "ping"
)

// Server event types
const (
	EventMessage  = "message"
	EventUserList = "userList"
	EventError    = "error"
	EventPong     = "pong"
)

// Error codes sent to clients
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeNotRegistered  = "not_registered"
	ErrCodeSendFailed     = "send_failed"
	ErrCodeUnknownType    = "unknown_message_type"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerEvent represents an event pushed to the client
type ServerEvent struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MessagePayload is the data carried by a message event
type MessagePayload struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessageEvent(msg *models.Message) ([]byte, error) {
	return json.Marshal(ServerEvent{
		Type: EventMessage,
		Data: MessagePayload{
			Username:  msg.Username,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		},
	})
}

func newUserListEvent(usernames []string) ([]byte, error) {
	return json.Marshal(ServerEvent{
		Type: EventUserList,
		Data: usernames,
	})
}

func newErrorEvent(code string, message string) ([]byte, error) {
	return json.Marshal(ServerEvent{
		Type:    EventError,
		Code:    code,
		Message: message,
	})
}

func newPongEvent() ([]byte, error) {
	return json.Marshal(ServerEvent{
		Type: EventPong,
	})
}
