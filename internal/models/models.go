package models

import (
	"time"
)

// Message represents one chat utterance
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates a Message
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrInvalidMessageID
	}
	if m.Username == "" {
		return ErrInvalidUsername
	}
	if m.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// User represents a registered account
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate validates a User
func (u *User) Validate() error {
	if u.ID == "" {
		return ErrInvalidUserID
	}
	if u.Username == "" {
		return ErrInvalidUsername
	}
	return nil
}
