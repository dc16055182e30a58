package storage

import (
	"context"

	"github.com/mohamedkhairy/chat-server/internal/models"
)

// MessageStore defines the interface for message persistence
type MessageStore interface {
	// SaveMessage persists a single message
	SaveMessage(ctx context.Context, msg *models.Message) error

	// RecentMessages retrieves the most recent messages, oldest first
	RecentMessages(ctx context.Context, limit int) ([]*models.Message, error)

	// Close closes the storage connection
	Close() error
}

// UserStore defines the interface for user account storage
type UserStore interface {
	// CreateUser inserts a new user account
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByUsername retrieves a user by username, nil if not found
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// Close closes the storage connection
	Close() error
}
