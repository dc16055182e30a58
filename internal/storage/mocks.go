package storage

import (
	"context"
	"sync"

	"github.com/mohamedkhairy/chat-server/internal/models"
)

// MockMessageStore is a mock implementation of MessageStore for testing
type MockMessageStore struct {
	mu        sync.Mutex
	Messages  []*models.Message
	SaveErr   error
	RecentErr error
}

func (m *MockMessageStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockMessageStore) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	start := len(m.Messages) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*models.Message, len(m.Messages)-start)
	copy(result, m.Messages[start:])
	return result, nil
}

func (m *MockMessageStore) Close() error {
	return nil
}

// SavedCount returns the number of persisted messages
func (m *MockMessageStore) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// MockUserStore is a mock implementation of UserStore for testing
type MockUserStore struct {
	mu        sync.Mutex
	Users     map[string]*models.User
	CreateErr error
	GetErr    error
}

func NewMockUserStore() *MockUserStore {
	return &MockUserStore{
		Users: make(map[string]*models.User),
	}
}

func (m *MockUserStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Users[user.Username] = user
	return nil
}

func (m *MockUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.Users[username], nil
}

func (m *MockUserStore) Close() error {
	return nil
}
