package cache

import (
	"context"
	"sync"

	"github.com/mohamedkhairy/chat-server/internal/models"
)

// MockMessageCache is an in-memory MessageCache for testing
type MockMessageCache struct {
	mu        sync.Mutex
	Messages  []*models.Message
	Capacity  int
	PushErr   error
	RecentErr error
}

func NewMockMessageCache(capacity int) *MockMessageCache {
	return &MockMessageCache{Capacity: capacity}
}

func (m *MockMessageCache) Push(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Messages = append(m.Messages, msg)
	if m.Capacity > 0 && len(m.Messages) > m.Capacity {
		m.Messages = m.Messages[len(m.Messages)-m.Capacity:]
	}
	return nil
}

func (m *MockMessageCache) Recent(ctx context.Context, limit int) ([]*models.Message, error) {
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

func (m *MockMessageCache) Close() error {
	return nil
}
