package chat

import (
	"sort"
	"sync"
)

// Registry is the authoritative mapping of currently open, authenticated
// connections to clients. It is the single source of truth for who is online.
type Registry struct {
	clients map[string]*Client // connection_id -> client
	mu      sync.RWMutex
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Add adds a client to the registry
func (r *Registry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
}

// Remove removes a client from the registry.
// Returns false if the connection was not present, making removal idempotent.
func (r *Registry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[connectionID]; !exists {
		return false
	}

	delete(r.clients, connectionID)
	return true
}

// Get retrieves a client by connection ID
func (r *Registry) Get(connectionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, exists := r.clients[connectionID]
	return client, exists
}

// GetAll retrieves a snapshot of all registered clients
func (r *Registry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the total number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Usernames returns the deduplicated set of online usernames, sorted.
// Always computed fresh from current state so it cannot go stale.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.clients))
	usernames := make([]string, 0, len(r.clients))
	for _, client := range r.clients {
		if !seen[client.Username] {
			seen[client.Username] = true
			usernames = append(usernames, client.Username)
		}
	}

	sort.Strings(usernames)
	return usernames
}
