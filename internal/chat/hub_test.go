package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mohamedkhairy/chat-server/internal/cache"
	"github.com/mohamedkhairy/chat-server/internal/config"
	"github.com/mohamedkhairy/chat-server/internal/models"
	"github.com/mohamedkhairy/chat-server/internal/storage"
)

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PersistTimeout: time.Second,
		MaxConnections: 100,
		SendBufferSize: 16,
		HistoryLimit:   100,
	}
}

func newTestHub(store storage.MessageStore, msgCache cache.MessageCache) *Hub {
	return NewHub(testChatConfig(), store, msgCache)
}

// drainEvents decodes everything queued on the client's send channel
func drainEvents(t *testing.T, client *Client) []ServerEvent {
	t.Helper()
	var events []ServerEvent
	for {
		select {
		case data := <-client.Send:
			var event ServerEvent
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("Failed to decode server event: %v", err)
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func eventsOfType(events []ServerEvent, eventType string) []ServerEvent {
	var filtered []ServerEvent
	for _, event := range events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func userListFromEvent(t *testing.T, event ServerEvent) []string {
	t.Helper()
	raw, ok := event.Data.([]interface{})
	if !ok {
		t.Fatalf("Expected user list data to be a slice, got %T", event.Data)
	}
	usernames := make([]string, 0, len(raw))
	for _, value := range raw {
		usernames = append(usernames, value.(string))
	}
	return usernames
}

func messagePayloadFromEvent(t *testing.T, event ServerEvent) (username, content string, timestamp time.Time) {
	t.Helper()
	payload, ok := event.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected message data to be an object, got %T", event.Data)
	}
	username, _ = payload["username"].(string)
	content, _ = payload["content"].(string)
	rawTimestamp, _ := payload["timestamp"].(string)
	timestamp, err := time.Parse(time.RFC3339Nano, rawTimestamp)
	if err != nil {
		t.Fatalf("Failed to parse broadcast timestamp %q: %v", rawTimestamp, err)
	}
	return username, content, timestamp
}

func TestHub_RegisterBroadcastsPresence(t *testing.T) {
	hub := newTestHub(&storage.MockMessageStore{}, nil)

	alice := newTestClient("conn-1", "alice")
	hub.Register(alice)

	events := drainEvents(t, alice)
	lists := eventsOfType(events, EventUserList)
	if len(lists) != 1 {
		t.Fatalf("Expected exactly 1 userList event after register, got %d", len(lists))
	}
	if got := userListFromEvent(t, lists[0]); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Expected user list [alice], got %v", got)
	}

	bob := newTestClient("conn-2", "bob")
	hub.Register(bob)

	// Both connections see the updated list exactly once
	for _, client := range []*Client{alice, bob} {
		lists := eventsOfType(drainEvents(t, client), EventUserList)
		if len(lists) != 1 {
			t.Fatalf("Expected exactly 1 userList event on %s, got %d", client.Username, len(lists))
		}
		got := userListFromEvent(t, lists[0])
		if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
			t.Errorf("Expected user list [alice bob] on %s, got %v", client.Username, got)
		}
	}

	hub.Unregister(alice)

	lists = eventsOfType(drainEvents(t, bob), EventUserList)
	if len(lists) != 1 {
		t.Fatalf("Expected exactly 1 userList event after unregister, got %d", len(lists))
	}
	if got := userListFromEvent(t, lists[0]); len(got) != 1 || got[0] != "bob" {
		t.Errorf("Expected user list [bob], got %v", got)
	}
}

func TestHub_RegisterAtCapacity(t *testing.T) {
	cfg := testChatConfig()
	cfg.MaxConnections = 1
	hub := NewHub(cfg, &storage.MockMessageStore{}, nil)

	alice := newTestClient("conn-1", "alice")
	if err := hub.Register(alice); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	drainEvents(t, alice)

	bob := newTestClient("conn-2", "bob")
	if err := hub.Register(bob); !errors.Is(err, models.ErrMaxConnections) {
		t.Fatalf("Expected ErrMaxConnections, got %v", err)
	}

	if hub.Registry().Count() != 1 {
		t.Errorf("Expected 1 registered connection, got %d", hub.Registry().Count())
	}
	// A rejected connection must not trigger a presence broadcast
	if events := drainEvents(t, alice); len(events) != 0 {
		t.Errorf("Expected no events after rejected register, got %d", len(events))
	}

	// Capacity frees up once a connection unregisters
	hub.Unregister(alice)
	if err := hub.Register(bob); err != nil {
		t.Errorf("Expected register to succeed after capacity freed, got %v", err)
	}
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	hub := newTestHub(&storage.MockMessageStore{}, nil)

	alice := newTestClient("conn-1", "alice")
	bob := newTestClient("conn-2", "bob")
	hub.Register(alice)
	hub.Register(bob)
	drainEvents(t, alice)
	drainEvents(t, bob)

	hub.Unregister(alice)
	if lists := eventsOfType(drainEvents(t, bob), EventUserList); len(lists) != 1 {
		t.Fatalf("Expected 1 userList event after first unregister, got %d", len(lists))
	}

	// Second unregister for the same connection must not broadcast again
	hub.Unregister(alice)
	if events := drainEvents(t, bob); len(events) != 0 {
		t.Errorf("Expected no events after duplicate unregister, got %d", len(events))
	}

	if hub.Registry().Count() != 1 {
		t.Errorf("Expected 1 registered connection, got %d", hub.Registry().Count())
	}
}

func TestHub_DuplicateUsernamesDeduplicated(t *testing.T) {
	hub := newTestHub(&storage.MockMessageStore{}, nil)

	first := newTestClient("conn-1", "alice")
	second := newTestClient("conn-2", "alice")
	hub.Register(first)
	hub.Register(second)
	drainEvents(t, first)

	// Second tab closing must not take alice offline
	hub.Unregister(second)
	lists := eventsOfType(drainEvents(t, first), EventUserList)
	if len(lists) != 1 {
		t.Fatalf("Expected 1 userList event, got %d", len(lists))
	}
	if got := userListFromEvent(t, lists[0]); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Expected user list [alice], got %v", got)
	}
}

func TestHub_HandleInbound_PersistsThenBroadcasts(t *testing.T) {
	store := &storage.MockMessageStore{}
	hub := newTestHub(store, nil)

	alice := newTestClient("conn-1", "alice")
	bob := newTestClient("conn-2", "bob")
	hub.Register(alice)
	hub.Register(bob)
	drainEvents(t, alice)
	drainEvents(t, bob)

	if err := hub.HandleInbound(alice, "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}

	if store.SavedCount() != 1 {
		t.Fatalf("Expected 1 persisted message, got %d", store.SavedCount())
	}
	persisted := store.Messages[0]
	if persisted.Username != "alice" {
		t.Errorf("Expected persisted author alice, got %s", persisted.Username)
	}

	// Sender and peer both receive the broadcast, sender included
	for _, client := range []*Client{alice, bob} {
		messages := eventsOfType(drainEvents(t, client), EventMessage)
		if len(messages) != 1 {
			t.Fatalf("Expected exactly 1 message event on %s, got %d", client.Username, len(messages))
		}
		username, content, timestamp := messagePayloadFromEvent(t, messages[0])
		if username != "alice" {
			t.Errorf("Expected author alice on %s, got %s", client.Username, username)
		}
		if content != "hello" {
			t.Errorf("Expected content hello on %s, got %s", client.Username, content)
		}
		// Broadcast payload carries the exact persisted timestamp
		if !timestamp.Equal(persisted.Timestamp) {
			t.Errorf("Expected broadcast timestamp %v to equal persisted %v", timestamp, persisted.Timestamp)
		}
	}
}

func TestHub_HandleInbound_PersistFailure(t *testing.T) {
	store := &storage.MockMessageStore{SaveErr: errors.New("database unavailable")}
	hub := newTestHub(store, nil)

	alice := newTestClient("conn-1", "alice")
	bob := newTestClient("conn-2", "bob")
	hub.Register(alice)
	hub.Register(bob)
	drainEvents(t, alice)
	drainEvents(t, bob)

	err := hub.HandleInbound(alice, "hello")
	if err == nil {
		t.Fatal("Expected error when persistence fails")
	}

	// Sender gets exactly one error event and no message event
	aliceEvents := drainEvents(t, alice)
	if messages := eventsOfType(aliceEvents, EventMessage); len(messages) != 0 {
		t.Errorf("Expected no message events for sender, got %d", len(messages))
	}
	errs := eventsOfType(aliceEvents, EventError)
	if len(errs) != 1 {
		t.Fatalf("Expected exactly 1 error event for sender, got %d", len(errs))
	}
	if errs[0].Code != ErrCodeSendFailed {
		t.Errorf("Expected error code %s, got %s", ErrCodeSendFailed, errs[0].Code)
	}

	// Nothing reaches the peer
	if events := drainEvents(t, bob); len(events) != 0 {
		t.Errorf("Expected no events for peer, got %d", len(events))
	}
}

func TestHub_HandleInbound_NotRegistered(t *testing.T) {
	store := &storage.MockMessageStore{}
	hub := newTestHub(store, nil)

	bob := newTestClient("conn-2", "bob")
	hub.Register(bob)
	drainEvents(t, bob)

	intruder := newTestClient("conn-1", "alice")
	err := hub.HandleInbound(intruder, "hello")
	if !errors.Is(err, models.ErrNotRegistered) {
		t.Fatalf("Expected ErrNotRegistered, got %v", err)
	}

	if store.SavedCount() != 0 {
		t.Errorf("Expected no persisted messages, got %d", store.SavedCount())
	}
	if events := drainEvents(t, bob); len(events) != 0 {
		t.Errorf("Expected no broadcast to registered peer, got %d events", len(events))
	}

	errs := eventsOfType(drainEvents(t, intruder), EventError)
	if len(errs) != 1 || errs[0].Code != ErrCodeNotRegistered {
		t.Errorf("Expected a single not_registered error event, got %v", errs)
	}
}

func TestHub_HandleInbound_WritesThroughCache(t *testing.T) {
	store := &storage.MockMessageStore{}
	msgCache := cache.NewMockMessageCache(100)
	hub := newTestHub(store, msgCache)

	alice := newTestClient("conn-1", "alice")
	hub.Register(alice)
	drainEvents(t, alice)

	if err := hub.HandleInbound(alice, "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}

	cached, err := msgCache.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Cache read failed: %v", err)
	}
	if len(cached) != 1 || cached[0].Content != "hello" {
		t.Errorf("Expected the message to be cached, got %v", cached)
	}
}

func TestHub_HandleInbound_CacheFailureIsNonFatal(t *testing.T) {
	store := &storage.MockMessageStore{}
	msgCache := cache.NewMockMessageCache(100)
	msgCache.PushErr = errors.New("redis unavailable")
	hub := newTestHub(store, msgCache)

	alice := newTestClient("conn-1", "alice")
	hub.Register(alice)
	drainEvents(t, alice)

	if err := hub.HandleInbound(alice, "hello"); err != nil {
		t.Fatalf("Expected cache failure to be non-fatal, got %v", err)
	}

	if messages := eventsOfType(drainEvents(t, alice), EventMessage); len(messages) != 1 {
		t.Errorf("Expected broadcast despite cache failure, got %d message events", len(messages))
	}
}

func TestHub_FullSendBufferIsolatesConnection(t *testing.T) {
	store := &storage.MockMessageStore{}
	hub := newTestHub(store, nil)

	alice := newTestClient("conn-1", "alice")
	stuck := NewClient("conn-2", "bob", nil, 1)
	hub.Register(alice)
	hub.Register(stuck)
	drainEvents(t, alice)
	// Leave bob's single-slot buffer full so further sends fail

	if err := hub.HandleInbound(alice, "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}

	// alice still receives the message even though bob's send failed
	if messages := eventsOfType(drainEvents(t, alice), EventMessage); len(messages) != 1 {
		t.Errorf("Expected 1 message event for alice, got %d", len(messages))
	}

	// bob's failed send pushes him through the disconnect path
	deadline := time.After(2 * time.Second)
	for hub.Registry().Count() != 1 {
		select {
		case <-deadline:
			t.Fatal("Expected stuck connection to be unregistered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHub_GetStats(t *testing.T) {
	hub := newTestHub(&storage.MockMessageStore{}, nil)

	alice := newTestClient("conn-1", "alice")
	hub.Register(alice)
	drainEvents(t, alice)

	if err := hub.HandleInbound(alice, "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}

	stats := hub.GetStats()
	if stats.ConnectionsTotal != 1 {
		t.Errorf("Expected 1 total connection, got %d", stats.ConnectionsTotal)
	}
	if stats.ConnectionsActive != 1 {
		t.Errorf("Expected 1 active connection, got %d", stats.ConnectionsActive)
	}
	if stats.MessagesReceived != 1 {
		t.Errorf("Expected 1 received message, got %d", stats.MessagesReceived)
	}
	if stats.MessagesBroadcast != 1 {
		t.Errorf("Expected 1 broadcast message, got %d", stats.MessagesBroadcast)
	}
	if stats.PresenceBroadcasts != 1 {
		t.Errorf("Expected 1 presence broadcast, got %d", stats.PresenceBroadcasts)
	}
}
