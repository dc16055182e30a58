package chat

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func newTestClient(id, username string) *Client {
	return NewClient(id, username, nil, 16)
}

func TestRegistry_AddRemove(t *testing.T) {
	registry := NewRegistry()

	client := newTestClient("conn-1", "alice")

	registry.Add(client)

	retrieved, exists := registry.Get("conn-1")
	if !exists {
		t.Error("Expected connection to exist")
	}
	if retrieved.ID != "conn-1" {
		t.Errorf("Expected connection ID %s, got %s", "conn-1", retrieved.ID)
	}

	if registry.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", registry.Count())
	}

	if !registry.Remove("conn-1") {
		t.Error("Expected Remove to report the connection was present")
	}

	_, exists = registry.Get("conn-1")
	if exists {
		t.Error("Expected connection to be removed")
	}

	if registry.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", registry.Count())
	}
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	registry := NewRegistry()
	registry.Add(newTestClient("conn-1", "alice"))

	if !registry.Remove("conn-1") {
		t.Error("Expected first Remove to report the connection was present")
	}
	if registry.Remove("conn-1") {
		t.Error("Expected second Remove to be a no-op")
	}
	if registry.Remove("never-registered") {
		t.Error("Expected Remove of unknown connection to be a no-op")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", registry.Count())
	}
}

func TestRegistry_UsernamesDeduplicated(t *testing.T) {
	registry := NewRegistry()

	// alice has two tabs open
	registry.Add(newTestClient("conn-1", "alice"))
	registry.Add(newTestClient("conn-2", "alice"))
	registry.Add(newTestClient("conn-3", "bob"))

	usernames := registry.Usernames()
	expected := []string{"alice", "bob"}
	if !reflect.DeepEqual(usernames, expected) {
		t.Errorf("Expected usernames %v, got %v", expected, usernames)
	}

	// Closing one of alice's tabs keeps her online
	registry.Remove("conn-1")
	usernames = registry.Usernames()
	if !reflect.DeepEqual(usernames, expected) {
		t.Errorf("Expected usernames %v after partial disconnect, got %v", expected, usernames)
	}

	// Closing the last tab takes her offline
	registry.Remove("conn-2")
	usernames = registry.Usernames()
	if !reflect.DeepEqual(usernames, []string{"bob"}) {
		t.Errorf("Expected usernames [bob], got %v", usernames)
	}
}

func TestRegistry_SnapshotReflectsInterleaving(t *testing.T) {
	registry := NewRegistry()

	registry.Add(newTestClient("conn-1", "alice"))
	registry.Add(newTestClient("conn-2", "bob"))

	if got := registry.Usernames(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("Expected [alice bob], got %v", got)
	}

	registry.Remove("conn-1")

	if got := registry.Usernames(); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("Expected [bob] after alice disconnected, got %v", got)
	}
}

func TestRegistry_GetAll(t *testing.T) {
	registry := NewRegistry()

	registry.Add(newTestClient("conn-1", "alice"))
	registry.Add(newTestClient("conn-2", "bob"))

	all := registry.GetAll()
	if len(all) != 2 {
		t.Errorf("Expected 2 connections, got %d", len(all))
	}
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	registry := NewRegistry()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", n)
			registry.Add(newTestClient(id, fmt.Sprintf("user-%d", n%4)))
			registry.Usernames()
			if n%2 == 0 {
				registry.Remove(id)
			}
		}(i)
	}

	wg.Wait()

	if registry.Count() != workers/2 {
		t.Errorf("Expected %d connections, got %d", workers/2, registry.Count())
	}
}
