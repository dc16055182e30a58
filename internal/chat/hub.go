package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/chat-server/internal/cache"
	"github.com/mohamedkhairy/chat-server/internal/config"
	"github.com/mohamedkhairy/chat-server/internal/models"
	"github.com/mohamedkhairy/chat-server/internal/storage"
	"github.com/mohamedkhairy/chat-server/pkg/logger"
)

// Hub owns the connection registry and the broadcast fan-out. All registry
// mutations go through Register/Unregister so that every mutation and its
// presence broadcast happen atomically under a single mutex.
type Hub struct {
	config   config.ChatConfig
	registry *Registry
	store    storage.MessageStore
	cache    cache.MessageCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes register/unregister together with the presence
	// broadcast they trigger, so no client can observe interleaved state.
	mu      sync.Mutex
	runMu   sync.Mutex
	running bool
	stats   HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal   int64     `json:"connections_total"`
	ConnectionsActive  int64     `json:"connections_active"`
	MessagesReceived   int64     `json:"messages_received"`
	MessagesBroadcast  int64     `json:"messages_broadcast"`
	MessagesFailed     int64     `json:"messages_failed"`
	SendsDropped       int64     `json:"sends_dropped"`
	PresenceBroadcasts int64     `json:"presence_broadcasts"`
	LastMessageTime    time.Time `json:"last_message_time"`

	mu sync.Mutex
}

// NewHub creates a new chat hub. The cache is optional and may be nil.
func NewHub(cfg config.ChatConfig, store storage.MessageStore, msgCache cache.MessageCache) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   cfg,
		registry: NewRegistry(),
		store:    store,
		cache:    msgCache,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the hub's connection registry
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Start starts the hub's background connection monitor
func (h *Hub) Start() error {
	h.runMu.Lock()
	if h.running {
		h.runMu.Unlock()
		return nil
	}
	h.running = true
	h.runMu.Unlock()

	logger.Info("Starting chat hub",
		logger.Int("max_connections", h.config.MaxConnections),
		logger.Duration("ping_interval", h.config.PingInterval),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop stops the hub and disconnects all clients
func (h *Hub) Stop() {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return
	}
	h.running = false
	h.runMu.Unlock()

	logger.Info("Stopping chat hub")

	for _, client := range h.registry.GetAll() {
		h.Unregister(client)
	}

	h.cancel()
	h.wg.Wait()
	logger.Info("Chat hub stopped")
}

// Register inserts an authenticated connection into the registry and
// broadcasts the updated presence list. The capacity check and the insert
// happen under the same lock, so concurrent upgrades cannot exceed the
// limit. The connection is visible to the fan-out before any message from
// it is processed.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	if h.config.MaxConnections > 0 && h.registry.Count() >= h.config.MaxConnections {
		h.mu.Unlock()
		return models.ErrMaxConnections
	}
	h.registry.Add(client)
	h.broadcastPresenceLocked()
	h.mu.Unlock()

	h.stats.mu.Lock()
	h.stats.ConnectionsTotal++
	h.stats.ConnectionsActive++
	h.stats.mu.Unlock()
	connectionsTotal.Inc()
	connectionsActive.Inc()

	logger.Info("Connection registered",
		logger.String("connection_id", client.ID),
		logger.String("username", client.Username),
		logger.Int("total_connections", h.registry.Count()),
	)
	return nil
}

// Serve starts the read and write pumps for a registered connection.
// Called after Register so the registry already reflects the connection.
func (h *Hub) Serve(client *Client) {
	h.wg.Add(2)
	go h.writePump(client)
	go h.readPump(client)
}

// Unregister removes a connection from the registry and broadcasts the
// updated presence list. Idempotent: only the first call for a given
// connection mutates the registry and triggers a broadcast.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	removed := h.registry.Remove(client.ID)
	if removed {
		h.broadcastPresenceLocked()
	}
	h.mu.Unlock()

	client.Close()

	if !removed {
		return
	}

	h.stats.mu.Lock()
	if h.stats.ConnectionsActive > 0 {
		h.stats.ConnectionsActive--
	}
	h.stats.mu.Unlock()
	connectionsActive.Dec()

	logger.Info("Connection unregistered",
		logger.String("connection_id", client.ID),
		logger.String("username", client.Username),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// broadcastPresenceLocked pushes the deduplicated online-user list to every
// registered connection. Caller must hold h.mu.
func (h *Hub) broadcastPresenceLocked() {
	usernames := h.registry.Usernames()
	data, err := newUserListEvent(usernames)
	if err != nil {
		logger.Error("Failed to encode user list",
			logger.ErrorField(err),
		)
		return
	}

	for _, peer := range h.registry.GetAll() {
		if err := peer.enqueue(data); err != nil {
			// A dead connection must not stall the others; push it
			// through its own disconnect path instead.
			logger.Debug("Failed to send user list to connection",
				logger.ErrorField(err),
				logger.String("connection_id", peer.ID),
			)
			go h.Unregister(peer)
		}
	}

	h.stats.mu.Lock()
	h.stats.PresenceBroadcasts++
	h.stats.mu.Unlock()
	presenceBroadcasts.Inc()
}

// HandleInbound processes a chat message from a connection: verifies the
// sender is registered, stamps and persists the message, then fans it out
// to every connection including the sender. If persistence fails the
// message is dropped and only the sender is notified.
func (h *Hub) HandleInbound(client *Client, content string) error {
	sender, ok := h.registry.Get(client.ID)
	if !ok {
		client.SendErrorEvent(ErrCodeNotRegistered, "connection is not registered")
		return models.ErrNotRegistered
	}

	h.stats.mu.Lock()
	h.stats.MessagesReceived++
	h.stats.LastMessageTime = time.Now()
	h.stats.mu.Unlock()
	messagesReceived.Inc()

	// Author comes from the registry entry, never from the payload
	msg := &models.Message{
		ID:        uuid.New().String(),
		Username:  sender.Username,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.config.PersistTimeout)
	defer cancel()

	if err := h.store.SaveMessage(ctx, msg); err != nil {
		logger.Error("Failed to persist message",
			logger.ErrorField(err),
			logger.String("connection_id", client.ID),
			logger.String("username", sender.Username),
		)
		h.stats.mu.Lock()
		h.stats.MessagesFailed++
		h.stats.mu.Unlock()
		client.SendErrorEvent(ErrCodeSendFailed, "failed to send message")
		return err
	}

	if h.cache != nil {
		if err := h.cache.Push(ctx, msg); err != nil {
			logger.Warn("Failed to cache message",
				logger.ErrorField(err),
				logger.String("message_id", msg.ID),
			)
		}
	}

	h.broadcastMessage(msg)
	return nil
}

// broadcastMessage fans a persisted message out to all registered
// connections, the sender included. Send failures are isolated per
// connection and trigger that connection's disconnect path.
func (h *Hub) broadcastMessage(msg *models.Message) {
	data, err := newMessageEvent(msg)
	if err != nil {
		logger.Error("Failed to encode message event",
			logger.ErrorField(err),
			logger.String("message_id", msg.ID),
		)
		return
	}

	clients := h.registry.GetAll()
	sent := 0
	dropped := 0

	for _, peer := range clients {
		if err := peer.enqueue(data); err != nil {
			dropped++
			fanoutSends.WithLabelValues("dropped").Inc()
			logger.Debug("Failed to send message to connection",
				logger.ErrorField(err),
				logger.String("connection_id", peer.ID),
			)
			go h.Unregister(peer)
		} else {
			sent++
			fanoutSends.WithLabelValues("sent").Inc()
		}
	}

	h.stats.mu.Lock()
	h.stats.MessagesBroadcast++
	h.stats.SendsDropped += int64(dropped)
	h.stats.mu.Unlock()
	messagesBroadcast.Inc()

	logger.Debug("Broadcast message",
		logger.String("message_id", msg.ID),
		logger.String("username", msg.Username),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
		logger.Int("total_connections", len(clients)),
	)
}

// writePump pumps queued frames to the WebSocket connection
func (h *Hub) writePump(client *Client) {
	defer h.wg.Done()
	defer h.Unregister(client)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-client.Done():
			return

		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))

			w, err := client.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued frames into the current write
			n := len(client.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-client.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection into the hub
func (h *Hub) readPump(client *Client) {
	defer h.wg.Done()
	defer h.Unregister(client)

	client.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	client.Conn.SetPongHandler(func(string) error {
		client.UpdateLastPong()
		client.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", client.ID),
				)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			client.SendErrorEvent(ErrCodeInvalidMessage, "failed to parse message")
			continue
		}

		switch MessageType(clientMsg.Type) {
		case MessageTypeSend:
			// Persistence failures are already reported to the sender
			h.HandleInbound(client, clientMsg.Content)

		case MessageTypePing:
			if data, err := newPongEvent(); err == nil {
				client.enqueue(data)
			}

		default:
			client.SendErrorEvent(ErrCodeUnknownType, "unknown message type: "+clientMsg.Type)
		}
	}
}

// monitorConnections removes connections whose pong responses are overdue
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			staleThreshold := h.config.ReadTimeout * 2

			for _, client := range h.registry.GetAll() {
				lastPong := client.GetLastPong()
				if now.Sub(lastPong) > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", client.ID),
						logger.String("username", client.Username),
						logger.Duration("idle_time", now.Sub(lastPong)),
					)
					h.Unregister(client)
				}
			}
		}
	}
}

// GetStats returns a copy of the hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()

	return HubStats{
		ConnectionsTotal:   h.stats.ConnectionsTotal,
		ConnectionsActive:  int64(h.registry.Count()),
		MessagesReceived:   h.stats.MessagesReceived,
		MessagesBroadcast:  h.stats.MessagesBroadcast,
		MessagesFailed:     h.stats.MessagesFailed,
		SendsDropped:       h.stats.SendsDropped,
		PresenceBroadcasts: h.stats.PresenceBroadcasts,
		LastMessageTime:    h.stats.LastMessageTime,
	}
}
