package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/chat-server/internal/auth"
	"github.com/mohamedkhairy/chat-server/internal/cache"
	"github.com/mohamedkhairy/chat-server/internal/chat"
	"github.com/mohamedkhairy/chat-server/internal/config"
	"github.com/mohamedkhairy/chat-server/internal/httpapi"
	"github.com/mohamedkhairy/chat-server/internal/storage"
	"github.com/mohamedkhairy/chat-server/pkg/logger"
)

const recentMessagesKey = "chat:recent_messages"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting chat server",
		logger.Int("port", cfg.Server.Port),
		logger.Int("max_connections", cfg.Chat.MaxConnections),
		logger.String("allowed_origin", cfg.Server.AllowedOrigin),
	)

	// Initialize PostgreSQL store (users + messages)
	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Initialize optional Redis recent-message cache
	var msgCache cache.MessageCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisMessageCache(cfg.Redis, recentMessagesKey, cfg.Chat.HistoryLimit)
		if err != nil {
			logger.Fatal("Failed to initialize Redis message cache",
				logger.ErrorField(err),
			)
		}
		defer redisCache.Close()
		msgCache = redisCache
	}

	// Initialize auth manager
	authManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry, cfg.Auth.BcryptCost)

	// Initialize hub
	hub := chat.NewHub(cfg.Chat, store, msgCache)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start chat hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	// Initialize handlers
	authHandler := httpapi.NewAuthHandler(store, authManager, cfg.Auth.TokenExpiry, cfg.Auth.CookieSecure)
	messageHandler := httpapi.NewMessageHandler(store, msgCache, cfg.Chat.HistoryLimit)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Server.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.Server.AllowedOrigin
		},
	}

	// Set up routers. The API router gets the middleware chain; the
	// WebSocket endpoint stays unwrapped so the upgrade can hijack the
	// connection.
	router := mux.NewRouter()

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(hub, authManager, upgrader, w, r, cfg.Chat)
	})

	apiRouter := mux.NewRouter()
	apiRouter.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")
	apiRouter.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	apiRouter.HandleFunc("/api/auth/logout", authHandler.Logout).Methods("POST")

	requireAuth := httpapi.AuthMiddleware(authManager)
	apiRouter.Handle("/api/auth/verify", requireAuth(http.HandlerFunc(authHandler.Verify))).Methods("GET")
	apiRouter.Handle("/api/messages", requireAuth(http.HandlerFunc(messageHandler.ListMessages))).Methods("GET")

	apiChain := httpapi.ChainMiddleware(
		httpapi.CORSMiddleware(cfg.Server.AllowedOrigin),
		httpapi.LoggingMiddleware(),
		httpapi.ErrorHandlingMiddleware(),
		httpapi.RateLimitMiddleware(cfg.Server.RateLimitRPS),
	)
	router.PathPrefix("/api/").Handler(apiChain(apiRouter))

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := store.RecentMessages(ctx, 1); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	// Stats endpoint
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&stats)
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down chat server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Chat server stopped")
}

// handleWebSocket authenticates and upgrades a WebSocket connection.
// Authentication happens before the upgrade; a missing token is rejected
// the same way as an invalid one.
func handleWebSocket(hub *chat.Hub, authManager *auth.Manager, upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, cfg config.ChatConfig) {
	// Fast path before the upgrade; Register re-checks atomically
	stats := hub.GetStats()
	if int(stats.ConnectionsActive) >= cfg.MaxConnections {
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", cfg.MaxConnections),
			logger.Int64("active_connections", stats.ConnectionsActive),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	token, err := authManager.TokenFromRequest(r)
	if err == nil {
		var identity *auth.Identity
		identity, err = authManager.VerifyToken(token)
		if err == nil {
			conn, upErr := upgrader.Upgrade(w, r, nil)
			if upErr != nil {
				logger.Error("Failed to upgrade connection",
					logger.ErrorField(upErr),
				)
				return
			}

			client := chat.NewClient(uuid.New().String(), identity.Username, conn, cfg.SendBufferSize)
			if regErr := hub.Register(client); regErr != nil {
				logger.Warn("Max connections reached, closing upgraded connection",
					logger.Int("max_connections", cfg.MaxConnections),
					logger.String("remote_addr", r.RemoteAddr),
				)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server is full"),
					time.Now().Add(time.Second))
				conn.Close()
				return
			}
			hub.Serve(client)

			logger.Info("WebSocket connection established",
				logger.String("connection_id", client.ID),
				logger.String("username", identity.Username),
				logger.String("remote_addr", r.RemoteAddr),
			)
			return
		}
	}

	logger.Warn("Rejecting unauthenticated WebSocket connection",
		logger.ErrorField(err),
		logger.String("remote_addr", r.RemoteAddr),
	)
	http.Error(w, "Authentication error", http.StatusUnauthorized)
}
