package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/chat-server/internal/config"
	"github.com/mohamedkhairy/chat-server/internal/models"
	"github.com/mohamedkhairy/chat-server/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messageWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_message_writes_total",
			Help: "Total number of message write operations",
		},
		[]string{"status"}, // "success" or "error"
	)

	messageWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_message_write_latency_seconds",
			Help:    "Message write latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
	)
)

// PostgresStore implements MessageStore and UserStore backed by PostgreSQL
type PostgresStore struct {
	db       *sql.DB
	dbConfig config.DatabaseConfig
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dbConfig config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:       db,
		dbConfig: dbConfig,
	}

	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return store, nil
}

// ensureSchema creates the chat tables if they do not exist
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chat_users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_timestamp ON chat_messages (timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveMessage persists a single message
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		messageWriteTotal.WithLabelValues("error").Inc()
		return err
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, username, content, timestamp) VALUES ($1, $2, $3, $4)`,
		msg.ID,
		msg.Username,
		msg.Content,
		msg.Timestamp,
	)
	messageWriteLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		messageWriteTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to insert message: %w", err)
	}

	messageWriteTotal.WithLabelValues("success").Inc()
	return nil
}

// RecentMessages retrieves the most recent messages, oldest first
func (s *PostgresStore) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, content, timestamp
		 FROM chat_messages
		 ORDER BY timestamp DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	// Query returns newest first; reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// CreateUser inserts a new user account
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves a user by username, nil if not found
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM chat_users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
