package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/chat-server/internal/auth"
	"github.com/mohamedkhairy/chat-server/internal/cache"
	"github.com/mohamedkhairy/chat-server/internal/models"
	"github.com/mohamedkhairy/chat-server/internal/storage"
	"github.com/mohamedkhairy/chat-server/pkg/logger"
)

const tokenCookieName = "token"

// credentialsRequest is the body of register and login requests
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the user object returned by auth endpoints
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthHandler handles account registration, login and token verification
type AuthHandler struct {
	users        storage.UserStore
	authManager  *auth.Manager
	tokenExpiry  time.Duration
	cookieSecure bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users storage.UserStore, authManager *auth.Manager, tokenExpiry time.Duration, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		authManager:  authManager,
		tokenExpiry:  tokenExpiry,
		cookieSecure: cookieSecure,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	existing, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	if existing != nil {
		respondWithError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	hash, err := h.authManager.HashPassword(req.Password)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	logger.Info("User registered",
		logger.String("username", req.Username),
	)

	h.issueSession(w, user.ID, user.Username)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	// Missing user and wrong password are indistinguishable to the client
	if user == nil || !h.authManager.CheckPassword(user.PasswordHash, req.Password) {
		respondWithError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	logger.Info("User logged in",
		logger.String("username", user.Username),
	)

	h.issueSession(w, user.ID, user.Username)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Verify handles GET /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user": userResponse{ID: identity.UserID, Username: identity.Username},
	})
}

// issueSession signs a token for the user and sets it as an HTTP-only cookie
func (h *AuthHandler) issueSession(w http.ResponseWriter, userID string, username string) {
	token, err := h.authManager.IssueToken(userID, username)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.tokenExpiry.Seconds()),
	})

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user": userResponse{ID: userID, Username: username},
	})
}

// MessageHandler serves the bounded recent-message history
type MessageHandler struct {
	store        storage.MessageStore
	messageCache cache.MessageCache
	historyLimit int
}

// NewMessageHandler creates a new message handler. The cache is optional
// and may be nil.
func NewMessageHandler(store storage.MessageStore, messageCache cache.MessageCache, historyLimit int) *MessageHandler {
	return &MessageHandler{
		store:        store,
		messageCache: messageCache,
		historyLimit: historyLimit,
	}
}

// ListMessages handles GET /api/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	// The cache only serves when it covers the full history window; a
	// partially warm cache (fresh restart) falls through to the store.
	if h.messageCache != nil {
		messages, err := h.messageCache.Recent(r.Context(), h.historyLimit)
		if err != nil {
			logger.Warn("Message cache read failed, falling back to store",
				logger.ErrorField(err),
			)
		} else if len(messages) >= h.historyLimit {
			respondWithJSON(w, http.StatusOK, messages)
			return
		}
	}

	messages, err := h.store.RecentMessages(r.Context(), h.historyLimit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	respondWithJSON(w, http.StatusOK, messages)
}
