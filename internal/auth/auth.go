package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("credential token is missing")
	ErrInvalidToken = errors.New("credential token is invalid")
)

// Identity is a verified user identity extracted from a credential token
type Identity struct {
	UserID   string
	Username string
}

// Manager issues and verifies JWT credential tokens and password hashes
type Manager struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	bcryptCost  int
}

// NewManager creates a new auth manager
func NewManager(jwtSecret string, tokenExpiry time.Duration, bcryptCost int) *Manager {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Manager{
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
		bcryptCost:  bcryptCost,
	}
}

// IssueToken creates a signed token for the given user
func (m *Manager) IssueToken(userID string, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(m.tokenExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the identity it carries
func (m *Manager) VerifyToken(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		// Fall back to the subject claim
		if sub, ok := claims["sub"].(string); ok {
			userID = sub
		}
	}

	return &Identity{
		UserID:   userID,
		Username: username,
	}, nil
}

// TokenFromRequest extracts the credential token from a request.
// Checks the token cookie first, then the Authorization header,
// then the token query parameter.
func (m *Manager) TokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return tokenFromHeader(authHeader)
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrMissingToken
}

// tokenFromHeader extracts a token from an Authorization header value.
// Supports both "Bearer <token>" and just "<token>".
func tokenFromHeader(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if strings.ToLower(parts[0]) != "bearer" {
			return "", ErrInvalidToken
		}
		return parts[1], nil
	default:
		return "", ErrInvalidToken
	}
}

// HashPassword hashes a plaintext password with bcrypt
func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash
func (m *Manager) CheckPassword(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
