package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Identity is the acting user resolved from the session boundary. The core
// treats it as opaque: the id attributes audit records, the role gates the
// few administrator-only operations.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// RoleAdmin may access period-wide sequence operations.
const RoleAdmin = "admin"

// IsAdmin reports whether the identity carries the administrator role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// ErrNoSession indicates the request carries no resolvable session token.
var ErrNoSession = errors.New("shared: no session")

// SessionHeader is the fallback token carrier for non-browser clients.
const SessionHeader = "X-Session-Token"

// SessionManager resolves opaque session tokens to identities via Redis.
// Creating sessions (login) is outside this core; an upstream identity
// provider writes the token, this layer only reads and refreshes it.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Resolve extracts the session token from the request and looks up the
// identity. The token may arrive as a cookie or a header.
func (sm *SessionManager) Resolve(ctx context.Context, r *http.Request) (Identity, error) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		cookie, err := r.Cookie(sm.cookieName)
		if err != nil {
			return Identity{}, ErrNoSession
		}
		token = cookie.Value
	}
	if token == "" {
		return Identity{}, ErrNoSession
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Identity{}, ErrNoSession
		}
		return Identity{}, err
	}

	var id Identity
	if err := json.Unmarshal(payload, &id); err != nil {
		return Identity{}, err
	}

	// Sliding expiry; a failure here only shortens the session.
	_ = sm.client.Expire(ctx, sm.redisKey(token), sm.ttl).Err()
	return id, nil
}

// Put stores an identity under a new token and returns the token. Exposed
// for tests and for the seed tooling; production logins happen upstream.
func (sm *SessionManager) Put(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	data, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(token), data, sm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Cookie builds the session cookie for a token.
func (sm *SessionManager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	}
}

func (sm *SessionManager) redisKey(token string) string {
	return "session:" + token
}
