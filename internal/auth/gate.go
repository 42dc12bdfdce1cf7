// Package auth verifies who is on the other end of a request: bcrypt
// passwords, signed tokens and the cookie session.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/storage"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionName    = "CodeRoomSessions"
	sessionUserKey = "user_id"
	tokenQueryKey  = "token"
)

// Gate resolves the verified identity behind an HTTP request or a
// WebSocket handshake.
type Gate interface {
	ResolveIdentity(c *gin.Context) (*domain.User, error)
}

// SessionGate accepts a bearer token first and falls back to the cookie
// session. The resolved user must exist in the store.
type SessionGate struct {
	Users  storage.UserStore
	Tokens *TokenIssuer
}

func NewSessionGate(users storage.UserStore, tokens *TokenIssuer) *SessionGate {
	return &SessionGate{Users: users, Tokens: tokens}
}

func (g *SessionGate) ResolveIdentity(c *gin.Context) (*domain.User, error) {
	userID, err := g.userID(c)
	if err != nil {
		return nil, err
	}
	u, err := g.Users.GetUser(c.Request.Context(), userID)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: unknown user", core.ErrUnauthenticated)
	default:
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
}

func (g *SessionGate) userID(c *gin.Context) (domain.UserID, error) {
	if raw := bearerToken(c); raw != "" {
		if g.Tokens == nil {
			return "", core.ErrUnauthenticated
		}
		id, err := g.Tokens.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
		}
		return id, nil
	}
	if id, ok := sessions.Default(c).Get(sessionUserKey).(string); ok && id != "" {
		return domain.UserID(id), nil
	}
	return "", core.ErrUnauthenticated
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return c.Query(tokenQueryKey)
}

// StartSession binds the cookie session to userID.
func StartSession(c *gin.Context, userID domain.UserID) error {
	s := sessions.Default(c)
	s.Set(sessionUserKey, string(userID))
	return s.Save()
}

func EndSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}
