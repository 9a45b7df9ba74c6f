package session

import (
	"context"
	"strings"

	"keepsake/internal/shared/contextkeys"
	apperrors "keepsake/internal/shared/errors"
)

// Session is what a running process knows about its visitor. It is created once at startup
// by Init and handed down explicitly, never mutated through a global.
type Session struct {
	Unlocked   bool
	AdminToken string
}

// Init builds the startup session from a stored admin token. An empty token means locked.
func Init(adminToken string) Session {
	adminToken = strings.TrimSpace(adminToken)
	return Session{Unlocked: adminToken != "", AdminToken: adminToken}
}

// Unlock returns the session after the gate handed out token.
func (s Session) Unlock(token string) Session {
	return Init(token)
}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextkeys.SessionKey, s)
}

// FromContext returns the session stored in ctx. Without one the session is locked.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(contextkeys.SessionKey).(Session); ok {
		return s
	}
	return Session{}
}

// RequireUnlocked fails unless the session in ctx is unlocked.
func RequireUnlocked(ctx context.Context) error {
	if !FromContext(ctx).Unlocked {
		return apperrors.NewAuthenticationError("session is locked").WithCause(apperrors.ErrUnauthorized)
	}
	return nil
}
