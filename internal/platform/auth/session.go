package auth

import (
	"context"
	"strings"
)

// Session is the authenticated caller. Every actor id used by the core comes
// from here, never from a request payload.
type Session struct {
	Subject string // identity-provider subject; doubles as the profile id
	Email   string
	Wallet  string
}

// System is the actor used by background jobs such as the reconciliation sweeper.
var System = Session{Subject: "system"}

func (s Session) IsSystem() bool { return s.Subject == System.Subject }

func (s Session) Valid() bool { return strings.TrimSpace(s.Subject) != "" }

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && s.Valid()
}
