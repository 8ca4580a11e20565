package domain

import "context"

type contextKey string

const sessionKey contextKey = "fpp_session"

// WithSession stores the resolved session in ctx
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session stored by WithSession, or nil
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey).(*Session)
	return session
}
