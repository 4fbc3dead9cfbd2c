package service

import "context"

// SessionInfo es la sesión autenticada adjunta a un request.
type SessionInfo struct {
	UserID string
	Email  string
}

type sessionContextKey struct{}

func WithSession(ctx context.Context, session SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func SessionFromContext(ctx context.Context) (SessionInfo, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(SessionInfo)
	if !ok || session.UserID == "" {
		return SessionInfo{}, false
	}
	return session, true
}
