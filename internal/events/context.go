package events

import "context"

type sessionIDKey struct{}
type turnIDKey struct{}

// ContextWithSessionID returns a new context carrying the session ID.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext extracts the session ID from the context, or "" if absent.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithTurnID returns a new context carrying the turn ID.
func ContextWithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnIDFromContext extracts the turn ID from the context, or "" if absent.
func TurnIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(turnIDKey{}).(string); ok {
		return id
	}
	return ""
}
