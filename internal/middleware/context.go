// Package middleware provides the HTTP middleware chain: tracing,
// authentication, rate limiting, and CORS.
package middleware

import "context"

type contextKey string

const (
	projectIDKey contextKey = "project_id"
	userIDKey    contextKey = "user_id"
	roleKey      contextKey = "role"
	traceIDKey   contextKey = "trace_id"
)

// WithIdentity stores the authenticated identity on the context.
func WithIdentity(ctx context.Context, projectID, userID, role string) context.Context {
	ctx = context.WithValue(ctx, projectIDKey, projectID)
	ctx = context.WithValue(ctx, userIDKey, userID)
	if role != "" {
		ctx = context.WithValue(ctx, roleKey, role)
	}
	return ctx
}

// ProjectID returns the authenticated project scope, or "".
func ProjectID(ctx context.Context) string {
	v, _ := ctx.Value(projectIDKey).(string)
	return v
}

// UserID returns the authenticated user, or "".
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// Role returns the authenticated role, or "".
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

// WithTraceID stores the request trace ID on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the request trace ID, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
