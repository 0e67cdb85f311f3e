package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"surveyhub.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor records the authenticated user id acting in ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, userID)
}

// RequestIDFromContext returns the request id attached with WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit record enriched with request and actor context.
// Callers must never pass secrets in fields.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := make([]zap.Field, 0, len(fields)+4)
	entry = append(entry, zap.String("type", "audit"), zap.String("event", event))
	if rid := stringValue(ctx, requestIDKey); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if actor := stringValue(ctx, actorKey); actor != "" {
		entry = append(entry, zap.String("actor_id", actor))
	}
	entry = append(entry, zap.Dict("fields", fields...))
	obs.Logger().Info("audit", entry...)
	return nil
}
