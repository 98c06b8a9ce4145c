package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	actorKey   contextKey = "actor"
)

// WithTraceID stores traceID in ctx, generating one when empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithActor records the authenticated user acting in ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

func Actor(ctx context.Context) string {
	id, _ := ctx.Value(actorKey).(string)
	return id
}

func NewTraceID() string {
	return uuid.NewString()
}
