package logging

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// FlowIDField is the log field carrying the login or refresh flow identifier.
const FlowIDField = "flow"

type flowIDKey struct{}

// GenerateFlowID creates a new 8-character flow ID.
func GenerateFlowID() string {
	return uuid.NewString()[:8]
}

// WithFlowID returns a new context with the flow ID attached.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, flowIDKey{}, flowID)
}

// GetFlowID retrieves the flow ID from the context. Returns "" if not found.
func GetFlowID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(flowIDKey{}).(string); ok {
		return id
	}
	return ""
}

// EnsureFlowID returns ctx unchanged when it already carries a flow ID,
// otherwise a child context with a fresh one.
func EnsureFlowID(ctx context.Context) context.Context {
	if GetFlowID(ctx) != "" {
		return ctx
	}
	return WithFlowID(ctx, GenerateFlowID())
}

// Entry returns a logrus entry tagged with the flow ID found in ctx.
func Entry(ctx context.Context) *log.Entry {
	if id := GetFlowID(ctx); id != "" {
		return log.WithField(FlowIDField, id)
	}
	return log.NewEntry(log.StandardLogger())
}
