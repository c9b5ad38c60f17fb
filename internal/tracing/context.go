package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the conversation session ID
	SessionIDKey ContextKey = "session_id"
	// SenderIDKey is the context key for the messaging-platform sender ID
	SenderIDKey ContextKey = "sender_id"
	// MessageIDKey is the context key for the inbound platform message ID
	MessageIDKey ContextKey = "message_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	SenderID  string
	MessageID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithSenderID adds the platform sender ID to the context
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, SenderIDKey, senderID)
}

// WithMessageID adds the inbound message ID to the context
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	return stringValue(ctx, SessionIDKey)
}

// GetSenderID retrieves the sender ID from the context
func GetSenderID(ctx context.Context) string {
	return stringValue(ctx, SenderIDKey)
}

// GetMessageID retrieves the message ID from the context
func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		SenderID:  GetSenderID(ctx),
		MessageID: GetMessageID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.SenderID != "" {
		ctx = WithSenderID(ctx, tc.SenderID)
	}
	if tc.MessageID != "" {
		ctx = WithMessageID(ctx, tc.MessageID)
	}
	return ctx
}

// NewRequestContext creates a new context for an inbound event with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}
