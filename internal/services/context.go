package services

import "context"

type contextKey string

const (
	messageIDKey  contextKey = "message_id"
	routingKeyKey contextKey = "routing_key"
	exchangeKey   contextKey = "exchange"
	stageKey      contextKey = "stage"
	requestIDKey  contextKey = "request_id"
)

// WithMessageID annotates context with the inbound message identifier.
func WithMessageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageIDFromContext extracts the message identifier if present.
func MessageIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, messageIDKey)
}

// WithRoutingKey annotates context with the routing key of the message.
func WithRoutingKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, routingKeyKey, key)
}

// RoutingKeyFromContext returns the routing key if present.
func RoutingKeyFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, routingKeyKey)
}

// WithExchange annotates context with the exchange the message arrived on.
func WithExchange(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, exchangeKey, name)
}

// ExchangeFromContext returns the exchange name if present.
func ExchangeFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, exchangeKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
