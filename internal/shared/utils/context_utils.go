package utils

import (
	"context"
	"errors"

	"keepsake/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrRequestIDNotFound   = errors.New("requestID not found in context")
	ErrRequestIDNotString  = errors.New("requestID in context is not a string")
	ErrCollectionNotFound  = errors.New("collection not found in context")
	ErrCollectionNotString = errors.New("collection in context is not a string")
)

func stringValue(ctx context.Context, key interface{}, missing, wrongType error) (string, error) {
	val := ctx.Value(key)
	if val == nil {
		return "", missing
	}
	s, ok := val.(string)
	if !ok {
		return "", wrongType
	}
	return s, nil
}

// GetRequestIDFromContext retrieves the request ID assigned by the HTTP layer.
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.RequestIDKey, ErrRequestIDNotFound, ErrRequestIDNotString)
}

// GetCollectionFromContext retrieves the collection name a request operates on.
func GetCollectionFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.CollectionKey, ErrCollectionNotFound, ErrCollectionNotString)
}

// WithRequestID returns a copy of ctx carrying requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

// WithCollection returns a copy of ctx carrying the collection name.
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, contextkeys.CollectionKey, collection)
}

// WithComponent returns a copy of ctx naming the component for log lines.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, component)
}

// GetRequestIDOrDefault returns the request ID, or def when there is none.
func GetRequestIDOrDefault(ctx context.Context, def string) string {
	if id, err := GetRequestIDFromContext(ctx); err == nil && id != "" {
		return id
	}
	return def
}
