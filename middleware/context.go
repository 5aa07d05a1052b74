package middleware

import (
	"context"

	"github.com/paywalls-net/filter/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ResultKey is the context key for the pipeline result
	ResultKey contextKey = "filter_result"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetResultFromContext retrieves the pipeline result from context. It is
// set only on requests that were handed on to the next handler.
func GetResultFromContext(ctx context.Context) *models.EdgeResult {
	if val := ctx.Value(ResultKey); val != nil {
		if result, ok := val.(*models.EdgeResult); ok {
			return result
		}
	}
	return nil
}

// WithResult adds the pipeline result to the context
func WithResult(ctx context.Context, result *models.EdgeResult) context.Context {
	return context.WithValue(ctx, ResultKey, result)
}
