package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/adapters"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
)

// Evaluator defines the interface for the filtering pipeline
type Evaluator interface {
	Evaluate(ctx context.Context, rc *models.RequestContext) *models.EdgeResult
}

// FilterMiddleware runs incoming requests through the filtering pipeline
// and serves intercepted responses itself; everything else continues down
// the handler chain.
type FilterMiddleware struct {
	evaluator Evaluator
	signals   config.SignalsConfig
	logger    *zap.Logger
}

// NewFilterMiddleware creates a new FilterMiddleware
func NewFilterMiddleware(evaluator Evaluator, signals config.SignalsConfig, logger *zap.Logger) *FilterMiddleware {
	return &FilterMiddleware{
		evaluator: evaluator,
		signals:   signals,
		logger:    logger,
	}
}

// Filter is the middleware that evaluates each request
func (m *FilterMiddleware) Filter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := WithRequestID(r.Context(), requestID)

		rc := NewRequestContext(r, m.signals)
		rc.ID = requestID

		result := m.evaluator.Evaluate(ctx, rc)

		if result.Intercepted() {
			m.logger.Debug("request intercepted",
				zap.String("request_id", requestID),
				zap.String("outcome", string(result.Outcome)),
				zap.Int("code", result.Response.Code))
			WriteDecision(w, result.Response)
			return
		}

		ctx = WithResult(ctx, result)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewRequestContext converts a net/http request into the canonical request
// shape consumed by the pipeline. Header names are lower-cased and only the
// first value of each header is kept.
func NewRequestContext(r *http.Request, signals config.SignalsConfig) *models.RequestContext {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	return &models.RequestContext{
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Headers:    headers,
		Signals:    adapters.ParseSignals(headers, signals),
		RemoteAddr: r.RemoteAddr,
	}
}

// WriteDecision renders an intercepted response onto a net/http writer.
func WriteDecision(w http.ResponseWriter, resp *models.DecisionResponse) {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(resp.Code)
	_, _ = w.Write([]byte(resp.Body))
}
