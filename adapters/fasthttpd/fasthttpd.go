// Package fasthttpd adapts the filtering pipeline to fasthttp servers.
package fasthttpd

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/adapters"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
)

// Evaluator defines the interface for the filtering pipeline
type Evaluator interface {
	Evaluate(ctx context.Context, rc *models.RequestContext) *models.EdgeResult
}

// Handler evaluates fasthttp requests.
type Handler struct {
	evaluator Evaluator
	signals   config.SignalsConfig
	logger    *zap.Logger
}

// New creates a new Handler
func New(evaluator Evaluator, signals config.SignalsConfig, logger *zap.Logger) *Handler {
	return &Handler{
		evaluator: evaluator,
		signals:   signals,
		logger:    logger,
	}
}

// Handle runs one request through the pipeline and reports whether it was
// intercepted. When it returns true the response has been written and the
// caller must not continue to the origin.
func (h *Handler) Handle(ctx context.Context, rctx *fasthttp.RequestCtx) bool {
	rc := NewRequestContext(rctx, h.signals)

	result := h.evaluator.Evaluate(ctx, rc)
	if !result.Intercepted() {
		return false
	}

	h.logger.Debug("request intercepted",
		zap.String("request_id", rc.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("code", result.Response.Code))

	WriteDecision(rctx, result.Response)
	return true
}

// NewRequestContext converts a fasthttp request into the canonical request
// shape. Header bytes are copied out, so the result stays valid after the
// request context is recycled.
func NewRequestContext(rctx *fasthttp.RequestCtx, signals config.SignalsConfig) *models.RequestContext {
	headers := make(map[string]string)
	rctx.Request.Header.VisitAll(func(key, value []byte) {
		name := strings.ToLower(string(key))
		if _, ok := headers[name]; !ok {
			headers[name] = string(value)
		}
	})

	return &models.RequestContext{
		ID:         uuid.New().String(),
		Method:     string(rctx.Method()),
		Host:       string(rctx.Host()),
		Path:       string(rctx.Path()),
		RawQuery:   string(rctx.URI().QueryString()),
		Headers:    headers,
		Signals:    adapters.ParseSignals(headers, signals),
		RemoteAddr: rctx.RemoteAddr().String(),
	}
}

// WriteDecision renders an intercepted response onto a fasthttp context.
func WriteDecision(rctx *fasthttp.RequestCtx, resp *models.DecisionResponse) {
	for name, value := range resp.Headers {
		rctx.Response.Header.Set(name, value)
	}
	rctx.SetStatusCode(resp.Code)
	rctx.SetBodyString(resp.Body)
}
