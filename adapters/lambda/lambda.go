// Package lambda adapts the filtering pipeline to AWS Lambda invocations
// behind API Gateway. The handler answers intercepted requests itself and
// returns nil for traffic that should continue to the origin integration.
package lambda

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
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

// Handler evaluates API Gateway proxy events.
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

// Handle runs one event through the pipeline. A nil response means the
// request was not intercepted and the caller forwards it to the origin.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (*events.APIGatewayProxyResponse, error) {
	rc := NewRequestContext(event, h.signals)

	result := h.evaluator.Evaluate(ctx, rc)
	if !result.Intercepted() {
		return nil, nil
	}

	h.logger.Debug("request intercepted",
		zap.String("request_id", rc.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("code", result.Response.Code))

	return &events.APIGatewayProxyResponse{
		StatusCode: result.Response.Code,
		Headers:    result.Response.Headers,
		Body:       result.Response.Body,
	}, nil
}

// NewRequestContext converts an API Gateway proxy event into the canonical
// request shape. The event's own request ID is reused for correlation with
// the gateway's access logs.
func NewRequestContext(event events.APIGatewayProxyRequest, signals config.SignalsConfig) *models.RequestContext {
	headers := make(map[string]string, len(event.Headers))
	for name, values := range event.MultiValueHeaders {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	for name, value := range event.Headers {
		headers[strings.ToLower(name)] = value
	}

	host := headers["host"]
	if host == "" {
		host = event.RequestContext.DomainName
	}

	requestID := event.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return &models.RequestContext{
		ID:         requestID,
		Method:     event.HTTPMethod,
		Host:       host,
		Path:       event.Path,
		RawQuery:   rawQuery(event),
		Headers:    headers,
		Signals:    adapters.ParseSignals(headers, signals),
		RemoteAddr: event.RequestContext.Identity.SourceIP,
	}
}

// rawQuery reassembles the query string API Gateway delivers pre-parsed.
func rawQuery(event events.APIGatewayProxyRequest) string {
	if len(event.MultiValueQueryStringParameters) > 0 {
		return url.Values(event.MultiValueQueryStringParameters).Encode()
	}
	if len(event.QueryStringParameters) == 0 {
		return ""
	}
	values := url.Values{}
	for name, value := range event.QueryStringParameters {
		values.Set(name, value)
	}
	return values.Encode()
}
