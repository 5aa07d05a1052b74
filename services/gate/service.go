// Package gate runs the full filtering pipeline for one request: serve
// verification artifacts, detect bot-like traffic, authorize it against the
// remote service, and record the outcome.
package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services/vai"
)

// Detector decides whether a request is bot-like.
type Detector interface {
	IsBotLike(ctx context.Context, rc *models.RequestContext) (bool, error)
}

// Authorizer produces the authorization decision for a bot-like request.
type Authorizer interface {
	Authorize(ctx context.Context, rc *models.RequestContext) (*models.AuthorizationDecision, error)
}

// ArtifactProxy serves the agent verification artifacts.
type ArtifactProxy interface {
	Proxy(ctx context.Context, rc *models.RequestContext) (*models.DecisionResponse, error)
}

// AccessLogger records access telemetry without blocking.
type AccessLogger interface {
	Log(rc *models.RequestContext, decision *models.AuthorizationDecision)
}

// Service orchestrates the per-request pipeline.
type Service struct {
	vaiPrefix  string
	detector   Detector
	authorizer Authorizer
	artifacts  ArtifactProxy
	access     AccessLogger
	logger     *zap.Logger
}

// New creates the pipeline service.
func New(cfg *config.Config, detector Detector, authorizer Authorizer, artifacts ArtifactProxy, access AccessLogger, logger *zap.Logger) *Service {
	return &Service{
		vaiPrefix:  cfg.Service.VAIPathPrefix,
		detector:   detector,
		authorizer: authorizer,
		artifacts:  artifacts,
		access:     access,
		logger:     logger,
	}
}

// Evaluate runs one request through the pipeline and always returns a
// result the host adapter can act on. Traffic that is not bot-like passes
// through with no remote calls; bot-like traffic gets an authorization
// decision, and evaluation failures along the way fail closed.
func (s *Service) Evaluate(ctx context.Context, rc *models.RequestContext) *models.EdgeResult {
	if vai.IsVAIRequest(rc.Path, s.vaiPrefix) {
		resp, err := s.artifacts.Proxy(ctx, rc)
		if err != nil {
			s.logger.Error("verification artifact proxy failed",
				zap.String("request_id", rc.ID),
				zap.String("path", rc.Path),
				zap.Error(err))
		}
		metrics.RecordDecision(string(models.OutcomeProxied))
		return &models.EdgeResult{Outcome: models.OutcomeProxied, Response: resp}
	}

	botLike, err := s.detector.IsBotLike(ctx, rc)
	if err != nil {
		s.logger.Warn("bot detection failed closed",
			zap.String("request_id", rc.ID),
			zap.Error(err))
	}
	if !botLike {
		metrics.RecordDecision(string(models.OutcomePassThrough))
		return &models.EdgeResult{Outcome: models.OutcomePassThrough}
	}

	decision, err := s.authorizer.Authorize(ctx, rc)
	if err != nil {
		s.logger.Error("authorization failed closed",
			zap.String("request_id", rc.ID),
			zap.String("user_agent", rc.UserAgent()),
			zap.Error(err))
	}

	s.access.Log(rc, decision)

	s.logger.Info("authorization decision",
		zap.String("request_id", rc.ID),
		zap.String("user_agent", rc.UserAgent()),
		zap.String("resource", rc.Resource()),
		zap.String("access", string(decision.Access)),
		zap.String("reason", decision.Reason))

	if decision.Denied() {
		metrics.RecordDecision(string(models.OutcomeDenied))
		return &models.EdgeResult{Outcome: models.OutcomeDenied, Decision: decision, Response: decision.Response}
	}

	metrics.RecordDecision(string(models.OutcomeAllowed))
	return &models.EdgeResult{Outcome: models.OutcomeAllowed, Decision: decision}
}
