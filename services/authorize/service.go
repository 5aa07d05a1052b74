// Package authorize asks the filter service whether a bot-like request
// may proceed. The remote oracle decides; this client enforces, failing
// closed whenever the oracle cannot be reached.
package authorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
)

const authPath = "/api/filter/agents/auth"

type authRequest struct {
	AccountID string            `json:"account_id"`
	Operator  string            `json:"operator"`
	Agent     string            `json:"agent"`
	Token     string            `json:"token"`
	Headers   map[string]string `json:"headers"`
}

// Classifier resolves the user-agent string for the wire payload.
type Classifier interface {
	Classify(ctx context.Context, rawUA string) (models.AgentClassification, error)
}

// Service is the authorization client.
type Service struct {
	baseURL    string
	apiKey     string
	accountID  string
	classifier Classifier
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new authorization Service.
func New(cfg *config.Config, classifier Classifier, logger *zap.Logger) *Service {
	return &Service{
		baseURL:    cfg.Service.APIBaseURL,
		apiKey:     cfg.Service.APIKey,
		accountID:  cfg.Service.AccountID,
		classifier: classifier,
		httpClient: &http.Client{
			Timeout: cfg.Service.HTTPTimeout,
		},
		logger: logger,
	}
}

// Authorize decides whether a bot-like request may proceed. It always
// returns a usable decision: requests without a User-Agent header get the
// immediate 401 deny with no remote call, and any failure to obtain the
// oracle's verdict (transport error, timeout, non-2xx, undecodable body)
// degrades to the 502 deny, with the cause returned alongside for logging.
func (s *Service) Authorize(ctx context.Context, rc *models.RequestContext) (*models.AuthorizationDecision, error) {
	rawUA := rc.UserAgent()
	if rawUA == "" {
		return models.DenyMissingUserAgent(), nil
	}

	c, err := s.classifier.Classify(ctx, rawUA)
	if err != nil {
		return models.DenyUnknownError(), err
	}

	token := BearerToken(rc.Header(models.HeaderAuthorization))
	if token != "" {
		if claims, err := InspectToken(token); err == nil {
			s.logger.Debug("agent token claims",
				zap.String("request_id", rc.ID),
				zap.String("subject", claims.Subject),
				zap.Time("expires_at", claims.ExpiresAt))
		}
	}

	payload, err := json.Marshal(authRequest{
		AccountID: s.accountID,
		Operator:  c.Operator,
		Agent:     c.Agent,
		Token:     token,
		Headers:   rc.Headers,
	})
	if err != nil {
		return models.DenyUnknownError(), services.WrapDeserialization("failed to marshal authorization request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+authPath, bytes.NewReader(payload))
	if err != nil {
		return models.DenyUnknownError(), services.WrapRemoteFetch("failed to create authorization request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest("auth", "error", time.Since(start))
		return models.DenyUnknownError(), services.WrapRemoteFetch("authorization request failed", err)
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteRequest("auth", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.DenyUnknownError(), services.NewFilterError(services.ErrorTypeRemoteFetch,
			fmt.Sprintf("authorization request returned status %d", resp.StatusCode), nil)
	}

	var decision models.AuthorizationDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return models.DenyUnknownError(), services.WrapDeserialization("failed to decode authorization decision", err)
	}

	// The oracle's decision is relayed verbatim, deny response included.
	return &decision, nil
}

// BearerToken extracts the credential from an Authorization header value:
// everything after the first space. Absent or schemeless values yield the
// empty token.
func BearerToken(header string) string {
	if i := strings.IndexByte(header, ' '); i >= 0 {
		return header[i+1:]
	}
	return ""
}
