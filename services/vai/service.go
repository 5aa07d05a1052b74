// Package vai serves the verification artifact endpoints by relaying them
// from the filter service. Artifact requests bypass the decision pipeline
// entirely.
package vai

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
	"github.com/paywalls-net/filter/version"
)

const (
	artifactJSON = "/vai.json"
	artifactJS   = "/vai.js"

	// upstreamPrefix is fixed on the service side regardless of the
	// locally configured path prefix.
	upstreamPrefix = "/pw"
)

// relayedHeaders are the upstream response headers passed through to the
// client.
var relayedHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// IsVAIRequest reports whether the path names one of the two verification
// artifacts under the given prefix. Nothing else matches.
func IsVAIRequest(path, prefix string) bool {
	return path == prefix+artifactJSON || path == prefix+artifactJS
}

// Service relays verification artifacts from the filter service.
type Service struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new VAI Service.
func New(cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		baseURL: cfg.Service.APIBaseURL,
		apiKey:  cfg.Service.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Service.HTTPTimeout,
		},
		logger: logger,
	}
}

// Proxy fetches the artifact named by the request path and relays its
// status, headers and body. It always returns a usable response: any
// failure to reach the upstream degrades to a generic 500 with the cause
// returned alongside for logging, never exposed to the client.
func (s *Service) Proxy(ctx context.Context, rc *models.RequestContext) (*models.DecisionResponse, error) {
	artifact := artifactJSON
	if strings.HasSuffix(rc.Path, artifactJS) {
		artifact = artifactJS
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+upstreamPrefix+artifact, nil)
	if err != nil {
		return internalError(), services.WrapRemoteFetch("failed to create artifact request", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("User-Agent", requestUserAgent(rc))

	if xff := forwardedFor(rc); xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	if host := originalHost(rc); host != "" {
		req.Header.Set("X-Original-Host", host)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest("vai", "error", time.Since(start))
		return internalError(), services.WrapRemoteFetch("artifact request failed", err)
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteRequest("vai", strconv.Itoa(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return internalError(), services.WrapRemoteFetch("failed to read artifact response", err)
	}

	headers := make(map[string]string)
	for _, name := range relayedHeaders {
		if v := resp.Header.Get(name); v != "" {
			headers[name] = v
		}
	}

	// The upstream status is relayed verbatim, non-2xx included.
	return &models.DecisionResponse{
		Code:    resp.StatusCode,
		Headers: headers,
		Body:    string(body),
	}, nil
}

// requestUserAgent returns the original User-Agent, or the SDK identifier
// when the request carries none.
func requestUserAgent(rc *models.RequestContext) string {
	if ua := rc.UserAgent(); ua != "" {
		return ua
	}
	return version.UserAgent()
}

// forwardedFor prefers the client-supplied forwarding header, falling back
// to the connection's remote address.
func forwardedFor(rc *models.RequestContext) string {
	if xff := rc.Header(models.HeaderForwardedFor); xff != "" {
		return xff
	}
	if rc.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(rc.RemoteAddr); err == nil {
		return host
	}
	return rc.RemoteAddr
}

// originalHost prefers the client-supplied original-host header, falling
// back to the requested host.
func originalHost(rc *models.RequestContext) string {
	if host := rc.Header(models.HeaderOriginalHost); host != "" {
		return host
	}
	return rc.Host
}

func internalError() *models.DecisionResponse {
	return &models.DecisionResponse{
		Code: http.StatusInternalServerError,
		Body: "Internal Server Error",
	}
}
