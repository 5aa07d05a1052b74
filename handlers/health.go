package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/app"
	"github.com/paywalls-net/filter/utils"
	"github.com/paywalls-net/filter/version"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck performs a more thorough readiness check
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		response := map[string]interface{}{
			"status": "ready",
			"checks": map[string]string{},
		}
		checks := response["checks"].(map[string]string)

		// Check the classification cache
		if _, _, err := deps.Store.Get(ctx, "readiness-probe"); err != nil {
			response["status"] = "not_ready"
			checks["cache"] = "unhealthy"
			deps.Logger.Error("cache readiness check failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}

		// A missing ruleset does not block readiness: the filter still
		// fails closed on bot traffic and the first check triggers the
		// fetch. It is surfaced here so operators see a cold start.
		if deps.Rules.Stats().Loaded {
			checks["ruleset"] = "loaded"
		} else {
			checks["ruleset"] = "not_loaded"
		}

		// Check the access logger
		if deps.AccessLog.GetStats().Started {
			checks["access_logger"] = "running"
		} else {
			response["status"] = "not_ready"
			checks["access_logger"] = "stopped"
		}

		status := http.StatusOK
		if response["status"] != "ready" {
			status = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, status, response)
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"version":     version.Version,
			"environment": deps.Config.Environment,
			"ruleset":     deps.Rules.Stats(),
			"access_log":  deps.AccessLog.GetStats(),
		}
		if stats, ok := deps.Classifier.CacheStats(); ok {
			response["classifier_cache"] = stats
		}

		_ = utils.WriteJSON(w, http.StatusOK, response)
	}
}
