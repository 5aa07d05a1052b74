// Package adapters binds the filtering pipeline to concrete host runtimes
// and holds the conversion helpers the per-host packages share.
package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
)

// Host identifies a supported host runtime.
type Host string

const (
	HostNetHTTP  Host = "nethttp"
	HostLambda   Host = "lambda"
	HostFastHTTP Host = "fasthttp"
)

// ParseHost validates a host runtime name. Initialization fails on names
// outside the supported set rather than guessing a default.
func ParseHost(name string) (Host, error) {
	switch Host(name) {
	case HostNetHTTP, HostLambda, HostFastHTTP:
		return Host(name), nil
	}
	return "", services.NewFilterError(services.ErrorTypeUnsupportedHost,
		fmt.Sprintf("unrecognized host runtime %q", name), nil)
}

// ParseSignals reads the configured telemetry headers out of a canonical
// (lower-cased) header map. A header that is missing or does not parse
// contributes nothing; a pair with neither field present is omitted
// entirely.
func ParseSignals(headers map[string]string, cfg config.SignalsConfig) []models.EdgeSignal {
	pairs := [][2]string{
		{cfg.ScoreHeader, cfg.VerifiedHeader},
		{cfg.SecondaryScoreHeader, cfg.SecondaryVerifiedHeader},
	}

	var signals []models.EdgeSignal
	for _, pair := range pairs {
		var sig models.EdgeSignal
		if name := strings.ToLower(pair[0]); name != "" {
			if raw, ok := headers[name]; ok {
				if score, err := strconv.ParseFloat(raw, 64); err == nil {
					sig.BotScore = &score
				}
			}
		}
		if name := strings.ToLower(pair[1]); name != "" {
			if raw, ok := headers[name]; ok {
				if verified, err := strconv.ParseBool(raw); err == nil {
					sig.VerifiedBot = &verified
				}
			}
		}
		if sig.BotScore != nil || sig.VerifiedBot != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}
