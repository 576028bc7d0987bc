package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/onboarding-survey/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // exact path, or a prefix when it ends with "/"
	Method string        // HTTP method
	Limit  int           // requests per window
	Window time.Duration // time window
	Burst  int           // defaults to Limit when 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// FromConfig builds the limiter configuration from the service configuration.
func FromConfig(cfg config.RateLimitConfig) *Config {
	if !cfg.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    cfg.DefaultLimit,
		DefaultWindow:   cfg.DefaultWindow,
		CleanupInterval: cfg.CleanupInterval,
		Whitelist:       ipSet(cfg.Whitelist),
		Blacklist:       ipSet(cfg.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific limits.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Credential endpoints
		{Path: "/v1/auth/login", Method: http.MethodPost, Limit: 10, Window: time.Minute, Burst: 5},
		{Path: "/v1/auth/register", Method: http.MethodPost, Limit: 5, Window: time.Minute, Burst: 2},

		// Expensive survey operations
		{Path: "/v1/survey/submit", Method: http.MethodPost, Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/v1/survey/responses", Method: http.MethodPost, Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/v1/survey/portfolio/file", Method: http.MethodPost, Limit: 10, Window: time.Minute, Burst: 2},
		{Path: "/v1/survey/platforms/", Method: http.MethodPost, Limit: 20, Window: time.Minute, Burst: 5},

		// Keystroke-rate edits
		{Path: "/v1/survey/fields/", Method: http.MethodPut, Limit: 600, Window: time.Minute, Burst: 60},
		{Path: "/v1/survey/fields/", Method: http.MethodPost, Limit: 600, Window: time.Minute, Burst: 60},
		{Path: "/v1/survey", Method: http.MethodPatch, Limit: 300, Window: time.Minute, Burst: 30},

		// Everything else uses the default limit; /health is unlimited.
	}
}

// ipSet turns a list of addresses into a lookup set, dropping blanks.
func ipSet(ips []string) map[string]bool {
	result := make(map[string]bool, len(ips))
	for _, ip := range ips {
		for _, part := range strings.Split(ip, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result[part] = true
			}
		}
	}
	return result
}
