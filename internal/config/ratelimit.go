package config

import "time"

// RateLimitConfig controls the fixed-window limiter applied to the
// credential endpoints (register, login, refresh).  Window counters live in
// Redis so the limit holds across instances.
type RateLimitConfig struct {
	Enabled bool
	Limit   int           // requests allowed per window per key
	Window  time.Duration // window length
	Prefix  string        // key namespace in Redis
}

// LoadRateLimitConfig reads the limiter settings from the environment,
// falling back to defaults suited for login endpoints.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: getenv("RATE_LIMIT_ENABLED", "true") == "true",
		Limit:   envInt("RATE_LIMIT_PER_WINDOW", 10),
		Window:  envDur("RATE_LIMIT_WINDOW", time.Minute),
		Prefix:  getenv("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}
