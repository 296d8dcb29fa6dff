package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// GatewayConfig holds process-level settings read from the environment.
type GatewayConfig struct {
	Addr          string `env:"GATEWAY_ADDR,default=:8080"`
	RoutesFile    string `env:"GATEWAY_ROUTES_FILE,default=config/routes.yaml"`
	RoutesSection string `env:"GATEWAY_ROUTES_SECTION,default=ScatterGather"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// Downstream defaults applied to every per-key client.
	DownstreamTimeout time.Duration `env:"GATEWAY_DOWNSTREAM_TIMEOUT,default=30s"`
	MaxIdleConns      int           `env:"GATEWAY_MAX_IDLE_CONNS,default=100"`

	// Shared response cache. Empty RedisAddr selects the in-memory cache.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	// Inbound protection. RateLimitRPS of 0 disables the limiter.
	RateLimitRPS   int      `env:"GATEWAY_RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int      `env:"GATEWAY_RATE_LIMIT_BURST,default=20"`
	CORSOrigins    []string `env:"GATEWAY_CORS_ORIGINS"`

	ReadHeaderTimeout time.Duration `env:"GATEWAY_READ_HEADER_TIMEOUT,default=10s"`
	ShutdownTimeout   time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT,default=15s"`
}

// LoadGatewayConfig loads .env files that exist, then decodes the environment.
func LoadGatewayConfig(envFiles ...string) (*GatewayConfig, error) {
	for _, file := range envFiles {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load env (%s): %w", file, err)
		}
	}

	var cfg GatewayConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe fallback.
func (c *GatewayConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("GATEWAY_ADDR is required")
	}
	if c.DownstreamTimeout < 0 {
		return fmt.Errorf("GATEWAY_DOWNSTREAM_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst == 0 {
		return fmt.Errorf("GATEWAY_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}
