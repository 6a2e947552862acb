package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config keeps the runtime configuration for the service. Values come from
// the environment, with an optional .env file loaded first.
type Config struct {
	Env     string `envconfig:"APP_ENV" default:"development"`
	HTTP    HTTPConfig
	Gateway GatewayConfig
	Redis   RedisConfig
	Cache   CacheConfig
	Rabbit  RabbitConfig
	Market  MarketConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"HTTP_PORT" default:"8080"`
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GatewayConfig stores quote/trade gateway connection parameters.
type GatewayConfig struct {
	BaseURL string `envconfig:"GATEWAY_BASE_URL" required:"true"`
	WSURL   string `envconfig:"GATEWAY_WS_URL" required:"true"`
	Token   string `envconfig:"GATEWAY_TOKEN" required:"true"`
}

// RedisConfig stores Redis connection parameters. An empty Addr disables the
// response cache.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// CacheConfig stores response cache behavior.
type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// RabbitConfig stores the optional snapshot fanout settings. An empty URL
// disables publishing.
type RabbitConfig struct {
	URL                string `envconfig:"RABBITMQ_URL"`
	IndicatorsExchange string `envconfig:"RABBITMQ_INDICATORS_EXCHANGE" default:"analytics.indicators"`
	OrdersExchange     string `envconfig:"RABBITMQ_ORDERS_EXCHANGE" default:"analytics.orders"`
}

// MarketConfig stores the analytics and trading parameters.
type MarketConfig struct {
	Universe      []string `envconfig:"UNIVERSE" default:"tsla,nvda,aapl,meta,amd"`
	WindowSize    int      `envconfig:"INDICATOR_WINDOW" default:"50"`
	QuotedPerLeg  int      `envconfig:"CHAIN_QUOTED" default:"6"`
	StrikeBias    int      `envconfig:"CHAIN_BIAS" default:"0"`
	RiskFreeRate  float64  `envconfig:"RISK_FREE_RATE" default:"0.045"`
	LotMultiplier int64    `envconfig:"LOT_MULTIPLIER" default:"100"`
}

// Load builds Config from environment variables. A .env file is read first
// when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}
