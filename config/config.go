// Package config loads the storefront-cache binary's settings from the
// environment. Every variable is prefixed with OPTIMIST_, e.g.
// OPTIMIST_PERSIST_STORE=redis.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "OPTIMIST"

type Cache struct {
	StaleTime  time.Duration `default:"5m" envconfig:"STALE_TIME"`
	MaxPending int           `default:"8" envconfig:"MAX_PENDING" validate:"gte=0"`
}

type Persist struct {
	Store     string        `default:"ristretto" envconfig:"STORE" validate:"oneof=none bigcache ristretto redis"`
	Codec     string        `default:"cbor" envconfig:"CODEC" validate:"oneof=cbor json msgpack"`
	GenStore  string        `default:"local" envconfig:"GENSTORE" validate:"oneof=local redis"`
	Namespace string        `default:"storefront" envconfig:"NAMESPACE" validate:"required"`
	TTL       time.Duration `default:"24h" envconfig:"TTL"`
	MaxCostMB int64         `default:"64" envconfig:"MAX_COST_MB" validate:"gt=0"`
}

type Redis struct {
	Addr     string `default:"localhost:6379" envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `default:"0" envconfig:"DB"`
	// Timeout bounds each snapshot command.
	Timeout time.Duration `default:"500ms" envconfig:"TIMEOUT" validate:"gte=0"`
}

type Supabase struct {
	URL    string `envconfig:"URL"`
	Key    string `envconfig:"KEY"`
	Schema string `default:"public" envconfig:"SCHEMA"`
}

type Retry struct {
	Attempts int           `default:"3" envconfig:"ATTEMPTS" validate:"gte=1"`
	Delay    time.Duration `default:"1s" envconfig:"DELAY"`
	MaxDelay time.Duration `envconfig:"MAX_DELAY"` // > Delay => exponential
}

type Breaker struct {
	Enabled      bool          `default:"true" envconfig:"ENABLED"`
	Timeout      time.Duration `default:"30s" envconfig:"TIMEOUT"`
	Interval     time.Duration `default:"60s" envconfig:"INTERVAL"`
	FailureRatio float64       `default:"0.5" envconfig:"FAILURE_RATIO" validate:"gt=0,lte=1"`
	MinRequests  uint32        `default:"5" envconfig:"MIN_REQUESTS"`
}

type Log struct {
	Level       string `default:"info" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"DEVELOPMENT"`
}

type Metrics struct {
	Addr string `envconfig:"ADDR"` // "" => disabled
}

type Config struct {
	Cache    Cache
	Persist  Persist
	Redis    Redis
	Supabase Supabase
	Retry    Retry
	Breaker  Breaker
	Log      Log
	Metrics  Metrics
}

func Load() (Config, error) {
	var c Config

	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// UsesRedis reports whether any component needs the Redis connection.
func (c Config) UsesRedis() bool {
	return c.Persist.Store == "redis" || c.Persist.GenStore == "redis"
}
