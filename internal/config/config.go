package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	AppConfig
	RefreshConfig
	StorageConfig
}

// AppConfig identifies the client application towards the identity backend.
type AppConfig interface {
	GetAppName() string
	GetAPIKey() string
	GetProjectID() string
	GetTenantID() string
	GetLanguageCode() string
	GetEmulatorHost() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Refresh
	Storage
}

// New loads the configuration from the process environment.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] failed to parse environment: %w", err)
	}
	return c, nil
}

// MustNew is New for program startup, panicking on failure.
func MustNew() Config {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// RefreshConfig controls the background token refresh.
type RefreshConfig interface {
	GetAutoRefresh() bool
	GetRefreshLeeway() time.Duration
	GetRequestTimeout() time.Duration
}

type Refresh struct {
	AutoRefresh    bool          `env:"AUTH_AUTO_REFRESH" envDefault:"true"`
	RequestTimeout time.Duration `env:"AUTH_REQUEST_TIMEOUT" envDefault:"30s"`
}

var _ RefreshConfig = Refresh{}

func (r Refresh) GetAutoRefresh() bool {
	return r.AutoRefresh
}

// GetRefreshLeeway is how long before expiry a token is considered due.
func (Refresh) GetRefreshLeeway() time.Duration {
	return 5 * time.Minute
}

func (r Refresh) GetRequestTimeout() time.Duration {
	return r.RequestTimeout
}
