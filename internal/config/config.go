package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL       string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	ServiceName       string

	// Dokploy platform API.
	DokployAPIBase    string
	DokployAPIKey     string
	DokployMaxRetries int
	DokployRetryDelay int // seconds, base delay before the first retry
	DokployBackoff    float64
	DokployDelayCap   int // seconds

	// Tenant defaults.
	RootDomain      string
	BackendRepo     string
	FrontendRepo    string
	GitBranch       string
	PostgresImage   string
	DeploySettleSec int

	// Token presented to the tenant backend's internal provisioning endpoint.
	ProvisionCallbackToken string

	// Resume sweeper.
	SweepIntervalMin int
	StaleAfterMin    int
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", "provisioner-api"),

		DokployAPIBase:    getEnv("DOKPLOY_API", "https://dokploy.thevista.one/api"),
		DokployAPIKey:     getEnv("DOKPLOY_TOKEN", ""),
		DokployMaxRetries: getEnvInt("DOKPLOY_MAX_RETRIES", 5),
		DokployRetryDelay: getEnvInt("DOKPLOY_RETRY_DELAY", 3),
		DokployBackoff:    getEnvFloat("DOKPLOY_BACKOFF_FACTOR", 2.0),
		DokployDelayCap:   getEnvInt("DOKPLOY_MAX_RETRY_DELAY_CAP", 60),

		RootDomain:      getEnv("TENANT_ROOT_DOMAIN", "traefik.me"),
		BackendRepo:     getEnv("BACKEND_REPO", "https://github.com/vista/schoolcare-backend.git"),
		FrontendRepo:    getEnv("FRONTEND_REPO", "https://github.com/vista/schoolcare-frontend.git"),
		GitBranch:       getEnv("GIT_BRANCH", "main"),
		PostgresImage:   getEnv("POSTGRES_IMAGE", "postgres:15"),
		DeploySettleSec: getEnvInt("DEPLOY_SETTLE_SECONDS", 90),

		ProvisionCallbackToken: getEnv("PROVISION_CALLBACK_TOKEN", ""),

		SweepIntervalMin: getEnvInt("SWEEP_INTERVAL_MINUTES", 2),
		StaleAfterMin:    getEnvInt("STALE_AFTER_MINUTES", 15),
	}

	return cfg, nil
}

// Validate checks that the fields required by the given component are present.
func (c *Config) Validate(component string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL is required", component)
	}
	if c.DokployAPIKey == "" {
		return fmt.Errorf("%s: DOKPLOY_TOKEN is required", component)
	}
	if c.RootDomain == "" {
		return fmt.Errorf("%s: TENANT_ROOT_DOMAIN is required", component)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
