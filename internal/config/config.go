package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	// Upstream billing/account backends the engine mirrors from.
	BillingBackendURL string
	AccountBackendURL string
	UpstreamTimeout   time.Duration

	// Wallet gateway credentials, keyed by provider code.
	Gateways map[string]GatewayConfig

	SweepInterval time.Duration
}

// GatewayConfig configures a single wallet/e-money gateway.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "aquabill"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "aquabill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		BillingBackendURL: strings.TrimRight(getenv("BILLING_BACKEND_URL", "http://localhost:9080"), "/"),
		AccountBackendURL: strings.TrimRight(getenv("ACCOUNT_BACKEND_URL", "http://localhost:9081"), "/"),
		UpstreamTimeout:   getenvDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		SweepInterval: getenvDuration("RECONCILE_SWEEP_INTERVAL", time.Minute),
	}

	cfg.Gateways = loadGateways()

	return cfg
}

func loadGateways() map[string]GatewayConfig {
	gateways := map[string]GatewayConfig{}
	for _, provider := range parseProviders(getenv("PAYMENT_PROVIDERS", "gcash,maya")) {
		upper := strings.ToUpper(provider)
		gateways[provider] = GatewayConfig{
			BaseURL: strings.TrimRight(getenv("GATEWAY_"+upper+"_URL", ""), "/"),
			APIKey:  strings.TrimSpace(getenv("GATEWAY_"+upper+"_API_KEY", "")),
		}
	}
	return gateways
}

func parseProviders(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
