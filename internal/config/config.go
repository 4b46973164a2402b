package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
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
	DBPath            string
	DBAutoMigrate     bool
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CatalogCacheTTL time.Duration

	// PolicyPaths are searched in order for pool.yml.
	PolicyPaths []string

	RateLimit RateLimitConfig
	Refresh   RefreshConfig
}

// RateLimitConfig bounds entitlement traffic. It needs redis.
type RateLimitConfig struct {
	Enabled      bool
	EntitleRate  float64
	EntitleBurst int
	PoolLockTTL  time.Duration
}

// RefreshConfig drives the periodic subscription refresh. A zero interval
// disables it.
type RefreshConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "entitlepool"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "entitlepool"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "entitlepool.db"),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		CatalogCacheTTL:   getenvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		PolicyPaths:       parseList(getenv("POLICY_PATHS", "/etc/entitlepool,.")),
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			EntitleRate:  getenvFloat("RATE_LIMIT_ENTITLE_RATE", 5),
			EntitleBurst: getenvInt("RATE_LIMIT_ENTITLE_BURST", 20),
			PoolLockTTL:  getenvDuration("RATE_LIMIT_POOL_LOCK_TTL", 5*time.Second),
		},
		Refresh: RefreshConfig{
			Interval:  getenvDuration("REFRESH_INTERVAL", 0),
			BatchSize: getenvInt("REFRESH_BATCH_SIZE", 50),
			LockTTL:   getenvDuration("REFRESH_LOCK_TTL", 5*time.Minute),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
