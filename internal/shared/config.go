package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	MarkerBackendRedis = "redis"
	MarkerBackendMySQL = "mysql"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	AnyplaceBase string
	Campus       string
	AnyplaceRPS  int
	MaxInFlight  int

	RedisAddr string
	RedisDB   int
	RedisPass string

	MySQLDSN      string
	MarkerBackend string
	MarkerPurge   time.Duration

	GoogleRevokeURL string

	CacheTTL       time.Duration
	Debounce       time.Duration
	RequestTimeout time.Duration
	ViewerIdleTTL  time.Duration
}

// Load reads the process environment, after an optional .env file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		AnyplaceBase: env("ANYPLACE_BASE_URL", "https://ap.cs.ucy.ac.cy:44"),
		Campus:       env("ANYPLACE_CAMPUS", "ucy"),
		AnyplaceRPS:  atoi("ANYPLACE_RPS", 10),
		MaxInFlight:  atoi("ANYPLACE_MAX_IN_FLIGHT", 16),

		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		RedisDB:   atoi("REDIS_DB", 0),
		RedisPass: env("REDIS_PASSWORD", ""),

		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/anyplace?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		MarkerBackend: env("MARKER_BACKEND", MarkerBackendRedis),
		MarkerPurge:   time.Duration(atoi("MARKER_PURGE_SECONDS", 3600)) * time.Second,

		GoogleRevokeURL: env("GOOGLE_REVOKE_URL", "https://oauth2.googleapis.com/revoke"),

		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		Debounce:       time.Duration(atoi("SEARCH_DEBOUNCE_MS", 1000)) * time.Millisecond,
		RequestTimeout: time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		ViewerIdleTTL:  time.Duration(atoi("VIEWER_IDLE_TTL_SECONDS", 1800)) * time.Second,
	}
	if c.MarkerBackend != MarkerBackendRedis && c.MarkerBackend != MarkerBackendMySQL {
		log.Warn().Str("marker_backend", c.MarkerBackend).Msg("unknown MARKER_BACKEND, using redis")
		c.MarkerBackend = MarkerBackendRedis
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
