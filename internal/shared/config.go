package shared

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	MetricsAddr   string
	MySQLDSN      string
	RedisAddr     string
	RedisDB       int
	RedisPass     string
	FeedbackBase  string
	TokenFile     string
	SyncPageSize  int
	SyncInterval  time.Duration
	ReplyWorkers  int
	SubmitTimeout time.Duration
	CacheTTL      time.Duration
}

const tokenEnv = "FEEDBACKS_TOKEN"

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:        env("APP_ENV", "prod"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		MetricsAddr:   env("METRICS_ADDR", ":9100"),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPass:     env("REDIS_PASSWORD", ""),
		RedisDB:       atoi("REDIS_DB", 0),
		FeedbackBase:  env("FEEDBACKS_BASE_URL", "https://feedbacks-api.wildberries.ru/api/v1"),
		TokenFile:     env("FEEDBACKS_TOKEN_FILE", ""),
		SyncPageSize:  atoi("SYNC_PAGE_SIZE", 100),
		SyncInterval:  time.Duration(atoi("SYNC_INTERVAL_SECONDS", 0)) * time.Second,
		ReplyWorkers:  atoi("REPLY_WORKERS", 8),
		SubmitTimeout: time.Duration(atoi("SUBMIT_TIMEOUT_SECONDS", 15)) * time.Second,
		CacheTTL:      time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,
	}
	if os.Getenv(tokenEnv) == "" && c.TokenFile == "" {
		log.Warn().Msg("no feedbacks API token configured (FEEDBACKS_TOKEN / FEEDBACKS_TOKEN_FILE)")
	}
	return c
}

// FeedbackToken resolves the marketplace bearer token at call time, so a
// rotated secret is picked up without a restart and never sits in the binary.
// A token file takes precedence over the environment variable.
func (c Config) FeedbackToken() (string, error) {
	if c.TokenFile != "" {
		b, err := os.ReadFile(c.TokenFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	if v := os.Getenv(tokenEnv); v != "" {
		return v, nil
	}
	return "", errors.New("feedbacks API token is not configured")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
