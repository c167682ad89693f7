// Package config loads ledger settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"personal-ledger/balance"
	"personal-ledger/cache"
	"personal-ledger/events"
	"personal-ledger/uow"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	Store         string
	DBPath        string
	RedisURL      string
	Cache         cache.Options
	Dispatch      events.DispatchOptions
	MaxPasses     int
	MissingPolicy balance.MissingAccountPolicy
	CommitRetries int
	LogLevel      log.Level
}

// Load reads the given .env files (".env" when none are named) and then the
// environment. A missing .env file is not an error; a malformed value is.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.WithField("file", f).Debug("no env file found, relying on system env vars")
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	p := parser{}
	cfg := Config{
		Store:    strings.ToLower(getEnv("LEDGER_STORE", StoreSQLite)),
		DBPath:   getEnv("LEDGER_DB_PATH", "ledger.db"),
		RedisURL: getEnv("LEDGER_REDIS_URL", ""),
		Cache: cache.Options{
			VersionTTL: p.duration("LEDGER_CACHE_VERSION_TTL", cache.DefaultVersionTTL),
			PageTTL:    p.duration("LEDGER_CACHE_PAGE_TTL", cache.DefaultPageTTL),
			EntityTTL:  p.duration("LEDGER_CACHE_ENTITY_TTL", cache.DefaultEntityTTL),
		},
		Dispatch: events.DispatchOptions{
			MaxParallelism: p.integer("LEDGER_DISPATCH_PARALLELISM", 0),
			BatchSize:      p.integer("LEDGER_DISPATCH_BATCH_SIZE", 0),
		},
		MaxPasses:     p.integer("LEDGER_DISPATCH_MAX_PASSES", uow.DefaultMaxPasses),
		CommitRetries: p.integer("LEDGER_COMMIT_RETRIES", 3),
	}

	if cfg.Store != StoreSQLite && cfg.Store != StoreMemory {
		p.fail("LEDGER_STORE", fmt.Errorf("unknown store %q", cfg.Store))
	}
	policy, err := balance.ParseMissingAccountPolicy(getEnv("LEDGER_MISSING_ACCOUNT_POLICY", "skip"))
	if err != nil {
		p.fail("LEDGER_MISSING_ACCOUNT_POLICY", err)
	}
	cfg.MissingPolicy = policy

	level := getEnv("LEDGER_LOG_LEVEL", "info")
	if debug, _ := strconv.ParseBool(os.Getenv("DEBUG")); debug {
		level = "debug"
	}
	if cfg.LogLevel, err = log.ParseLevel(level); err != nil {
		p.fail("LEDGER_LOG_LEVEL", err)
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

type parser struct {
	errs []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key, fmt.Errorf("want a positive duration, got %q", raw))
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.fail(key, fmt.Errorf("want a non-negative integer, got %q", raw))
		return fallback
	}
	return n
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
