package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Retry policies for listings stuck in the error state.
const (
	// RetryStrand leaves error listings alone until an admin requeues them.
	RetryStrand = "strand"
	// RetryRequeue returns error listings to the active pool when the queue is recycled.
	RetryRequeue = "requeue"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	AdminIDs        []int64
	SourceGroups    []int64
	TargetGroups    []int64
	ForwardInterval time.Duration
	BoostEveryN     int
	TargetDelay     time.Duration
	RefreshPause    time.Duration
	RetryPolicy     string
	StorageDriver   string
	SentryDSN       string
	MongoDBURI      string
	MongoDBDatabase string
	DefaultLanguage string
	MetricsAddr     string
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a variable lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	getEnv := func(key, defaultValue string) string {
		if value, exists := lookup(key); exists {
			return strings.TrimSpace(value)
		}
		return defaultValue
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	adminIDs, err := parseIDList(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	sources, err := parseIDList(getEnv("SOURCE_GROUPS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_GROUPS: %w", err)
	}
	targets, err := parseIDList(getEnv("TARGET_GROUPS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_GROUPS: %w", err)
	}

	intervalSec, err := strconv.Atoi(getEnv("FORWARD_INTERVAL", "60"))
	if err != nil || intervalSec <= 0 {
		return nil, fmt.Errorf("invalid FORWARD_INTERVAL: must be a positive number of seconds")
	}
	boostEvery, err := strconv.Atoi(getEnv("BOOST_EVERY_N", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOOST_EVERY_N: %w", err)
	}
	targetDelay, err := time.ParseDuration(getEnv("TARGET_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_DELAY: %w", err)
	}
	refreshPause, err := time.ParseDuration(getEnv("REFRESH_PAUSE", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_PAUSE: %w", err)
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           debug,
		Version:         getEnv("VERSION", "dev"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminIDs:        adminIDs,
		SourceGroups:    sources,
		TargetGroups:    targets,
		ForwardInterval: time.Duration(intervalSec) * time.Second,
		BoostEveryN:     boostEvery,
		TargetDelay:     targetDelay,
		RefreshPause:    refreshPause,
		RetryPolicy:     strings.ToLower(getEnv("ERROR_RETRY_POLICY", RetryStrand)),
		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageMongo)),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}

	// Basic validation for essential variables
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(cfg.AdminIDs) == 0 {
		log.Println("Warning: ADMIN_IDS is empty, every command will be denied")
	}
	if len(cfg.SourceGroups) == 0 {
		log.Println("Warning: SOURCE_GROUPS is empty, nothing will be ingested")
	}
	if len(cfg.TargetGroups) == 0 {
		log.Println("Warning: TARGET_GROUPS is empty, listings will not be delivered anywhere")
	}
	if cfg.BoostEveryN <= 0 {
		log.Println("Warning: BOOST_EVERY_N <= 0, boost replays are disabled")
	}
	switch cfg.RetryPolicy {
	case RetryStrand, RetryRequeue:
	default:
		return nil, fmt.Errorf("invalid ERROR_RETRY_POLICY %q: want %q or %q", cfg.RetryPolicy, RetryStrand, RetryRequeue)
	}
	switch cfg.StorageDriver {
	case StorageMongo:
		if cfg.MongoDBURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("MONGODB_DATABASE is required")
		}
	case StorageMemory:
		log.Println("Warning: STORAGE_DRIVER=memory, listings are lost on restart")
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

// parseIDList parses a comma-separated list of chat or user ids.
func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
