// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Queue    QueueConfig
	Zoom     ZoomConfig
	Cutter   CutterConfig
	Store    StoreConfig
	Purge    PurgeConfig
}

// DatabaseConfig holds the SQLite path.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds the health endpoint address.
type ServerConfig struct {
	HealthAddr string
}

// QueueConfig holds worker and queue tuning.
type QueueConfig struct {
	Workers             int
	FetchConcurrency    int
	BatchConcurrency    int
	FetchAttempts       int
	BatchAttempts       int
	BatchDelay          time.Duration
	PromoteInterval     time.Duration
	StaleAfter          time.Duration
	PurgeCompletedAfter time.Duration
}

// ZoomConfig holds the planner constants.
type ZoomConfig struct {
	GlobalMinZoom  int
	GlobalMaxZoom  int
	FirstBatchSpan int
}

// CutterConfig holds the external tile cutter settings.
type CutterConfig struct {
	Binary        string
	WorkDir       string
	OptimizeTiles bool
	KeepWorkDirs  bool
}

// StoreConfig holds the object store credentials and endpoints.
type StoreConfig struct {
	AuthURL      string
	User         string
	Key          string
	BucketPrefix string
	Timeout      time.Duration
}

// PurgeConfig holds the cache invalidation trigger settings.
type PurgeConfig struct {
	Endpoint string
	Prefix   string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "tiler.db"),
		},
		Server: ServerConfig{
			HealthAddr: getEnv("HEALTH_ADDR", ":8085"),
		},
		Queue: QueueConfig{
			Workers:             getEnvAsInt("WORKERS", 0), // 0 = CPU count
			FetchConcurrency:    getEnvAsInt("FETCH_CONCURRENCY", 2),
			BatchConcurrency:    getEnvAsInt("BATCH_CONCURRENCY", 2),
			FetchAttempts:       getEnvAsInt("FETCH_ATTEMPTS", 3),
			BatchAttempts:       getEnvAsInt("BATCH_ATTEMPTS", 3),
			BatchDelay:          getEnvAsDuration("BATCH_DELAY", time.Minute),
			PromoteInterval:     getEnvAsDuration("PROMOTE_INTERVAL", 5*time.Second),
			StaleAfter:          getEnvAsDuration("STALE_AFTER", 10*time.Minute),
			PurgeCompletedAfter: getEnvAsDuration("PURGE_COMPLETED_AFTER", 7*24*time.Hour),
		},
		Zoom: ZoomConfig{
			GlobalMinZoom:  getEnvAsInt("GLOBAL_MIN_ZOOM", 0),
			GlobalMaxZoom:  getEnvAsInt("GLOBAL_MAX_ZOOM", 9),
			FirstBatchSpan: getEnvAsInt("FIRST_BATCH_SPAN", 3),
		},
		Cutter: CutterConfig{
			Binary:        getEnv("CUTTER_BIN", "tilecutter"),
			WorkDir:       getEnv("WORK_DIR", os.TempDir()),
			OptimizeTiles: getEnvAsBool("OPTIMIZE_TILES", false),
			KeepWorkDirs:  getEnvAsBool("KEEP_WORK_DIRS", false),
		},
		Store: StoreConfig{
			AuthURL:      getEnv("STORE_AUTH_URL", ""),
			User:         getEnv("STORE_USER", ""),
			Key:          getEnv("STORE_KEY", ""),
			BucketPrefix: getEnv("STORE_BUCKET_PREFIX", "tiles"),
			Timeout:      getEnvAsDuration("STORE_TIMEOUT", 2*time.Minute),
		},
		Purge: PurgeConfig{
			Endpoint: getEnv("PURGE_ENDPOINT", ""),
			Prefix:   getEnv("PURGE_PREFIX", "tiles"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
