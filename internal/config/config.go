// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Engine timeout bounds. Deployments tune the budget to their engine tier;
// anything outside this window is a misconfiguration.
const (
	minEngineTimeout = 60 * time.Second
	maxEngineTimeout = 280 * time.Second
)

// defaultSymbols is the scan universe when SCAN_SYMBOLS is unset.
var defaultSymbols = []string{
	"AAPL", "MSFT", "NVDA", "AMD", "GOOGL", "META", "AMZN", "TSLA", "SPY", "QQQ",
}

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Analysis engine
	EnginePath       string        // engine executable (e.g. node)
	EngineArgs       []string      // base arguments (e.g. the entry script)
	EngineModulePath string        // NODE_PATH override for module resolution
	EngineTimeout    time.Duration // wall-clock budget per invocation
	SymbolUniverse   []string      // symbols passed to the engine on stdin
	FallbackDataPath string        // optional on-disk override of the bundled dataset

	// Snapshot refresh
	CacheRefreshEnabled  bool
	CacheRefreshSchedule string // cron expression (with seconds field)

	// Snapshot archiving (optional)
	Archive ArchiveConfig
}

// ArchiveConfig holds the optional S3/R2 snapshot archive settings.
// Archiving is enabled only when a bucket is configured.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
	PathStyle       bool
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SCAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8030),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EnginePath:       getEnv("ENGINE_PATH", "node"),
		EngineArgs:       splitList(getEnv("ENGINE_ARGS", "scripts/enhanced-scan.js")),
		EngineModulePath: getEnv("ENGINE_MODULE_PATH", ""),
		EngineTimeout:    time.Duration(getEnvAsInt("ENGINE_TIMEOUT_SECONDS", 120)) * time.Second,
		SymbolUniverse:   symbolUniverse(),
		FallbackDataPath: getEnv("FALLBACK_DATA_PATH", ""),

		CacheRefreshEnabled:  getEnvAsBool("CACHE_REFRESH_ENABLED", true),
		CacheRefreshSchedule: getEnv("CACHE_REFRESH_SCHEDULE", "0 */10 * * * *"),

		Archive: ArchiveConfig{
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			KeyPrefix:       getEnv("ARCHIVE_KEY_PREFIX", "scans"),
			PathStyle:       getEnvAsBool("ARCHIVE_PATH_STYLE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.EnginePath == "" {
		return fmt.Errorf("ENGINE_PATH must not be empty")
	}
	if c.EngineTimeout < minEngineTimeout || c.EngineTimeout > maxEngineTimeout {
		return fmt.Errorf("ENGINE_TIMEOUT_SECONDS must be between %d and %d, got %d",
			int(minEngineTimeout.Seconds()), int(maxEngineTimeout.Seconds()), int(c.EngineTimeout.Seconds()))
	}
	if len(c.SymbolUniverse) == 0 {
		return fmt.Errorf("SCAN_SYMBOLS must not be empty")
	}
	return nil
}

func symbolUniverse() []string {
	raw := getEnv("SCAN_SYMBOLS", "")
	if raw == "" {
		return append([]string{}, defaultSymbols...)
	}

	symbols := splitList(raw)
	for i, s := range symbols {
		symbols[i] = strings.ToUpper(s)
	}
	return symbols
}

// splitList splits a comma-separated env value, trimming whitespace and
// dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions
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
