// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Store    StoreConfig
	Server   ServerConfig
	Auth     AuthConfig
	Tracking TrackingConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// EnvFile is the .env file that was loaded. Watched for log level changes.
	EnvFile string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk storage location.
type DataConfig struct {
	BasePath string
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend string // badger or sqlite (default: badger)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	AllowedOrigins []string      // CORS origins (default: chrome-extension://*)
}

// AuthConfig holds page token configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for page tokens (32 bytes)
	PageTokenKey      []byte
	PageTokenDuration time.Duration // e.g., 24h
}

// TrackingConfig holds the timing parameters of page observers.
type TrackingConfig struct {
	TickInterval    time.Duration // accumulation tick (default: 1s)
	MaxDelta        time.Duration // exclusive upper bound of a committed delta (default: 10s)
	SearchInterval  time.Duration // player search poll (default: 100ms)
	SearchTimeout   time.Duration // search gives up after (default: 10s)
	SettleDelay     time.Duration // re-init delay after navigation (default: 500ms)
	RefreshInterval time.Duration // display refresh while milliseconds are shown (default: 50ms)
	PageIdleTimeout time.Duration // pages silent for longer are detached (default: 2m)
	PageEventRate   int           // events per second per page (default: 200)
	PageEventBurst  int           // burst per page (default: 400)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load is LoadConfig over an explicit flag set and argument list.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for persistent data")
	storeBackend := fs.String("store-backend", "", "Key-value backend (badger, sqlite)")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	allowedOrigins := fs.String("allowed-origins", "", "Comma separated CORS origins")

	// Auth flags
	pageTokenDuration := fs.String("page-token-duration", "", "Page token lifetime (e.g., 24h)")

	// Tracking flags
	tickInterval := fs.String("tick-interval", "", "Watch-time tick interval (default: 1s)")
	maxDelta := fs.String("max-delta", "", "Largest accepted watch-time delta, exclusive (default: 10s)")
	searchInterval := fs.String("search-interval", "", "Player search poll interval (default: 100ms)")
	searchTimeout := fs.String("search-timeout", "", "Player search timeout (default: 10s)")
	settleDelay := fs.String("settle-delay", "", "Delay before re-binding after navigation (default: 500ms)")
	refreshInterval := fs.String("refresh-interval", "", "Display refresh interval (default: 50ms)")
	pageIdleTimeout := fs.String("page-idle-timeout", "", "Detach pages idle for longer (default: 2m)")
	pageEventRate := fs.String("page-event-rate", "", "Page events per second (default: 200)")
	pageEventBurst := fs.String("page-event-burst", "", "Page event burst (default: 400)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			EnvFile:     *envFile,
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getConfigValue(*storeBackend, "STORE_BACKEND", BackendBadger)),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue(*allowedOrigins, "ALLOWED_ORIGINS", "chrome-extension://*")),
		},
		Auth: AuthConfig{
			PageTokenKey: nil, // Will be set by auth.LoadOrGenerateKey in main
		},
		Tracking: TrackingConfig{
			PageEventRate:  getIntConfigValue(*pageEventRate, "PAGE_EVENT_RATE", 200),
			PageEventBurst: getIntConfigValue(*pageEventBurst, "PAGE_EVENT_BURST", 400),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dest      *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*pageTokenDuration, "PAGE_TOKEN_DURATION", "24h", &cfg.Auth.PageTokenDuration},
		{*tickInterval, "TICK_INTERVAL", "1s", &cfg.Tracking.TickInterval},
		{*maxDelta, "MAX_DELTA", "10s", &cfg.Tracking.MaxDelta},
		{*searchInterval, "SEARCH_INTERVAL", "100ms", &cfg.Tracking.SearchInterval},
		{*searchTimeout, "SEARCH_TIMEOUT", "10s", &cfg.Tracking.SearchTimeout},
		{*settleDelay, "SETTLE_DELAY", "500ms", &cfg.Tracking.SettleDelay},
		{*refreshInterval, "REFRESH_INTERVAL", "50ms", &cfg.Tracking.RefreshInterval},
		{*pageIdleTimeout, "PAGE_IDLE_TIMEOUT", "2m", &cfg.Tracking.PageIdleTimeout},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dest = parsed
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	switch c.Store.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend: %s (must be badger or sqlite)", c.Store.Backend)
	}

	positive := map[string]time.Duration{
		"PAGE_TOKEN_DURATION": c.Auth.PageTokenDuration,
		"TICK_INTERVAL":       c.Tracking.TickInterval,
		"MAX_DELTA":           c.Tracking.MaxDelta,
		"SEARCH_INTERVAL":     c.Tracking.SearchInterval,
		"SEARCH_TIMEOUT":      c.Tracking.SearchTimeout,
		"SETTLE_DELAY":        c.Tracking.SettleDelay,
		"REFRESH_INTERVAL":    c.Tracking.RefreshInterval,
		"PAGE_IDLE_TIMEOUT":   c.Tracking.PageIdleTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Tracking.MaxDelta > domain.MaxDelta {
		return fmt.Errorf("MAX_DELTA must not exceed %s, got %s", domain.MaxDelta, c.Tracking.MaxDelta)
	}

	if c.Tracking.PageEventRate <= 0 || c.Tracking.PageEventBurst <= 0 {
		return errors.New("PAGE_EVENT_RATE and PAGE_EVENT_BURST must be positive")
	}

	// Page token key is set by auth.LoadOrGenerateKey in main.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/.mstimer.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, ".mstimer")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// StorePath returns the directory (badger) or file (sqlite) of the selected backend.
func (c *Config) StorePath() string {
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(c.Data.BasePath, "mstimer.db")
	}
	return filepath.Join(c.Data.BasePath, "badger")
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ReadEnvFile parses a .env file without touching the process environment.
// Format: KEY=value (one per line, # for comments).
func ReadEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		// Remove quotes if present.
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}

	return values, scanner.Err()
}

// loadEnvFile loads environment variables from a .env file.
func loadEnvFile(path string) error {
	values, err := ReadEnvFile(path)
	if err != nil {
		return err
	}
	for key, value := range values {
		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return nil
}
