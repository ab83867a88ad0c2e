package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Key describes one configuration key.
type Key struct {
	Key         string // Full key name (e.g., "github.owner")
	Description string // Human-readable description
	EnvVar      string // Environment override
	Secret      bool   // Masked in `vibe config show`
	Default     string // Default value (empty = no default)
	Validate    func(string) error
}

// Keys lists every setting vibe reads.
var Keys = []Key{
	{Key: "github.token", Description: "GitHub token (falls back to GITHUB_TOKEN, GH_TOKEN, then `gh auth token`)", EnvVar: "VIBE_GITHUB_TOKEN", Secret: true},
	{Key: "github.owner", Description: "Repository owner (falls back to GITHUB_OWNER)", EnvVar: "VIBE_GITHUB_OWNER"},
	{Key: "github.repo", Description: "Repository name (falls back to GITHUB_REPO)", EnvVar: "VIBE_GITHUB_REPO"},
	{Key: "github.api_url", Description: "REST API base URL", EnvVar: "VIBE_GITHUB_API_URL", Validate: validateURL},
	{Key: "github.graphql_url", Description: "GraphQL endpoint", EnvVar: "VIBE_GITHUB_GRAPHQL_URL", Validate: validateURL},
	{Key: "db.path", Description: "SQLite database path", EnvVar: "VIBE_DB_PATH"},
	{Key: "sync.lock_timeout", Description: "How long a sync waits for the roadmap lease", EnvVar: "VIBE_SYNC_LOCK_TIMEOUT", Default: "2s", Validate: validateDuration},
	{Key: "log.level", Description: "Log level", EnvVar: "VIBE_LOG_LEVEL", Default: "info", Validate: validateLogLevel},
	{Key: "log.format", Description: "Log format (text or json)", EnvVar: "VIBE_LOG_FORMAT", Default: "text", Validate: validateLogFormat},
	{Key: "log.file", Description: "Rotated log file; empty logs to stderr", EnvVar: "VIBE_LOG_FILE"},
	{Key: "log.max_size_mb", Description: "Log file size before rotation", EnvVar: "VIBE_LOG_MAX_SIZE_MB", Default: "10"},
	{Key: "log.max_backups", Description: "Rotated log files kept", EnvVar: "VIBE_LOG_MAX_BACKUPS", Default: "3"},
	{Key: "telemetry.enabled", Description: "Record spans and metrics", EnvVar: "VIBE_TELEMETRY_ENABLED", Default: "false", Validate: validateBool},
	{Key: "telemetry.stdout", Description: "Write metrics to stdout", EnvVar: "VIBE_TELEMETRY_STDOUT", Default: "false", Validate: validateBool},
}

var keyMap = func() map[string]*Key {
	m := make(map[string]*Key, len(Keys))
	for i := range Keys {
		m[Keys[i].Key] = &Keys[i]
	}
	return m
}()

// IsKnownKey reports whether key is a recognised setting.
func IsKnownKey(key string) bool {
	return keyMap[key] != nil
}

// LookupKey returns the Key for a name, or nil.
func LookupKey(key string) *Key {
	return keyMap[key]
}

// ValidateKey checks whether key is known and value is acceptable for it.
func ValidateKey(key, value string) error {
	k := keyMap[key]
	if k == nil {
		known := make([]string, 0, len(Keys))
		for _, k := range Keys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateLogFormat(value string) error {
	switch strings.ToLower(value) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("must be text or json, got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

func validateDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration like 2s or 500ms, got %q", value)
	}
	return nil
}

func validateURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL, got %q", value)
	}
	return nil
}
