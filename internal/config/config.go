// Package config loads vibe settings from .vibe/config.yaml, VIBE_*
// environment variables and GitHub fallbacks, through a package-level viper
// instance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DirName is the per-project settings directory.
	DirName = ".vibe"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "VIBE"
)

var v *viper.Viper

// Initialize builds the viper instance. configFile overrides discovery;
// otherwise the nearest .vibe/config.yaml walking up from the working
// directory is used, then ~/.config/vibe/config.yaml. A missing file is not
// an error.
func Initialize(configFile string) error {
	v = viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindFallbacks(v); err != nil {
		return err
	}

	path := configFile
	if path == "" {
		path = discoverConfigFile()
	}
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if configFile == "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	for _, k := range Keys {
		if k.Default != "" {
			v.SetDefault(k.Key, k.Default)
		}
	}
}

// bindFallbacks lets the conventional GitHub variables fill in when no
// VIBE_* override is set. The first bound variable that is set wins.
func bindFallbacks(v *viper.Viper) error {
	for key, envs := range map[string][]string{
		"github.token": {"VIBE_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"},
		"github.owner": {"VIBE_GITHUB_OWNER", "GITHUB_OWNER"},
		"github.repo":  {"VIBE_GITHUB_REPO", "GITHUB_REPO"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func discoverConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, DirName, FileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if home, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(home, "vibe", FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize("")
	}
	return v
}

// ResetForTesting drops the viper instance so the next access re-initializes.
func ResetForTesting() { v = nil }

// ConfigFileUsed returns the loaded config file, or "".
func ConfigFileUsed() string { return ensure().ConfigFileUsed() }

// GetString returns a string setting.
func GetString(key string) string { return ensure().GetString(key) }

// GetBool returns a boolean setting.
func GetBool(key string) bool { return ensure().GetBool(key) }

// GetInt returns an integer setting.
func GetInt(key string) int { return ensure().GetInt(key) }

// GetDuration returns a duration setting.
func GetDuration(key string) time.Duration { return ensure().GetDuration(key) }

// Set overrides a setting for this process, typically from a CLI flag.
func Set(key string, value interface{}) { ensure().Set(key, value) }

// AllSettings returns every known key with its effective value. Secret
// values are masked.
func AllSettings() map[string]interface{} {
	out := make(map[string]interface{}, len(Keys))
	for _, k := range Keys {
		val := ensure().Get(k.Key)
		if k.Secret {
			if s, _ := val.(string); s != "" {
				val = "********"
			}
		}
		out[k.Key] = val
	}
	return out
}

// DataDir returns the directory holding the database and lock files.
func DataDir() string {
	if p := GetString("db.path"); p != "" && p != ":memory:" {
		return filepath.Dir(p)
	}
	if cfg := ConfigFileUsed(); cfg != "" {
		return filepath.Dir(cfg)
	}
	return DirName
}

// DBPath returns the SQLite database path.
func DBPath() string {
	if p := GetString("db.path"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "vibe.db")
}
