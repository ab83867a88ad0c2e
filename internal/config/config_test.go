package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

type staticToken string

func (s staticToken) DiscoverToken() string { return string(s) }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DirName, FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	defer ResetForTesting()

	if got := GetString("log.level"); got != "info" {
		t.Errorf("log.level = %q, want info", got)
	}
	if got := GetDuration("sync.lock_timeout"); got != 2*time.Second {
		t.Errorf("sync.lock_timeout = %v, want 2s", got)
	}
	if got := GetInt("log.max_backups"); got != 3 {
		t.Errorf("log.max_backups = %d, want 3", got)
	}
	if GetBool("telemetry.enabled") {
		t.Error("telemetry.enabled should default to false")
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", ConfigFileUsed())
	}
}

func TestConfigFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, "github:\n  owner: octo\n  repo: widgets\nlog:\n  level: debug\n")
	t.Setenv("VIBE_LOG_LEVEL", "warn")

	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer ResetForTesting()

	if got := GetString("github.owner"); got != "octo" {
		t.Errorf("github.owner = %q", got)
	}
	if got := GetString("log.level"); got != "warn" {
		t.Errorf("log.level = %q, want env override warn", got)
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), path)
	}
	if got := DataDir(); got != filepath.Dir(path) {
		t.Errorf("DataDir() = %q", got)
	}
	if got := DBPath(); got != filepath.Join(filepath.Dir(path), "vibe.db") {
		t.Errorf("DBPath() = %q", got)
	}
}

func TestGitHubFallbacks(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	t.Setenv("GITHUB_OWNER", "octo")
	t.Setenv("GITHUB_REPO", "widgets")
	if err := Initialize(""); err != nil {
		t.Fatal(err)
	}
	defer ResetForTesting()

	c := LoadCredentials(staticToken("unused"))
	if c.Token != "ghp_fallback" || c.Owner != "octo" || c.Repo != "widgets" {
		t.Errorf("LoadCredentials() = %+v", c)
	}

	t.Setenv("VIBE_GITHUB_TOKEN", "ghp_vibe")
	if err := Initialize(""); err != nil {
		t.Fatal(err)
	}
	if got := LoadCredentials(nil).Token; got != "ghp_vibe" {
		t.Errorf("VIBE_GITHUB_TOKEN should win, got %q", got)
	}
}

func TestLoadCredentialsDiscoversToken(t *testing.T) {
	path := writeConfig(t, "github:\n  repo: https://github.com/octo/widgets.git\n")
	if err := Initialize(path); err != nil {
		t.Fatal(err)
	}
	defer ResetForTesting()

	c := LoadCredentials(staticToken("gho_from_cli"))
	if c.Token != "gho_from_cli" {
		t.Errorf("Token = %q", c.Token)
	}
	if c.Owner != "octo" || c.Repo != "widgets" {
		t.Errorf("owner/repo = %s/%s", c.Owner, c.Repo)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"missing token", Credentials{Owner: "o", Repo: "r"}, "github.token"},
		{"missing owner", Credentials{Token: "t", Repo: "r"}, "github.owner"},
		{"missing repo", Credentials{Token: "t", Owner: "o"}, "github.repo"},
		{"complete", Credentials{Token: "t", Owner: "o", Repo: "r"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			ce, ok := err.(*syncerr.ConfigurationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ConfigurationError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestWithRepo(t *testing.T) {
	c := Credentials{Owner: "a", Repo: "b"}.WithRepo("", "c")
	if c.Owner != "a" || c.Repo != "c" {
		t.Errorf("WithRepo() = %+v", c)
	}
}

func TestAllSettingsMasksSecrets(t *testing.T) {
	t.Setenv("VIBE_GITHUB_TOKEN", "ghp_secret")
	if err := Initialize(""); err != nil {
		t.Fatal(err)
	}
	defer ResetForTesting()

	all := AllSettings()
	if all["github.token"] != "********" {
		t.Errorf("github.token = %v, want masked", all["github.token"])
	}
	if all["log.level"] != "info" {
		t.Errorf("log.level = %v", all["log.level"])
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"log.level", "debug", false},
		{"log.level", "loud", true},
		{"sync.lock_timeout", "500ms", false},
		{"sync.lock_timeout", "soon", true},
		{"github.api_url", "https://ghe.example.com/api/v3", false},
		{"github.api_url", "ghe", true},
		{"telemetry.enabled", "yes", false},
		{"no.such.key", "x", true},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateKey(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}
	if !IsKnownKey("github.owner") || IsKnownKey("github.org") {
		t.Error("IsKnownKey mismatch")
	}
}
