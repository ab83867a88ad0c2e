package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// TestMain isolates tests from any .vibe/config.yaml above the working
// directory and from the user's config dir.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "vibe-config-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	oldWD, _ := os.Getwd()
	_ = os.Chdir(tmp)
	_ = os.Setenv("HOME", tmp)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg-config"))
	for _, env := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_OWNER", "GITHUB_REPO",
		"VIBE_GITHUB_TOKEN", "VIBE_GITHUB_OWNER", "VIBE_GITHUB_REPO", "VIBE_LOG_LEVEL"} {
		_ = os.Unsetenv(env)
	}
	ResetForTesting()

	code := m.Run()

	ResetForTesting()
	_ = os.Chdir(oldWD)
	_ = os.RemoveAll(tmp)
	os.Exit(code)
}
