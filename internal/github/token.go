package github

import (
	"os"
	"os/exec"
	"strings"
)

// EnvGetter is a function type for getting environment variables.
// This allows mocking os.Getenv in tests.
type EnvGetter func(key string) string

// CommandRunner is a function type for running shell commands.
// This allows mocking exec.Command in tests.
type CommandRunner func(name string, args ...string) ([]byte, error)

// TokenDiscoverer finds a GitHub token when none is configured explicitly.
type TokenDiscoverer struct {
	getEnv     EnvGetter
	runCommand CommandRunner
}

// NewTokenDiscoverer creates a TokenDiscoverer backed by the process
// environment and the gh CLI.
func NewTokenDiscoverer() *TokenDiscoverer {
	return &TokenDiscoverer{
		getEnv:     os.Getenv,
		runCommand: defaultCommandRunner,
	}
}

// NewTokenDiscovererWithMocks creates a TokenDiscoverer with custom implementations.
func NewTokenDiscovererWithMocks(getEnv EnvGetter, runCommand CommandRunner) *TokenDiscoverer {
	return &TokenDiscoverer{getEnv: getEnv, runCommand: runCommand}
}

func defaultCommandRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// DiscoverToken returns the first token found in:
//  1. GITHUB_TOKEN
//  2. GH_TOKEN
//  3. `gh auth token`
//
// An empty result is not an error; the caller reports the missing credential.
func (d *TokenDiscoverer) DiscoverToken() string {
	if token := strings.TrimSpace(d.getEnv("GITHUB_TOKEN")); token != "" {
		return token
	}
	if token := strings.TrimSpace(d.getEnv("GH_TOKEN")); token != "" {
		return token
	}
	output, err := d.runCommand("gh", "auth", "token")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// MaskToken returns a display form of token that keeps only its edges.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
