package github

import (
	"fmt"
	"strings"
	"time"
)

// ParseRemote extracts owner and repo from "owner/repo", an HTTPS or HTTP
// github.com URL, or an SSH remote.
//
// Examples:
//   - octo/widgets
//   - https://github.com/octo/widgets.git
//   - git@github.com:octo/widgets.git
func ParseRemote(remote string) (owner, repo string, err error) {
	remote = strings.TrimSpace(remote)
	path := remote

	switch {
	case strings.HasPrefix(remote, "git@github.com:"):
		path = strings.TrimPrefix(remote, "git@github.com:")
	case strings.HasPrefix(remote, "https://"), strings.HasPrefix(remote, "http://"):
		rest := remote[strings.Index(remote, "://")+3:]
		// Drop credentials embedded in the URL
		if atIdx := strings.Index(rest, "@"); atIdx != -1 {
			rest = rest[atIdx+1:]
		}
		if !strings.HasPrefix(rest, "github.com/") {
			return "", "", fmt.Errorf("not a GitHub URL: %s", remote)
		}
		path = strings.TrimPrefix(rest, "github.com/")
	case strings.Contains(remote, "://") || strings.Contains(remote, "@"):
		return "", "", fmt.Errorf("not a GitHub URL: %s", remote)
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub repository reference: %s", remote)
	}
	return parts[0], parts[1], nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
