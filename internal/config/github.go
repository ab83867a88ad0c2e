package config

import (
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

// Credentials are the GitHub settings a sync run needs.
type Credentials struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Token      string `yaml:"-"`
	APIURL     string `yaml:"api_url,omitempty"`
	GraphQLURL string `yaml:"graphql_url,omitempty"`
}

// TokenSource finds a token when none is configured.
type TokenSource interface {
	DiscoverToken() string
}

// LoadCredentials reads github.* settings. A missing token is looked up
// through src (nil uses the environment and the gh CLI). github.repo may be
// a full remote ("owner/repo", an HTTPS URL or an SSH remote), in which case
// it also supplies the owner.
func LoadCredentials(src TokenSource) Credentials {
	c := Credentials{
		Owner:      strings.TrimSpace(GetString("github.owner")),
		Repo:       strings.TrimSpace(GetString("github.repo")),
		Token:      strings.TrimSpace(GetString("github.token")),
		APIURL:     strings.TrimSpace(GetString("github.api_url")),
		GraphQLURL: strings.TrimSpace(GetString("github.graphql_url")),
	}
	if strings.ContainsAny(c.Repo, "/:") {
		if owner, repo, err := github.ParseRemote(c.Repo); err == nil {
			if c.Owner == "" {
				c.Owner = owner
			}
			c.Repo = repo
		}
	}
	if c.Token == "" {
		if src == nil {
			src = github.NewTokenDiscoverer()
		}
		c.Token = src.DiscoverToken()
	}
	return c
}

// WithRepo returns c with owner/repo replaced when the arguments are set.
func (c Credentials) WithRepo(owner, repo string) Credentials {
	if owner != "" {
		c.Owner = owner
	}
	if repo != "" {
		c.Repo = repo
	}
	return c
}

// Validate reports the first missing setting as a ConfigurationError.
func (c Credentials) Validate() error {
	switch {
	case c.Token == "":
		return &syncerr.ConfigurationError{Field: "github.token", Reason: "no GitHub token: set VIBE_GITHUB_TOKEN or GITHUB_TOKEN, or run `gh auth login`"}
	case c.Owner == "":
		return &syncerr.ConfigurationError{Field: "github.owner", Reason: "repository owner is not configured"}
	case c.Repo == "":
		return &syncerr.ConfigurationError{Field: "github.repo", Reason: "repository name is not configured"}
	}
	return nil
}

// NewClient builds a GitHub client from the credentials.
func (c Credentials) NewClient() *github.Client {
	client := github.NewClient(c.Token)
	if c.APIURL != "" {
		client = client.WithBaseURL(c.APIURL)
	}
	if c.GraphQLURL != "" {
		client = client.WithGraphQLURL(c.GraphQLURL)
	}
	return client
}

// MaskedToken returns the token in display form.
func (c Credentials) MaskedToken() string {
	return github.MaskToken(c.Token)
}
