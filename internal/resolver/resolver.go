// Package resolver turns a remote project reference into a concrete
// GitHub project by trying ownership namespaces in order.
//
// A reference is either an opaque node id (PVT_...) or a project number whose
// owner may be a repository, a user or an organization. The namespace cannot
// be known in advance, so a Chain tries each Strategy and keeps the first
// success.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

var (
	projectNodeIDPattern = regexp.MustCompile(`^PVT_[A-Za-z0-9_-]+$`)
	genericNodeIDPattern = regexp.MustCompile(`^[A-Z]{1,4}_[A-Za-z0-9_-]{4,}$`)
)

// IsNodeID reports whether ref has the shape of a GraphQL node id.
func IsNodeID(ref string) bool {
	return projectNodeIDPattern.MatchString(ref) || genericNodeIDPattern.MatchString(ref)
}

// ErrNotApplicable is returned by a Strategy that cannot handle a reference.
// The chain skips such strategies without logging a failure.
var ErrNotApplicable = errors.New("strategy not applicable")

// Reference is a project reference plus the owner/repo context it is
// resolved in.
type Reference struct {
	Raw   string
	Owner string
	Repo  string
}

// Number returns the project number when Raw is numeric. A leading '#' is
// accepted.
func (r Reference) Number() (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(r.Raw), "#"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (r Reference) String() string {
	if r.Owner == "" {
		return r.Raw
	}
	return fmt.Sprintf("%s (%s/%s)", r.Raw, r.Owner, r.Repo)
}

// ProjectAPI is the subset of the GitHub client the strategies call.
type ProjectAPI interface {
	ProjectByNodeID(ctx context.Context, id string) (*github.RemoteProject, error)
	RepositoryProject(ctx context.Context, owner, repo string, number int) (*github.RemoteProject, error)
	UserProject(ctx context.Context, login string, number int) (*github.RemoteProject, error)
	OrganizationProject(ctx context.Context, login string, number int) (*github.RemoteProject, error)
}

// Strategy resolves a reference in one namespace.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error)
}

// NodeIDStrategy fetches references shaped like node ids directly.
type NodeIDStrategy struct{ API ProjectAPI }

func (s NodeIDStrategy) Name() string { return "node" }

func (s NodeIDStrategy) Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error) {
	id := strings.TrimSpace(ref.Raw)
	if !IsNodeID(id) {
		return nil, ErrNotApplicable
	}
	return s.API.ProjectByNodeID(ctx, id)
}

// RepositoryStrategy resolves a number under repository(owner, repo).
type RepositoryStrategy struct{ API ProjectAPI }

func (s RepositoryStrategy) Name() string { return "repository" }

func (s RepositoryStrategy) Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error) {
	n, ok := ref.Number()
	if !ok || ref.Owner == "" || ref.Repo == "" {
		return nil, ErrNotApplicable
	}
	return s.API.RepositoryProject(ctx, ref.Owner, ref.Repo, n)
}

// UserStrategy resolves a number under user(login: owner).
type UserStrategy struct{ API ProjectAPI }

func (s UserStrategy) Name() string { return "user" }

func (s UserStrategy) Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error) {
	n, ok := ref.Number()
	if !ok || ref.Owner == "" {
		return nil, ErrNotApplicable
	}
	return s.API.UserProject(ctx, ref.Owner, n)
}

// OrganizationStrategy resolves a number under organization(login: owner).
type OrganizationStrategy struct{ API ProjectAPI }

func (s OrganizationStrategy) Name() string { return "organization" }

func (s OrganizationStrategy) Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error) {
	n, ok := ref.Number()
	if !ok || ref.Owner == "" {
		return nil, ErrNotApplicable
	}
	return s.API.OrganizationProject(ctx, ref.Owner, n)
}

// Resolver resolves project references.
type Resolver interface {
	Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error)
}

// Chain tries strategies in order; the first success wins.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain builds a chain from explicit strategies.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// NewStandardChain returns the node → repository → user → organization chain.
func NewStandardChain(api ProjectAPI, logger *slog.Logger) *Chain {
	return NewChain(logger,
		NodeIDStrategy{API: api},
		RepositoryStrategy{API: api},
		UserStrategy{API: api},
		OrganizationStrategy{API: api},
	)
}

// Strategies returns the strategy names in the order they are tried.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve implements Resolver. Strategy failures are logged and swallowed;
// exhaustion returns *syncerr.RemoteNotFoundError. Context cancellation
// stops the chain immediately.
func (c *Chain) Resolve(ctx context.Context, ref Reference) (*github.RemoteProject, error) {
	if strings.TrimSpace(ref.Raw) == "" {
		return nil, &syncerr.ConfigurationError{Field: "project", Reason: "project reference is empty"}
	}

	var tried []string
	var last error
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.Resolve(ctx, ref)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		tried = append(tried, s.Name())
		if err != nil {
			c.logger.Debug("project resolution failed", "strategy", s.Name(), "ref", ref.String(), "error", err)
			last = err
			continue
		}
		if p == nil {
			continue
		}
		c.logger.Debug("project resolved", "strategy", s.Name(), "ref", ref.String(), "project", p.ID)
		return p, nil
	}

	reason := "no strategy applies"
	if len(tried) > 0 {
		reason = "tried " + strings.Join(tried, ", ")
	}
	return nil, &syncerr.RemoteNotFoundError{
		Kind: "project",
		Ref:  ref.String() + ": " + reason,
		Err:  last,
	}
}
