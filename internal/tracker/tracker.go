// Package tracker synchronizes a local roadmap with its linked GitHub project.
//
// PushEngine mirrors milestones, epics and stories to the remote repository.
// PullEngine reads the project's issues back, updating mapped entities and
// inferring tasks from unmapped issues that sit under a milestone.
//
// Both engines run one roadmap at a time under a per-roadmap file lease and
// keep going when a single item fails: per-item failures are counted in the
// SyncResult and never returned as the run's error.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/lockfile"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote"
	"github.com/jacobcy/VibeCopilot-sub000/internal/resolver"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/telemetry"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// Remote is the facade surface the engines call. *remote.Facade implements it.
type Remote interface {
	ResolveProject(ctx context.Context, ref resolver.Reference) (*github.RemoteProject, error)
	GetOrCreateMilestone(ctx context.Context, owner, repo, title, state string, dueDate *time.Time) (*github.RemoteMilestone, bool, error)
	CreateIssue(ctx context.Context, owner, repo string, fields github.IssueFields) (*github.RemoteIssue, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, patch github.IssuePatch) (*github.RemoteIssue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.RemoteIssue, error)
	GetIssuesForMilestone(ctx context.Context, owner, repo string, milestone int) ([]github.RemoteIssue, error)
	GetAllProjectItems(ctx context.Context, projectID string) ([]github.RemoteProjectItem, error)
	ListRepositoryIssues(ctx context.Context, owner, repo string) ([]github.RemoteIssue, error)
}

var _ Remote = (*remote.Facade)(nil)

// Store is the local persistence the engines need.
type Store interface {
	storage.MappingStore
	storage.RoadmapService
	storage.ProjectState
}

// Option configures an engine.
type Option func(*engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *engine) { e.logger = l }
}

// WithLease makes every run hold the roadmap's lease under dataDir, waiting
// up to timeout for a competing run to finish. Without it runs are unguarded.
func WithLease(dataDir string, timeout time.Duration) Option {
	return func(e *engine) {
		e.leaseDir = dataDir
		e.leaseTimeout = timeout
	}
}

// WithClock overrides the time source used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// engine holds what push and pull share.
type engine struct {
	remote       Remote
	store        Store
	state        *storage.StateDocument
	logger       *slog.Logger
	metrics      *telemetry.SyncInstruments
	leaseDir     string
	leaseTimeout time.Duration
	now          func() time.Time
}

func newEngine(r Remote, s Store, opts []Option) engine {
	e := engine{
		remote:  r,
		store:   s,
		state:   storage.NewStateDocument(s),
		logger:  slog.Default(),
		metrics: telemetry.NewSyncInstruments(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// target is the resolved destination of one run.
type target struct {
	roadmap *types.Roadmap
	link    types.RemoteLink
	project *github.RemoteProject
}

func (t *target) context() string {
	if t.project != nil && t.project.Number > 0 {
		return fmt.Sprintf("%s#%d", t.link.Context(), t.project.Number)
	}
	return t.link.Context()
}

// inLinkedRepo reports whether issue belongs to the linked repository.
// Issues without a repository are assumed to.
func (t *target) inLinkedRepo(issue *github.RemoteIssue) bool {
	return issue.Repository == "" || sameRepo(issue.Repository, t.link.Context())
}

// issueContext is the RemoteProjectContext recorded for an issue's mapping.
func (t *target) issueContext(issue *github.RemoteIssue) string {
	if t.inLinkedRepo(issue) {
		return t.context()
	}
	if t.project != nil && t.project.Number > 0 {
		return fmt.Sprintf("%s#%d", issue.Repository, t.project.Number)
	}
	return issue.Repository
}

// contextRepo strips the project number from a RemoteProjectContext.
func contextRepo(c string) string {
	if i := strings.LastIndex(c, "#"); i >= 0 {
		return c[:i]
	}
	return c
}

// sameRepo compares owner/repo names. An empty name matches any.
func sameRepo(a, b string) bool {
	return a == "" || b == "" || strings.EqualFold(a, b)
}

// linkedRoadmap loads roadmapID and its persisted link, failing with a
// ConfigurationError when either is missing.
func (e *engine) linkedRoadmap(ctx context.Context, roadmapID string) (*types.Roadmap, *types.RemoteLink, error) {
	if roadmapID == "" {
		return nil, nil, &syncerr.ConfigurationError{Field: "roadmap", Reason: "no roadmap given and none is current"}
	}
	roadmap, err := e.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, nil, fmt.Errorf("load roadmap %s: %w", roadmapID, err)
	}
	if roadmap == nil {
		return nil, nil, &syncerr.ConfigurationError{Field: "roadmap", Reason: fmt.Sprintf("roadmap %s does not exist", roadmapID)}
	}
	link, err := e.state.RemoteLink(ctx, roadmapID)
	if err != nil {
		return nil, nil, fmt.Errorf("load link for %s: %w", roadmapID, err)
	}
	if link == nil {
		return roadmap, nil, &syncerr.ConfigurationError{Field: "roadmap", Reason: fmt.Sprintf("roadmap %s is not linked to a remote project; run `vibe github link` first", roadmapID)}
	}
	if link.Owner == "" || link.Repo == "" {
		return roadmap, nil, &syncerr.ConfigurationError{Field: "github.repo", Reason: fmt.Sprintf("link for roadmap %s has no owner/repo; re-run `vibe github link`", roadmapID)}
	}
	return roadmap, link, nil
}

// acquire takes the roadmap lease when one is configured. The returned
// release func is never nil.
func (e *engine) acquire(ctx context.Context, roadmapID, direction string) (func(), error) {
	if e.leaseDir == "" {
		return func() {}, nil
	}
	lease, err := lockfile.Acquire(ctx, e.leaseDir, roadmapID, direction, e.leaseTimeout)
	if err != nil {
		return func() {}, err
	}
	return func() {
		if err := lease.Release(); err != nil {
			e.logger.Warn("release sync lease", "roadmap", roadmapID, "error", err)
		}
	}, nil
}

func (e *engine) resolveProject(ctx context.Context, link types.RemoteLink) (*github.RemoteProject, error) {
	project, err := e.remote.ResolveProject(ctx, resolver.Reference{Raw: link.ProjectID, Owner: link.Owner, Repo: link.Repo})
	if err != nil {
		return nil, fmt.Errorf("resolve project %s: %w", link.ProjectID, err)
	}
	return project, nil
}

// itemFailed records a per-item failure and lets the loop continue.
func (e *engine) itemFailed(ctx context.Context, res *SyncResult, entityType types.EntityType, id string, err error) {
	kind := syncerr.Classify(err)
	res.Stats.Errors++
	res.Errors = append(res.Errors, ItemError{
		EntityType: entityType,
		EntityID:   id,
		Kind:       kind.String(),
		Message:    err.Error(),
	})
	e.logger.Warn("sync item failed",
		"direction", res.Direction, "type", entityType, "id", id, "kind", kind.String(), "error", err)
	e.metrics.Error(ctx, res.Direction, string(entityType), kind.String())
}

func (e *engine) item(ctx context.Context, res *SyncResult, entityType types.EntityType, outcome string) {
	e.metrics.Item(ctx, res.Direction, string(entityType), outcome)
}

// saveMapping upserts a mapping stamped with the run time and direction.
func (e *engine) saveMapping(ctx context.Context, m *types.EntityMapping, direction types.SyncDirection) (*types.EntityMapping, error) {
	now := e.now().UTC()
	m.BackendType = types.BackendGitHub
	m.LastSyncedAt = &now
	m.LastSyncDirection = direction
	return e.store.CreateOrUpdateMapping(ctx, m)
}
