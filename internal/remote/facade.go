// Package remote is the facade the sync engines use to talk to GitHub.
//
// A Facade hides pagination, project namespace ambiguity and the lack of a
// native upsert. Every get-or-create looks up by title first, creates when
// absent, and treats a conflict-classified create failure as a lost race:
// it re-fetches by title and returns the existing object.
//
// A Facade owns a per-run cache and is meant to be built once per push or
// pull invocation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/resolver"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/telemetry"
)

const scopeName = "github.com/jacobcy/VibeCopilot-sub000/remote"

// API is the GitHub surface the facade consumes. *github.Client implements it.
type API interface {
	resolver.ProjectAPI

	GetRepository(ctx context.Context, owner, repo string) (*github.RemoteRepository, error)
	FindProjectByTitle(ctx context.Context, owner, repo, title string) (*github.RemoteProject, error)
	CreateProject(ctx context.Context, ownerID, repositoryID, title string) (*github.RemoteProject, error)
	ProjectItemsPage(ctx context.Context, projectID, cursor string) (*github.ProjectPage, error)

	ListMilestones(ctx context.Context, owner, repo, state string) ([]github.RemoteMilestone, error)
	CreateMilestone(ctx context.Context, owner, repo string, in github.MilestoneInput) (*github.RemoteMilestone, error)

	ListIssues(ctx context.Context, owner, repo string, filter github.IssueListOptions) ([]github.RemoteIssue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.RemoteIssue, error)
	CreateIssue(ctx context.Context, owner, repo string, in github.IssueFields) (*github.RemoteIssue, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, patch github.IssuePatch) (*github.RemoteIssue, error)
}

var _ API = (*github.Client)(nil)

// Facade wraps an API with get-or-create semantics and a run-scoped cache.
type Facade struct {
	api      API
	resolver resolver.Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	cache    *Cache
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

// WithResolver replaces the standard resolver chain.
func WithResolver(r resolver.Resolver) Option {
	return func(f *Facade) { f.resolver = r }
}

// New builds a Facade with an empty cache.
func New(api API, opts ...Option) *Facade {
	f := &Facade{
		api:    api,
		logger: slog.Default(),
		tracer: telemetry.Tracer(scopeName),
		cache:  NewCache(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.resolver == nil {
		f.resolver = resolver.NewStandardChain(api, f.logger)
	}
	return f
}

// Cache returns the facade's run cache.
func (f *Facade) Cache() *Cache { return f.cache }

// Clear empties the run cache.
func (f *Facade) Clear() { f.cache.Clear() }

func (f *Facade) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return f.tracer.Start(ctx, "remote."+name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// wrap converts a failed call into the sync error taxonomy. Not-found and
// conflict keep their kind, transient failures become RemoteTransientError,
// and fatal rejections keep the op as context.
func wrap(op, kind, ref string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || syncerr.IsConfiguration(err) {
		return err
	}
	switch syncerr.Classify(err) {
	case syncerr.KindNotFound:
		return &syncerr.RemoteNotFoundError{Kind: kind, Ref: ref, Err: err}
	case syncerr.KindConflict:
		return &syncerr.RemoteConflictError{Kind: kind, Name: ref, Err: err}
	case syncerr.KindTransient:
		return &syncerr.RemoteTransientError{Op: op, Err: err}
	case syncerr.KindIntegrity:
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ResolveProject resolves a project reference through the resolver chain.
// Results are cached per reference.
func (f *Facade) ResolveProject(ctx context.Context, ref resolver.Reference) (*github.RemoteProject, error) {
	key := ref.String()
	if p, ok := f.cache.project(key); ok {
		return p, nil
	}
	ctx, span := f.span(ctx, "ResolveProject", attribute.String("vibe.project.ref", key))
	p, err := f.resolver.Resolve(ctx, ref)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	f.cache.putProject(key, p)
	f.cache.putProject(p.ID, p)
	return p, nil
}

// GetOrCreateProject finds the project titled title owned by owner/repo,
// creating it when absent. created reports whether a create succeeded.
func (f *Facade) GetOrCreateProject(ctx context.Context, owner, repo, title string) (p *github.RemoteProject, created bool, err error) {
	key := titleKey(owner, repo, title)
	if p, ok := f.cache.project(key); ok {
		return p, false, nil
	}
	ctx, span := f.span(ctx, "GetOrCreateProject", attribute.String("vibe.project.title", title))
	defer func() { telemetry.EndSpan(span, err) }()

	p, err = f.api.FindProjectByTitle(ctx, owner, repo, title)
	if err == nil {
		f.cache.putProject(key, p)
		return p, false, nil
	}
	if !github.IsNotFound(err) {
		return nil, false, wrap("find project", "project", title, err)
	}

	r, err := f.api.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, false, wrap("get repository", "repository", owner+"/"+repo, err)
	}
	p, err = f.api.CreateProject(ctx, r.OwnerID, r.NodeID, title)
	switch {
	case err == nil:
		f.logger.Info("created remote project", "title", title, "number", p.Number)
		f.cache.putProject(key, p)
		return p, true, nil
	case syncerr.IsConflict(err):
		f.logger.Debug("project create conflicted, re-fetching", "title", title)
		p, err = f.api.FindProjectByTitle(ctx, owner, repo, title)
		if err != nil {
			return nil, false, wrap("re-fetch project", "project", title, err)
		}
		f.cache.putProject(key, p)
		return p, false, nil
	}
	return nil, false, wrap("create project", "project", title, err)
}

func (f *Facade) milestones(ctx context.Context, owner, repo string) (map[string]*github.RemoteMilestone, error) {
	if idx, ok := f.cache.milestoneIndex(owner, repo); ok {
		return idx, nil
	}
	list, err := f.api.ListMilestones(ctx, owner, repo, "all")
	if err != nil {
		return nil, err
	}
	idx := make(map[string]*github.RemoteMilestone, len(list))
	for i := range list {
		m := list[i]
		k := normalizeTitle(m.Title)
		if _, dup := idx[k]; !dup {
			idx[k] = &m
		}
	}
	f.cache.putMilestoneIndex(owner, repo, idx)
	return idx, nil
}

// GetOrCreateMilestone finds the repository milestone titled title, creating
// it with state and dueDate when absent.
func (f *Facade) GetOrCreateMilestone(ctx context.Context, owner, repo, title, state string, dueDate *time.Time) (m *github.RemoteMilestone, created bool, err error) {
	ctx, span := f.span(ctx, "GetOrCreateMilestone", attribute.String("vibe.milestone.title", title))
	defer func() { telemetry.EndSpan(span, err) }()

	idx, err := f.milestones(ctx, owner, repo)
	if err != nil {
		return nil, false, wrap("list milestones", "milestone", title, err)
	}
	if found, ok := idx[normalizeTitle(title)]; ok {
		return found, false, nil
	}

	in := github.MilestoneInput{Title: title, State: state}
	if dueDate != nil {
		in.DueOn = &gh.Timestamp{Time: *dueDate}
	}
	m, err = f.api.CreateMilestone(ctx, owner, repo, in)
	if err == nil {
		f.logger.Info("created remote milestone", "title", title, "number", m.Number)
		idx[normalizeTitle(title)] = m
		return m, true, nil
	}
	if !syncerr.IsConflict(err) {
		return nil, false, wrap("create milestone", "milestone", title, err)
	}

	f.logger.Debug("milestone create conflicted, re-fetching", "title", title)
	f.cache.Invalidate(KindMilestone, repoKey(owner, repo))
	idx, err = f.milestones(ctx, owner, repo)
	if err != nil {
		return nil, false, wrap("re-fetch milestones", "milestone", title, err)
	}
	if found, ok := idx[normalizeTitle(title)]; ok {
		return found, false, nil
	}
	return nil, false, &syncerr.RemoteNotFoundError{Kind: "milestone", Ref: title,
		Err: fmt.Errorf("create reported a conflict but no milestone with this title is listed")}
}

// CreateIssue creates an issue and caches it by number.
func (f *Facade) CreateIssue(ctx context.Context, owner, repo string, fields github.IssueFields) (*github.RemoteIssue, error) {
	ctx, span := f.span(ctx, "CreateIssue")
	issue, err := f.api.CreateIssue(ctx, owner, repo, fields)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, wrap("create issue", "issue", fields.Title, err)
	}
	f.cache.putIssue(owner, repo, issue)
	return issue, nil
}

// UpdateIssue applies a partial update. An empty patch is a no-op that
// returns the current issue.
func (f *Facade) UpdateIssue(ctx context.Context, owner, repo string, number int, patch github.IssuePatch) (*github.RemoteIssue, error) {
	if patch.IsEmpty() {
		return f.GetIssue(ctx, owner, repo, number)
	}
	ctx, span := f.span(ctx, "UpdateIssue", attribute.Int("vibe.issue.number", number))
	issue, err := f.api.UpdateIssue(ctx, owner, repo, number, patch)
	telemetry.EndSpan(span, err)
	if err != nil {
		f.cache.Invalidate(KindIssue, issueKey(owner, repo, number))
		return nil, wrap("update issue", "issue", "#"+strconv.Itoa(number), err)
	}
	f.cache.putIssue(owner, repo, issue)
	return issue, nil
}

// GetIssue returns an issue, from the cache when possible.
func (f *Facade) GetIssue(ctx context.Context, owner, repo string, number int) (*github.RemoteIssue, error) {
	if issue, ok := f.cache.issue(owner, repo, number); ok {
		return issue, nil
	}
	issue, err := f.api.GetIssue(ctx, owner, repo, number)
	if err != nil {
		return nil, wrap("get issue", "issue", "#"+strconv.Itoa(number), err)
	}
	f.cache.putIssue(owner, repo, issue)
	return issue, nil
}

// GetIssuesForMilestone lists every issue (open and closed) attached to the
// milestone number.
func (f *Facade) GetIssuesForMilestone(ctx context.Context, owner, repo string, milestone int) ([]github.RemoteIssue, error) {
	issues, err := f.api.ListIssues(ctx, owner, repo, github.IssueListOptions{
		State:     "all",
		Milestone: strconv.Itoa(milestone),
	})
	if err != nil {
		return nil, wrap("list milestone issues", "milestone", strconv.Itoa(milestone), err)
	}
	for i := range issues {
		f.cache.putIssue(owner, repo, &issues[i])
	}
	return issues, nil
}

// ListRepositoryIssues lists every repository issue, open and closed.
func (f *Facade) ListRepositoryIssues(ctx context.Context, owner, repo string) ([]github.RemoteIssue, error) {
	ctx, span := f.span(ctx, "ListRepositoryIssues")
	issues, err := f.api.ListIssues(ctx, owner, repo, github.IssueListOptions{State: "all"})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, wrap("list issues", "repository", owner+"/"+repo, err)
	}
	for i := range issues {
		f.cache.putIssue(owner, repo, &issues[i])
	}
	return issues, nil
}

// GetAllProjectItems drains the project's item pagination. If a page fails
// after earlier pages succeeded, the items collected so far are returned
// together with the error.
func (f *Facade) GetAllProjectItems(ctx context.Context, projectID string) ([]github.RemoteProjectItem, error) {
	ctx, span := f.span(ctx, "GetAllProjectItems", attribute.String("vibe.project.id", projectID))
	var (
		items  []github.RemoteProjectItem
		cursor string
		err    error
	)
	defer func() {
		span.SetAttributes(attribute.Int("vibe.project.items", len(items)))
		telemetry.EndSpan(span, err)
	}()

	for page := 0; page < github.MaxPages; page++ {
		var p *github.ProjectPage
		p, err = f.api.ProjectItemsPage(ctx, projectID, cursor)
		if err != nil {
			err = wrap("list project items", "project", projectID, err)
			if len(items) > 0 {
				f.logger.Warn("project item pagination failed, keeping partial results",
					"project", projectID, "collected", len(items), "error", err)
			}
			return items, err
		}
		items = append(items, p.Items...)
		if !p.HasNextPage || p.EndCursor == "" {
			return items, nil
		}
		cursor = p.EndCursor
	}
	f.logger.Warn("project item pagination hit page limit", "project", projectID, "pages", github.MaxPages)
	return items, nil
}

// VerifyRepository checks that owner/repo exists and is visible.
func (f *Facade) VerifyRepository(ctx context.Context, owner, repo string) (*github.RemoteRepository, error) {
	r, err := f.api.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, wrap("get repository", "repository", owner+"/"+repo, err)
	}
	return r, nil
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
