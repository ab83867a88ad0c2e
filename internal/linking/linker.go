// Package linking binds local roadmaps to remote GitHub projects and keeps
// the active-link display cache in step with the current roadmap.
package linking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/resolver"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/telemetry"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

const scopeName = "github.com/jacobcy/VibeCopilot-sub000/linking"

var timeNow = time.Now

type contextKey string

const callContextKey contextKey = "link-call-context"

// CallContext records the link signatures in progress or completed for one
// top-level operation. A failed request is forgotten.
type CallContext struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// WithCallContext returns ctx carrying a CallContext. An existing one is kept.
func WithCallContext(ctx context.Context) context.Context {
	if CallContextFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, callContextKey, &CallContext{seen: make(map[string]struct{})})
}

// CallContextFrom returns the CallContext carried by ctx, or nil.
func CallContextFrom(ctx context.Context) *CallContext {
	cc, _ := ctx.Value(callContextKey).(*CallContext)
	return cc
}

// enter adds sig and reports whether it was absent.
func (c *CallContext) enter(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[sig]; ok {
		return false
	}
	c.seen[sig] = struct{}{}
	return true
}

// leave removes sig so a later request with the same signature runs again.
func (c *CallContext) leave(sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, sig)
}

// Has reports whether sig was entered.
func (c *CallContext) Has(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[sig]
	return ok
}

// Signature is the guard key for one link request.
func Signature(roadmapID, owner, repo, ref string) string {
	return fmt.Sprintf("link:%s:%s/%s:%s", roadmapID, owner, repo, ref)
}

// Remote is the part of the remote facade linking needs.
type Remote interface {
	ResolveProject(ctx context.Context, ref resolver.Reference) (*github.RemoteProject, error)
	VerifyRepository(ctx context.Context, owner, repo string) (*github.RemoteRepository, error)
}

// Roadmaps looks up local roadmaps.
type Roadmaps interface {
	GetRoadmap(ctx context.Context, id string) (*types.Roadmap, error)
}

// Verifier checks a resolved project before the link is persisted. It may
// call Link again with the same ctx; that call returns without remote work.
type Verifier func(ctx context.Context, link types.RemoteLink, project *github.RemoteProject) error

// Linker manages roadmap links.
type Linker struct {
	remote   Remote
	roadmaps Roadmaps
	state    *storage.StateDocument
	verify   Verifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Linker.
type Option func(*Linker)

// WithVerifier installs a verification hook run after resolution.
func WithVerifier(v Verifier) Option {
	return func(l *Linker) { l.verify = v }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) { l.logger = logger }
}

// New builds a Linker.
func New(remote Remote, roadmaps Roadmaps, state storage.ProjectState, opts ...Option) *Linker {
	l := &Linker{
		remote:   remote,
		roadmaps: roadmaps,
		state:    storage.NewStateDocument(state),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(scopeName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Link resolves ref in owner/repo and binds it to roadmapID.
//
// A repeated request with the same signature inside one CallContext returns
// the currently persisted link (possibly nil) without any remote call. When
// Link fails its signature is dropped, so a retry does the work again.
func (l *Linker) Link(ctx context.Context, roadmapID, owner, repo, ref string) (link *types.RemoteLink, err error) {
	roadmapID = strings.TrimSpace(roadmapID)
	ref = strings.TrimSpace(ref)

	ctx = WithCallContext(ctx)
	cc := CallContextFrom(ctx)
	sig := Signature(roadmapID, owner, repo, ref)
	if !cc.enter(sig) {
		l.logger.Debug("link already in progress, skipping", "signature", sig)
		return l.state.RemoteLink(ctx, roadmapID)
	}
	defer func() {
		if err != nil {
			cc.leave(sig)
		}
	}()

	if err := l.validate(ctx, roadmapID, owner, repo, ref); err != nil {
		return nil, err
	}

	ctx, span := l.tracer.Start(ctx, "linking.Link", trace.WithAttributes(
		attribute.String("vibe.roadmap.id", roadmapID),
		attribute.String("vibe.project.ref", ref),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := l.remote.VerifyRepository(ctx, owner, repo); err != nil {
		return nil, err
	}
	project, err := l.remote.ResolveProject(ctx, resolver.Reference{Raw: ref, Owner: owner, Repo: repo})
	if err != nil {
		return nil, err
	}

	candidate := types.RemoteLink{RoadmapID: roadmapID, ProjectID: project.ID, Owner: owner, Repo: repo}
	if l.verify != nil {
		if err := l.verify(ctx, candidate, project); err != nil {
			return nil, fmt.Errorf("verify project %s: %w", project.ID, err)
		}
	}

	if err := l.state.SetRemoteLink(ctx, candidate); err != nil {
		return nil, fmt.Errorf("persist link: %w", err)
	}
	l.logger.Info("linked roadmap", "roadmap", roadmapID, "project", project.ID, "repo", candidate.Context())

	current, err := l.state.CurrentRoadmapID(ctx)
	if err != nil {
		return nil, err
	}
	if current == roadmapID {
		if err := l.state.SetActiveCache(ctx, cacheFor(candidate, project)); err != nil {
			return nil, fmt.Errorf("refresh active link: %w", err)
		}
	}
	return &candidate, nil
}

func (l *Linker) validate(ctx context.Context, roadmapID, owner, repo, ref string) error {
	switch {
	case roadmapID == "":
		return &syncerr.ConfigurationError{Field: "roadmap", Reason: "roadmap id is empty"}
	case owner == "" || repo == "":
		return &syncerr.ConfigurationError{Field: "github.repo", Reason: "owner and repo are required to link"}
	case ref == "":
		return &syncerr.ConfigurationError{Field: "project", Reason: "project reference is empty"}
	}
	rm, err := l.roadmaps.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return err
	}
	if rm == nil {
		return &syncerr.ConfigurationError{Field: "roadmap", Reason: fmt.Sprintf("roadmap %s does not exist", roadmapID)}
	}
	return nil
}

// Unlink removes a roadmap's link. The active cache is cleared when the
// roadmap is current.
func (l *Linker) Unlink(ctx context.Context, roadmapID string) error {
	if err := l.state.RemoveRemoteLink(ctx, roadmapID); err != nil {
		return err
	}
	current, err := l.state.CurrentRoadmapID(ctx)
	if err != nil {
		return err
	}
	if current == roadmapID {
		return l.state.ClearActiveCache(ctx)
	}
	return nil
}

// SwitchRoadmap makes roadmapID current and clears the active cache.
func (l *Linker) SwitchRoadmap(ctx context.Context, roadmapID string) error {
	rm, err := l.roadmaps.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return err
	}
	if rm == nil {
		return &syncerr.ConfigurationError{Field: "roadmap", Reason: fmt.Sprintf("roadmap %s does not exist", roadmapID)}
	}
	if err := l.state.SetCurrentRoadmapID(ctx, roadmapID); err != nil {
		return err
	}
	return l.state.ClearActiveCache(ctx)
}

// LinkFor returns the persisted link for roadmapID, or nil.
func (l *Linker) LinkFor(ctx context.Context, roadmapID string) (*types.RemoteLink, error) {
	return l.state.RemoteLink(ctx, roadmapID)
}

// ActiveLink returns the display cache for the current roadmap, rebuilding
// it from the persisted link when empty or stale. It returns nil when no
// roadmap is current or the current roadmap is unlinked. Project details are
// best effort: a failed lookup still yields a cache with the link fields.
func (l *Linker) ActiveLink(ctx context.Context) (*types.ActiveLinkCache, error) {
	current, err := l.state.CurrentRoadmapID(ctx)
	if err != nil || current == "" {
		return nil, err
	}
	cached, err := l.state.ActiveCache(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.RoadmapID == current {
		return cached, nil
	}

	link, err := l.state.RemoteLink(ctx, current)
	if err != nil || link == nil {
		return nil, err
	}
	project, err := l.remote.ResolveProject(ctx, resolver.Reference{Raw: link.ProjectID, Owner: link.Owner, Repo: link.Repo})
	if err != nil {
		l.logger.Warn("could not refresh linked project details", "project", link.ProjectID, "error", err)
		project = nil
	}
	c := cacheFor(*link, project)
	if err := l.state.SetActiveCache(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func cacheFor(link types.RemoteLink, project *github.RemoteProject) *types.ActiveLinkCache {
	c := &types.ActiveLinkCache{
		RoadmapID: link.RoadmapID,
		ProjectID: link.ProjectID,
		Owner:     link.Owner,
		Repo:      link.Repo,
		UpdatedAt: timeNow().UTC(),
	}
	if project != nil {
		c.ProjectNumber = project.Number
		c.ProjectTitle = project.Title
	}
	return c
}
