package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/logging"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote/remotetest"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage/memory"
	"github.com/jacobcy/VibeCopilot-sub000/internal/tracker"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

const (
	owner = "acme"
	repo  = "widgets"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	fake    *remotetest.Fake
	project *github.RemoteProject
	roadmap *types.Roadmap
}

// newFixture returns a roadmap linked to an empty repository project.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	rm := &types.Roadmap{Title: "Q3 plan"}
	require.NoError(t, store.CreateRoadmap(ctx, rm))

	fake := remotetest.New(owner, repo)
	p := fake.AddProject(remotetest.ScopeRepository, github.RemoteProject{Title: "Q3 board"})
	require.NoError(t, storage.NewStateDocument(store).SetRemoteLink(ctx, types.RemoteLink{
		RoadmapID: rm.ID, ProjectID: p.ID, Owner: owner, Repo: repo,
	}))
	return &fixture{t: t, ctx: ctx, store: store, fake: fake, project: p, roadmap: rm}
}

// facade returns a fresh facade, as the CLI builds one per run.
func (fx *fixture) facade() *remote.Facade {
	return remote.New(fx.fake, remote.WithLogger(logging.Discard()))
}

func (fx *fixture) push(opts ...tracker.Option) *tracker.SyncResult {
	fx.t.Helper()
	opts = append([]tracker.Option{tracker.WithLogger(logging.Discard())}, opts...)
	res, err := tracker.NewPushEngine(fx.facade(), fx.store, opts...).Push(fx.ctx, fx.roadmap.ID)
	require.NoError(fx.t, err)
	require.NotNil(fx.t, res)
	return res
}

func (fx *fixture) pull(opts ...tracker.Option) *tracker.SyncResult {
	fx.t.Helper()
	opts = append([]tracker.Option{tracker.WithLogger(logging.Discard())}, opts...)
	res, err := tracker.NewPullEngine(fx.facade(), fx.store, nil, opts...).Pull(fx.ctx, fx.roadmap.ID, tracker.PullOptions{})
	require.NoError(fx.t, err)
	require.NotNil(fx.t, res)
	return res
}

func (fx *fixture) milestone(title string) *types.Milestone {
	fx.t.Helper()
	m := &types.Milestone{RoadmapID: fx.roadmap.ID, Title: title}
	require.NoError(fx.t, fx.store.CreateMilestone(fx.ctx, m))
	return m
}

func (fx *fixture) epic(title, milestoneID string, labels ...string) *types.Epic {
	fx.t.Helper()
	e := &types.Epic{RoadmapID: fx.roadmap.ID, MilestoneID: milestoneID, Title: title, Description: title + " body", Labels: labels}
	require.NoError(fx.t, fx.store.CreateEpic(fx.ctx, e))
	return e
}

func (fx *fixture) story(title, milestoneID string) *types.Story {
	fx.t.Helper()
	s := &types.Story{RoadmapID: fx.roadmap.ID, MilestoneID: milestoneID, Title: title}
	require.NoError(fx.t, fx.store.CreateStory(fx.ctx, s))
	return s
}

func (fx *fixture) mapping(localID string, localType types.EntityType) *types.EntityMapping {
	fx.t.Helper()
	m, err := fx.store.GetByLocalID(fx.ctx, localID, localType, types.BackendGitHub)
	require.NoError(fx.t, err)
	return m
}

func indexOf(calls []string, method string) int {
	for i, c := range calls {
		if c == method {
			return i
		}
	}
	return -1
}
