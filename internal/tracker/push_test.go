package tracker_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/lockfile"
	"github.com/jacobcy/VibeCopilot-sub000/internal/logging"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote/remotetest"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/tracker"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

func TestPushCreatesMilestoneBeforeIssues(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	epic := fx.epic("Checkout flow", m1.ID)

	res := fx.push()

	assert.True(t, res.Success)
	assert.Equal(t, fx.project.ID, res.ProjectID)
	assert.Equal(t, 1, res.Stats.MilestonesProcessed)
	assert.Equal(t, 1, res.Stats.MilestonesCreated)
	assert.Equal(t, 1, res.Stats.IssuesCreated)
	assert.Zero(t, res.Stats.Errors)

	milestones := fx.fake.Milestones()
	require.Len(t, milestones, 1)
	assert.Equal(t, "M1", milestones[0].Title)
	n := milestones[0].Number

	issues := fx.fake.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "Checkout flow", issues[0].Title)
	assert.Equal(t, n, issues[0].MilestoneNumber())
	assert.Contains(t, issues[0].Labels, tracker.LabelEpic)

	calls := fx.fake.Calls()
	assert.Less(t, indexOf(calls, "CreateMilestone"), indexOf(calls, "CreateIssue"))

	mm := fx.mapping(m1.ID, types.EntityMilestone)
	require.NotNil(t, mm)
	assert.Equal(t, strconv.Itoa(n), mm.RemoteEntityNumber)
	assert.Equal(t, types.DirectionToRemote, mm.LastSyncDirection)

	em := fx.mapping(epic.ID, types.EntityEpic)
	require.NotNil(t, em)
	assert.Equal(t, strconv.Itoa(issues[0].Number), em.RemoteEntityNumber)
	assert.Equal(t, issues[0].NodeID, em.RemoteEntityID)
	assert.Equal(t, fx.project.ID, em.RemoteProjectID)
	assert.Equal(t, "epic", em.SyncValue("pushed_labels"))
	assert.Equal(t, strconv.Itoa(n), em.SyncValue("pushed_milestone"))
	assert.Equal(t, fx.roadmap.ID, em.LocalProjectID)
}

func TestPushTwiceIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	fx.epic("Checkout flow", m1.ID)
	fx.story("Pay with card", m1.ID)

	first := fx.push()
	assert.Equal(t, 2, first.Stats.IssuesCreated)

	fx.fake.ResetCalls()
	second := fx.push()

	assert.True(t, second.Success)
	assert.Zero(t, second.Stats.MilestonesCreated)
	assert.Zero(t, second.Stats.IssuesCreated)
	assert.Zero(t, second.Stats.IssuesUpdated)
	assert.Equal(t, 2, second.Stats.Skipped)
	assert.Zero(t, fx.fake.Count("CreateIssue"))
	assert.Zero(t, fx.fake.Count("UpdateIssue"))
	assert.Zero(t, fx.fake.Count("CreateMilestone"))
	assert.Len(t, fx.fake.Issues(), 2)
}

func TestPushUpdatesWhenRemoteDrifted(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	fx.epic("Checkout flow", m1.ID)
	fx.push()

	n := fx.fake.Issues()[0].Number
	fx.fake.SetIssue(n, func(i *github.RemoteIssue) {
		i.Title = "renamed on GitHub"
		i.State = "closed"
	})

	res := fx.push()
	assert.Equal(t, 1, res.Stats.IssuesUpdated)
	assert.Zero(t, res.Stats.Skipped)

	issue, ok := fx.fake.Issue(n)
	require.True(t, ok)
	assert.Equal(t, "Checkout flow", issue.Title)
	assert.Equal(t, "open", issue.State)
}

func TestPushSendsLocalChanges(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	epic := fx.epic("Checkout flow", m1.ID)
	fx.push()
	n := fx.fake.Issues()[0].Number

	// A label added on GitHub survives because the epic has no labels of its own.
	fx.fake.SetIssue(n, func(i *github.RemoteIssue) {
		i.Labels = append(i.Labels, "needs-design")
	})

	epic.Title = "Checkout v2"
	epic.Status = types.StatusDone
	epic.Assignee = "octocat"
	epic.MilestoneID = ""
	require.NoError(t, fx.store.UpdateEpic(fx.ctx, epic))

	res := fx.push()
	assert.Equal(t, 1, res.Stats.IssuesUpdated)
	assert.Equal(t, 1, fx.fake.Count("CreateIssue"), "no second create")

	issue, ok := fx.fake.Issue(n)
	require.True(t, ok)
	assert.Equal(t, "Checkout v2", issue.Title)
	assert.Equal(t, "closed", issue.State)
	assert.Equal(t, []string{"octocat"}, issue.Assignees)
	assert.Nil(t, issue.Milestone, "a local item without a milestone clears the remote one")
	assert.ElementsMatch(t, []string{"epic", "needs-design"}, issue.Labels)
}

func TestPushSendsLabelsWhenEntityHasThem(t *testing.T) {
	fx := newFixture(t)
	epic := fx.epic("Search", "", "backend")
	fx.push()
	n := fx.fake.Issues()[0].Number
	assert.ElementsMatch(t, []string{"epic", "backend"}, fx.fake.Issues()[0].Labels)

	epic.Labels = []string{"backend", "perf"}
	require.NoError(t, fx.store.UpdateEpic(fx.ctx, epic))
	fx.push()

	issue, _ := fx.fake.Issue(n)
	assert.ElementsMatch(t, []string{"epic", "backend", "perf"}, issue.Labels)
}

func TestPushStatusChangeKeepsRemoteEdits(t *testing.T) {
	fx := newFixture(t)
	epic := fx.epic("Search", "", "backend")
	fx.push()
	n := fx.fake.Issues()[0].Number

	fx.fake.SetIssue(n, func(i *github.RemoteIssue) {
		i.Assignees = []string{"alice"}
		i.Labels = append(i.Labels, "bug")
	})
	epic.Status = types.StatusDone
	require.NoError(t, fx.store.UpdateEpic(fx.ctx, epic))

	res := fx.push()
	assert.Equal(t, 1, res.Stats.IssuesUpdated)

	issue, ok := fx.fake.Issue(n)
	require.True(t, ok)
	assert.Equal(t, "closed", issue.State)
	assert.Equal(t, []string{"alice"}, issue.Assignees)
	assert.ElementsMatch(t, []string{"epic", "backend", "bug"}, issue.Labels)
	assert.Equal(t, "Search", issue.Title)
}

func TestPushRemovesOnlyWhatWasDroppedLocally(t *testing.T) {
	fx := newFixture(t)
	epic := fx.epic("Search", "", "backend", "perf")
	epic.Assignee = "octocat"
	require.NoError(t, fx.store.UpdateEpic(fx.ctx, epic))
	fx.push()
	n := fx.fake.Issues()[0].Number
	assert.Equal(t, []string{"octocat"}, fx.fake.Issues()[0].Assignees)

	fx.fake.SetIssue(n, func(i *github.RemoteIssue) {
		i.Assignees = append(i.Assignees, "alice")
		i.Labels = append(i.Labels, "bug")
	})
	epic.Labels = []string{"backend"}
	epic.Assignee = ""
	require.NoError(t, fx.store.UpdateEpic(fx.ctx, epic))

	fx.push()

	issue, _ := fx.fake.Issue(n)
	assert.Equal(t, []string{"alice"}, issue.Assignees)
	assert.ElementsMatch(t, []string{"epic", "backend", "bug"}, issue.Labels)

	fx.fake.ResetCalls()
	res := fx.push()
	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Zero(t, fx.fake.Count("UpdateIssue"))
}

func TestPushAdoptsMatchingIssueUnderMilestone(t *testing.T) {
	fx := newFixture(t)
	remoteMs := fx.fake.AddMilestone(github.RemoteMilestone{Title: "M1"})
	ref := &github.MilestoneRef{Number: remoteMs.Number, Title: remoteMs.Title}
	existing := fx.fake.AddIssue(github.RemoteIssue{Title: "Checkout flow", Body: "Checkout flow body", Labels: []string{"epic"}, Milestone: ref})
	fx.fake.AddIssue(github.RemoteIssue{Title: "Pay with card", Milestone: ref})

	m1 := fx.milestone("M1")
	epic := fx.epic("Checkout flow", m1.ID)
	fx.story("Pay with card", m1.ID)

	res := fx.push()

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.IssuesCreated, "only the story is created")
	assert.Equal(t, 1, fx.fake.Count("CreateIssue"))
	assert.Len(t, fx.fake.Issues(), 3)

	em := fx.mapping(epic.ID, types.EntityEpic)
	require.NotNil(t, em)
	assert.Equal(t, strconv.Itoa(existing.Number), em.RemoteEntityNumber)
	assert.Equal(t, existing.NodeID, em.RemoteEntityID)

	fx.fake.ResetCalls()
	again := fx.push()
	assert.Zero(t, again.Stats.IssuesCreated)
	assert.Zero(t, fx.fake.Count("ListIssues"), "mapped items need no lookup")
}

func TestPushUnlinkedRoadmapFailsBeforeRemoteCalls(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, storage.NewStateDocument(fx.store).RemoveRemoteLink(fx.ctx, fx.roadmap.ID))
	fx.epic("Checkout flow", "")

	res, err := tracker.NewPushEngine(fx.facade(), fx.store, tracker.WithLogger(logging.Discard())).Push(fx.ctx, fx.roadmap.ID)

	require.Error(t, err)
	assert.True(t, syncerr.IsConfiguration(err))
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, fx.fake.Calls())
}

func TestPushUnknownRoadmap(t *testing.T) {
	fx := newFixture(t)
	_, err := tracker.NewPushEngine(fx.facade(), fx.store).Push(fx.ctx, "missing")
	assert.True(t, syncerr.IsConfiguration(err))

	_, err = tracker.NewPushEngine(fx.facade(), fx.store).Push(fx.ctx, "")
	assert.True(t, syncerr.IsConfiguration(err))
	assert.Empty(t, fx.fake.Calls())
}

func TestPushUnresolvableProjectIsRunError(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, storage.NewStateDocument(fx.store).SetRemoteLink(fx.ctx, types.RemoteLink{
		RoadmapID: fx.roadmap.ID, ProjectID: "PVT_gone", Owner: owner, Repo: repo,
	}))

	res, err := tracker.NewPushEngine(fx.facade(), fx.store, tracker.WithLogger(logging.Discard())).Push(fx.ctx, fx.roadmap.ID)
	require.Error(t, err)
	assert.True(t, syncerr.IsNotFound(err))
	assert.False(t, res.Success)
}

func TestPushContinuesAfterItemFailure(t *testing.T) {
	fx := newFixture(t)
	fx.epic("First", "")
	fx.epic("Second", "")
	fx.fake.FailOnce("CreateIssue", remotetest.Transient())

	res := fx.push()

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.IssuesCreated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, types.EntityEpic, res.Errors[0].EntityType)
	assert.Equal(t, "transient", res.Errors[0].Kind)

	retry := fx.push()
	assert.True(t, retry.Success)
	assert.Equal(t, 1, retry.Stats.IssuesCreated)
	assert.Equal(t, 1, retry.Stats.Skipped)
}

func TestPushMilestoneFailureLeavesIssueMilestoneAlone(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	fx.epic("Checkout flow", m1.ID)
	fx.fake.FailOnce("CreateMilestone", remotetest.Transient())

	res := fx.push()
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.IssuesCreated)
	assert.Nil(t, fx.fake.Issues()[0].Milestone)

	res = fx.push()
	assert.Zero(t, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.MilestonesCreated)
	assert.Equal(t, 1, res.Stats.IssuesUpdated)
	assert.Equal(t, fx.fake.Milestones()[0].Number, fx.fake.Issues()[0].MilestoneNumber())
}

func TestPushMilestoneCreateRaceReusesExisting(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	fx.fake.Race("CreateMilestone")

	res := fx.push()

	assert.Zero(t, res.Stats.Errors)
	assert.Zero(t, res.Stats.MilestonesCreated)
	require.Len(t, fx.fake.Milestones(), 1)
	mm := fx.mapping(m1.ID, types.EntityMilestone)
	require.NotNil(t, mm)
	assert.Equal(t, strconv.Itoa(fx.fake.Milestones()[0].Number), mm.RemoteEntityNumber)
}

func TestPushReusesExistingRemoteMilestone(t *testing.T) {
	fx := newFixture(t)
	existing := fx.fake.AddMilestone(github.RemoteMilestone{Title: "Sprint 1"})
	fx.milestone("sprint 1")

	res := fx.push()

	assert.Equal(t, 1, res.Stats.MilestonesProcessed)
	assert.Zero(t, res.Stats.MilestonesCreated)
	assert.Zero(t, fx.fake.Count("CreateMilestone"))
	assert.Len(t, fx.fake.Milestones(), 1)
	assert.Equal(t, 1, existing.Number)
}

func TestPushSkipsImplicitStories(t *testing.T) {
	fx := newFixture(t)
	m1 := fx.milestone("M1")
	s := &types.Story{RoadmapID: fx.roadmap.ID, MilestoneID: m1.ID, Title: types.ImplicitStoryTitle("M1"), Implicit: true}
	require.NoError(t, fx.store.CreateStory(fx.ctx, s))

	res := fx.push()
	assert.Zero(t, res.Stats.IssuesCreated)
	assert.Empty(t, fx.fake.Issues())
}

func TestPushReportsStaleMappings(t *testing.T) {
	fx := newFixture(t)
	gone := fx.epic("Dropped", "")
	fx.epic("Kept", "")
	fx.push()

	require.NoError(t, fx.store.DeleteEpic(fx.ctx, gone.ID))
	res := fx.push()

	assert.Equal(t, 1, res.Stats.Stale)
	require.Len(t, res.Stale, 1)
	assert.Equal(t, gone.ID, res.Stale[0].LocalEntityID)
	assert.NotNil(t, fx.mapping(gone.ID, types.EntityEpic), "stale mappings are kept")
	assert.Zero(t, res.Stats.IssuesCreated)
	assert.Equal(t, 1, res.Stats.Skipped)
}

func TestPushFailsFastWhileLeaseHeld(t *testing.T) {
	fx := newFixture(t)
	fx.epic("Checkout flow", "")
	dir := t.TempDir()

	lease, err := lockfile.Acquire(context.Background(), dir, fx.roadmap.ID, "pull", 0)
	require.NoError(t, err)

	engine := tracker.NewPushEngine(fx.facade(), fx.store, tracker.WithLogger(logging.Discard()), tracker.WithLease(dir, 0))
	res, err := engine.Push(fx.ctx, fx.roadmap.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockfile.ErrSyncInProgress))
	assert.False(t, res.Success)
	assert.Zero(t, fx.fake.Count("CreateIssue"))

	require.NoError(t, lease.Release())
	res, err = engine.Push(fx.ctx, fx.roadmap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.IssuesCreated)
}
