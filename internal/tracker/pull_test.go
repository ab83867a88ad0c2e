package tracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/linking"
	"github.com/jacobcy/VibeCopilot-sub000/internal/logging"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/tracker"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// boardIssue adds an issue to the repository and to the project board.
func (fx *fixture) boardIssue(i github.RemoteIssue) github.RemoteIssue {
	fx.t.Helper()
	added := fx.fake.AddIssue(i)
	fx.fake.AddProjectIssue(fx.project.ID, added.Number)
	return added
}

func (fx *fixture) remoteMilestone(title string) *github.MilestoneRef {
	m := fx.fake.AddMilestone(github.RemoteMilestone{Title: title})
	return &github.MilestoneRef{Number: m.Number, Title: m.Title}
}

func TestPullCreatesTaskFromMilestoneIssue(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Number: 42, Title: "Fix login", Body: "steps", Milestone: ms, Assignees: []string{"octocat"}})

	res := fx.pull()

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.TasksCreated)
	assert.Equal(t, 3, res.Stats.EntitiesCreated, "milestone, implicit story and task")

	milestone, err := fx.store.FindMilestoneByTitle(fx.ctx, fx.roadmap.ID, "Sprint 1")
	require.NoError(t, err)
	require.NotNil(t, milestone)

	story, err := fx.store.FindStoryByTitle(fx.ctx, fx.roadmap.ID, "Sprint 1 tasks")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.True(t, story.Implicit)
	assert.Equal(t, milestone.ID, story.MilestoneID)

	tasks, err := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "Fix login", task.Title)
	assert.Equal(t, "steps", task.Description)
	assert.Equal(t, "octocat", task.Assignee)
	assert.Equal(t, types.StatusTodo, task.Status)
	assert.Equal(t, story.ID, task.StoryID)
	assert.Equal(t, milestone.ID, task.MilestoneID)

	m, err := fx.store.GetByRemoteNumber(fx.ctx, "42", types.EntityTask, types.BackendGitHub, fx.project.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, task.ID, m.LocalEntityID)
	assert.Equal(t, types.DirectionFromRemote, m.LastSyncDirection)
	assert.NotEmpty(t, m.RemoteEntityID)
}

func TestPullReusesMilestoneAndImplicitStory(t *testing.T) {
	fx := newFixture(t)
	local := fx.milestone("Sprint 1")
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "First", Milestone: ms})
	fx.boardIssue(github.RemoteIssue{Title: "Second", Milestone: ms, State: "closed"})

	res := fx.pull()

	assert.Equal(t, 2, res.Stats.TasksCreated)
	assert.Equal(t, 3, res.Stats.EntitiesCreated, "one story and two tasks")

	milestones, _ := fx.store.ListMilestones(fx.ctx, fx.roadmap.ID)
	require.Len(t, milestones, 1)
	assert.Equal(t, local.ID, milestones[0].ID)

	stories, _ := fx.store.ListStories(fx.ctx, fx.roadmap.ID)
	require.Len(t, stories, 1)

	tasks, _ := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, stories[0].ID, task.StoryID)
	}
	assert.Equal(t, types.StatusDone, tasks[1].Status)
}

func TestPullNeverFabricatesEpicsOrStories(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "No milestone"})
	fx.boardIssue(github.RemoteIssue{Title: "Labelled epic", Milestone: ms, Labels: []string{"Epic"}})
	fx.boardIssue(github.RemoteIssue{Title: "Labelled story", Milestone: ms, Labels: []string{"story"}})

	res := fx.pull()

	assert.Equal(t, 3, res.Stats.Skipped)
	assert.Zero(t, res.Stats.EntitiesCreated)
	epics, _ := fx.store.ListEpics(fx.ctx, fx.roadmap.ID)
	stories, _ := fx.store.ListStories(fx.ctx, fx.roadmap.ID)
	tasks, _ := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	milestones, _ := fx.store.ListMilestones(fx.ctx, fx.roadmap.ID)
	assert.Empty(t, epics)
	assert.Empty(t, stories)
	assert.Empty(t, tasks)
	assert.Empty(t, milestones)
}

func TestPullSkipsPullRequestsAndDrafts(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "A change", Milestone: ms, IsPullRequest: true})
	fx.fake.AddProjectDraft(fx.project.ID, "An idea")
	fx.boardIssue(github.RemoteIssue{Title: "Real task", Milestone: ms})

	res := fx.pull()

	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Equal(t, 1, res.Stats.TasksCreated)
	assert.Zero(t, fx.fake.Count("ListIssues"), "board items are used when present")
}

func TestPullFallsBackToRepositoryIssues(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.fake.AddIssue(github.RemoteIssue{Title: "Off the board", Milestone: ms})
	fx.fake.AddIssue(github.RemoteIssue{Title: "A change", Milestone: ms, IsPullRequest: true})

	res := fx.pull()

	assert.Equal(t, 1, fx.fake.Count("ListIssues"))
	assert.Equal(t, 1, res.Stats.TasksCreated)
	assert.Equal(t, 1, res.Stats.Skipped)
}

func TestPullKeepsPartialBoardResults(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "First", Milestone: ms})
	fx.boardIssue(github.RemoteIssue{Title: "Second", Milestone: ms})
	fx.fake.PageSize = 1
	fx.fake.FailItemsPage = 2

	res := fx.pull()

	assert.Equal(t, 1, res.Stats.TasksCreated)
	assert.NotEmpty(t, res.Warnings)
	assert.Zero(t, fx.fake.Count("ListIssues"))
}

func TestPullIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Number: 42, Title: "Fix login", Milestone: ms})

	fx.pull()
	res := fx.pull()

	assert.Zero(t, res.Stats.EntitiesCreated)
	assert.Zero(t, res.Stats.EntitiesUpdated)
	assert.Equal(t, 1, res.Stats.Skipped)
	tasks, _ := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	assert.Len(t, tasks, 1)
}

func TestPullRemoteWinsOnMappedEntities(t *testing.T) {
	fx := newFixture(t)
	epic := fx.epic("Checkout flow", "")
	fx.push()
	n := fx.fake.Issues()[0].Number

	fx.fake.SetIssue(n, func(i *github.RemoteIssue) {
		i.Title = "Checkout (renamed)"
		i.Body = "edited on GitHub"
		i.State = "closed"
		i.Assignees = []string{"hubot"}
	})

	res := fx.pull()

	assert.Equal(t, 1, res.Stats.EntitiesUpdated)
	assert.Zero(t, res.Stats.TasksCreated)
	got, err := fx.store.GetEpic(fx.ctx, epic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checkout (renamed)", got.Title)
	assert.Equal(t, "edited on GitHub", got.Description)
	assert.Equal(t, types.StatusDone, got.Status)
	assert.Equal(t, "hubot", got.Assignee)

	m := fx.mapping(epic.ID, types.EntityEpic)
	assert.Equal(t, types.DirectionFromRemote, m.LastSyncDirection)
}

func TestPullFindsMappingByScopedNumber(t *testing.T) {
	fx := newFixture(t)
	story := fx.story("Pay with card", "")
	issue := fx.boardIssue(github.RemoteIssue{Title: "Pay with card or wallet", Labels: []string{"story"}})

	_, err := fx.store.CreateOrUpdateMapping(fx.ctx, &types.EntityMapping{
		LocalEntityID:      story.ID,
		LocalEntityType:    types.EntityStory,
		LocalProjectID:     fx.roadmap.ID,
		BackendType:        types.BackendGitHub,
		RemoteEntityNumber: "1",
		RemoteProjectID:    fx.project.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, issue.Number)

	res := fx.pull()

	assert.Equal(t, 1, res.Stats.EntitiesUpdated)
	got, _ := fx.store.GetStory(fx.ctx, story.ID)
	assert.Equal(t, "Pay with card or wallet", got.Title)
	m := fx.mapping(story.ID, types.EntityStory)
	assert.Equal(t, issue.NodeID, m.RemoteEntityID, "the remote id is filled in once known")
}

func TestPullNumberFromOtherProjectDoesNotMatch(t *testing.T) {
	fx := newFixture(t)
	story := fx.story("Elsewhere", "")
	fx.boardIssue(github.RemoteIssue{Title: "Same number, other board", Labels: []string{"story"}})

	_, err := fx.store.CreateOrUpdateMapping(fx.ctx, &types.EntityMapping{
		LocalEntityID:      story.ID,
		LocalEntityType:    types.EntityStory,
		LocalProjectID:     fx.roadmap.ID,
		BackendType:        types.BackendGitHub,
		RemoteEntityNumber: "1",
		RemoteProjectID:    "PVT_other",
	})
	require.NoError(t, err)

	res := fx.pull()

	assert.Zero(t, res.Stats.EntitiesUpdated)
	assert.Equal(t, 1, res.Stats.Skipped)
	got, _ := fx.store.GetStory(fx.ctx, story.ID)
	assert.Equal(t, "Elsewhere", got.Title)
}

func TestPullNumberFromOtherRepositoryDoesNotMatch(t *testing.T) {
	fx := newFixture(t)
	story := fx.story("Checkout", "")
	_, err := fx.store.CreateOrUpdateMapping(fx.ctx, &types.EntityMapping{
		LocalEntityID:        story.ID,
		LocalEntityType:      types.EntityStory,
		LocalProjectID:       fx.roadmap.ID,
		BackendType:          types.BackendGitHub,
		RemoteEntityID:       "I_widgets1",
		RemoteEntityNumber:   "1",
		RemoteProjectID:      fx.project.ID,
		RemoteProjectContext: owner + "/" + repo,
	})
	require.NoError(t, err)

	ms := fx.remoteMilestone("Sprint 1")
	foreign := fx.boardIssue(github.RemoteIssue{Title: "Gadget crash", Repository: "acme/gadgets", Labels: []string{"story"}})
	require.Equal(t, 1, foreign.Number)
	task := fx.boardIssue(github.RemoteIssue{Title: "Gadget docs", Repository: "acme/gadgets", Milestone: ms})

	res := fx.pull()

	assert.Zero(t, res.Stats.EntitiesUpdated)
	assert.Equal(t, 1, res.Stats.TasksCreated)
	got, _ := fx.store.GetStory(fx.ctx, story.ID)
	assert.Equal(t, "Checkout", got.Title)

	m, err := fx.store.GetByRemoteID(fx.ctx, task.NodeID, types.BackendGitHub)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Contains(t, m.RemoteProjectContext, "acme/gadgets")
}

func TestPullDoesNotTakeOverAuthoredStory(t *testing.T) {
	fx := newFixture(t)
	authored := fx.story(types.ImplicitStoryTitle("Sprint 1"), "")
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "Fix login", Milestone: ms})

	res := fx.pull()
	assert.Equal(t, 1, res.Stats.TasksCreated)

	tasks, _ := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	require.Len(t, tasks, 1)
	assert.NotEqual(t, authored.ID, tasks[0].StoryID)
	implicit, err := fx.store.GetStory(fx.ctx, tasks[0].StoryID)
	require.NoError(t, err)
	require.NotNil(t, implicit)
	assert.True(t, implicit.Implicit)

	fx.boardIssue(github.RemoteIssue{Title: "Fix logout", Milestone: ms})
	fx.pull()
	tasks, _ = fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	require.Len(t, tasks, 2)
	assert.Equal(t, tasks[0].StoryID, tasks[1].StoryID)
}

func TestPullIgnoresStaleMappings(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Number: 42, Title: "Fix login", Milestone: ms})
	fx.pull()

	tasks, _ := fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	require.Len(t, tasks, 1)
	require.NoError(t, fx.store.DeleteTask(fx.ctx, tasks[0].ID))

	res := fx.pull()

	assert.Equal(t, 1, res.Stats.Stale)
	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Zero(t, res.Stats.TasksCreated)
	tasks, _ = fx.store.ListTasks(fx.ctx, fx.roadmap.ID)
	assert.Empty(t, tasks)
}

func TestPullUnlinkedWithoutReferenceFails(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, storage.NewStateDocument(fx.store).RemoveRemoteLink(fx.ctx, fx.roadmap.ID))

	res, err := tracker.NewPullEngine(fx.facade(), fx.store, nil, tracker.WithLogger(logging.Discard())).
		Pull(fx.ctx, fx.roadmap.ID, tracker.PullOptions{})

	require.Error(t, err)
	assert.True(t, syncerr.IsConfiguration(err))
	assert.False(t, res.Success)
	assert.Empty(t, fx.fake.Calls())
}

func TestPullLinksProjectReference(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, storage.NewStateDocument(fx.store).RemoveRemoteLink(fx.ctx, fx.roadmap.ID))
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "Fix login", Milestone: ms})

	facade := fx.facade()
	linker := linking.New(facade, fx.store, fx.store, linking.WithLogger(logging.Discard()))
	res, err := tracker.NewPullEngine(facade, fx.store, linker, tracker.WithLogger(logging.Discard())).
		Pull(fx.ctx, fx.roadmap.ID, tracker.PullOptions{ProjectRef: "1", Owner: owner, Repo: repo})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.TasksCreated)

	link, err := storage.NewStateDocument(fx.store).RemoteLink(fx.ctx, fx.roadmap.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, fx.project.ID, link.ProjectID)
}

func TestPullCreatesRoadmapFromProjectTitle(t *testing.T) {
	fx := newFixture(t)
	ms := fx.remoteMilestone("Sprint 1")
	fx.boardIssue(github.RemoteIssue{Title: "Fix login", Milestone: ms})

	res, err := tracker.NewPullEngine(fx.facade(), fx.store, nil, tracker.WithLogger(logging.Discard())).
		Pull(fx.ctx, "", tracker.PullOptions{ProjectRef: fx.project.ID, Owner: owner, Repo: repo})

	require.NoError(t, err)
	require.NotEmpty(t, res.RoadmapID)
	assert.NotEqual(t, fx.roadmap.ID, res.RoadmapID)

	rm, err := fx.store.GetRoadmap(fx.ctx, res.RoadmapID)
	require.NoError(t, err)
	require.NotNil(t, rm)
	assert.Equal(t, "Q3 board", rm.Title)

	tasks, _ := fx.store.ListTasks(fx.ctx, rm.ID)
	assert.Len(t, tasks, 1)
}
