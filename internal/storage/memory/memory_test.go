package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

func taskMapping(localID, remoteID, number, project string) *types.EntityMapping {
	return &types.EntityMapping{
		LocalEntityID:      localID,
		LocalEntityType:    types.EntityTask,
		LocalProjectID:     "rm-1",
		BackendType:        types.BackendGitHub,
		RemoteEntityID:     remoteID,
		RemoteEntityNumber: number,
		RemoteProjectID:    project,
	}
}

func TestCreateOrUpdateMappingUpserts(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.CreateOrUpdateMapping(ctx, taskMapping("t1", "I_1", "1", "PVT_a"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	m := taskMapping("t1", "I_1", "1", "PVT_a")
	m.SetSyncValue("content_hash", "abc")
	second, err := s.CreateOrUpdateMapping(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "abc", second.SyncValue("content_hash"))

	all, err := s.ListMappings(ctx, "rm-1", types.BackendGitHub)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRemoteIDIntegrity(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateOrUpdateMapping(ctx, taskMapping("t1", "I_1", "1", "PVT_a"))
	require.NoError(t, err)

	_, err = s.CreateOrUpdateMapping(ctx, taskMapping("t2", "I_1", "1", "PVT_a"))
	var integrity *syncerr.MappingIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "t2", integrity.LocalID)
	assert.Equal(t, syncerr.KindIntegrity, syncerr.Classify(err))
}

func TestRemoteNumberScopedByProjectAndType(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateOrUpdateMapping(ctx, taskMapping("t1", "I_1", "7", "PVT_a"))
	require.NoError(t, err)
	_, err = s.CreateOrUpdateMapping(ctx, taskMapping("t2", "I_2", "7", "PVT_b"))
	require.NoError(t, err)

	got, err := s.GetByRemoteNumber(ctx, "7", types.EntityTask, types.BackendGitHub, "PVT_b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t2", got.LocalEntityID)

	got, err = s.GetByRemoteNumber(ctx, "7", types.EntityStory, types.BackendGitHub, "PVT_a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetOrCreateMapping(t *testing.T) {
	ctx := context.Background()
	s := New()

	m, created, err := s.GetOrCreateMapping(ctx, taskMapping("t1", "I_1", "1", "PVT_a"))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.GetOrCreateMapping(ctx, taskMapping("t1", "I_9", "9", "PVT_a"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, "I_1", again.RemoteEntityID)
}

func TestMappingsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	m, err := s.CreateOrUpdateMapping(ctx, taskMapping("t1", "I_1", "1", "PVT_a"))
	require.NoError(t, err)
	m.SetSyncValue("content_hash", "mutated")

	got, err := s.GetByRemoteID(ctx, "I_1", types.BackendGitHub)
	require.NoError(t, err)
	assert.Empty(t, got.SyncValue("content_hash"))
}

func TestDeleteMapping(t *testing.T) {
	ctx := context.Background()
	s := New()

	m, err := s.CreateOrUpdateMapping(ctx, taskMapping("t1", "I_1", "1", "PVT_a"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteMapping(ctx, m.ID))

	err = s.DeleteMapping(ctx, m.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	got, err := s.GetByLocalID(ctx, "t1", types.EntityTask, types.BackendGitHub)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRoadmapEntities(t *testing.T) {
	ctx := context.Background()
	s := New()

	rm := &types.Roadmap{Title: "Q3"}
	require.NoError(t, s.CreateRoadmap(ctx, rm))
	require.NotEmpty(t, rm.ID)
	assert.Equal(t, types.StatusTodo, rm.Status)

	for _, title := range []string{"Sprint 2", "Sprint 1"} {
		require.NoError(t, s.CreateMilestone(ctx, &types.Milestone{RoadmapID: rm.ID, Title: title}))
	}
	ms, err := s.ListMilestones(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "Sprint 2", ms[0].Title, "listing keeps insertion order")

	found, err := s.FindMilestoneByTitle(ctx, rm.ID, " sprint 1 ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ms[1].ID, found.ID)

	err = s.CreateEpic(ctx, &types.Epic{RoadmapID: "missing", Title: "x"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	task := &types.Task{RoadmapID: rm.ID, Title: "Write docs"}
	require.NoError(t, s.CreateTask(ctx, task))
	task.Status = types.StatusDone
	require.NoError(t, s.UpdateTask(ctx, task))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, got.Status)

	err = s.UpdateStory(ctx, &types.Story{ID: "nope"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStateDocument(t *testing.T) {
	ctx := context.Background()
	doc := storage.NewStateDocument(New())

	link, err := doc.RemoteLink(ctx, "rm-1")
	require.NoError(t, err)
	assert.Nil(t, link)

	require.NoError(t, doc.SetRemoteLink(ctx, types.RemoteLink{RoadmapID: "rm-1", ProjectID: "PVT_a", Owner: "octo", Repo: "widgets"}))
	link, err = doc.RemoteLink(ctx, "rm-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "octo/widgets", link.Context())

	require.NoError(t, doc.SetActiveCache(ctx, &types.ActiveLinkCache{RoadmapID: "rm-1", ProjectID: "PVT_a"}))
	require.NoError(t, doc.ClearActiveCache(ctx))
	cache, err := doc.ActiveCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, cache)

	require.NoError(t, doc.RemoveRemoteLink(ctx, "rm-1"))
	links, err := doc.RemoteLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}
