package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// PushEngine mirrors a roadmap's milestones, epics and stories to GitHub.
type PushEngine struct {
	engine
}

// NewPushEngine builds a push engine. r is normally a fresh *remote.Facade
// so each run starts with an empty cache.
func NewPushEngine(r Remote, s Store, opts ...Option) *PushEngine {
	return &PushEngine{engine: newEngine(r, s, opts)}
}

// Push sends roadmapID to its linked project: milestones first, then epics,
// then stories. The returned error is non-nil only when the run could not
// start (missing link, unknown roadmap, unresolvable project, lease held);
// the result is always populated.
func (e *PushEngine) Push(ctx context.Context, roadmapID string) (res *SyncResult, err error) {
	res = newResult(DirectionPush, roadmapID, e.now())
	ctx, span, start := e.metrics.StartRun(ctx, DirectionPush, roadmapID)
	defer func() {
		res.finish(e.now(), err)
		e.metrics.EndRun(ctx, span, start, DirectionPush, err)
	}()

	roadmap, link, err := e.linkedRoadmap(ctx, roadmapID)
	if err != nil {
		return res, err
	}
	release, err := e.acquire(ctx, roadmap.ID, DirectionPush)
	if err != nil {
		return res, err
	}
	defer release()

	project, err := e.resolveProject(ctx, *link)
	if err != nil {
		return res, err
	}
	t := &target{roadmap: roadmap, link: *link, project: project}
	res.ProjectID = project.ID
	e.logger.Info("push started", "roadmap", roadmap.ID, "project", project.ID, "repo", link.Context())

	e.recordStale(ctx, res)

	numbers, err := e.pushMilestones(ctx, t, res)
	if err != nil {
		return res, err
	}
	if err := e.pushEpics(ctx, t, res, numbers); err != nil {
		return res, err
	}
	if err := e.pushStories(ctx, t, res, numbers); err != nil {
		return res, err
	}

	e.logger.Info("push finished", "roadmap", roadmap.ID,
		"milestones", res.Stats.MilestonesProcessed, "created", res.Stats.IssuesCreated,
		"updated", res.Stats.IssuesUpdated, "skipped", res.Stats.Skipped, "errors", res.Stats.Errors)
	return res, nil
}

// pushMilestones ensures a remote milestone per local milestone and returns
// local milestone id -> remote milestone number.
func (e *PushEngine) pushMilestones(ctx context.Context, t *target, res *SyncResult) (map[string]int, error) {
	milestones, err := e.store.ListMilestones(ctx, t.roadmap.ID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	numbers := make(map[string]int, len(milestones))
	for _, m := range milestones {
		if err := ctx.Err(); err != nil {
			return numbers, err
		}
		res.Stats.MilestonesProcessed++

		remote, created, err := e.remote.GetOrCreateMilestone(ctx, t.link.Owner, t.link.Repo, m.Title, m.Status.RemoteState(), m.DueDate)
		if err != nil {
			e.itemFailed(ctx, res, types.EntityMilestone, m.ID, err)
			continue
		}
		numbers[m.ID] = remote.Number
		if created {
			res.Stats.MilestonesCreated++
			e.item(ctx, res, types.EntityMilestone, outcomeCreated)
		} else {
			e.item(ctx, res, types.EntityMilestone, outcomeSkipped)
		}

		remoteID := remote.NodeID
		if remoteID == "" && remote.ID != 0 {
			remoteID = strconv.FormatInt(remote.ID, 10)
		}
		_, err = e.saveMapping(ctx, &types.EntityMapping{
			LocalEntityID:        m.ID,
			LocalEntityType:      types.EntityMilestone,
			LocalProjectID:       t.roadmap.ID,
			RemoteEntityID:       remoteID,
			RemoteEntityNumber:   strconv.Itoa(remote.Number),
			RemoteProjectID:      t.project.ID,
			RemoteProjectContext: t.context(),
		}, types.DirectionToRemote)
		if err != nil {
			e.itemFailed(ctx, res, types.EntityMilestone, m.ID, fmt.Errorf("save mapping: %w", err))
		}
	}
	return numbers, nil
}

func (e *PushEngine) pushEpics(ctx context.Context, t *target, res *SyncResult, numbers map[string]int) error {
	epics, err := e.store.ListEpics(ctx, t.roadmap.ID)
	if err != nil {
		return fmt.Errorf("list epics: %w", err)
	}
	for _, epic := range epics {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.pushIssue(ctx, t, res, epicItem(epic), numbers)
	}
	return nil
}

func (e *PushEngine) pushStories(ctx context.Context, t *target, res *SyncResult, numbers map[string]int) error {
	stories, err := e.store.ListStories(ctx, t.roadmap.ID)
	if err != nil {
		return fmt.Errorf("list stories: %w", err)
	}
	for _, story := range stories {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Implicit stories only group pulled tasks locally.
		if story.Implicit {
			continue
		}
		e.pushIssue(ctx, t, res, storyItem(story), numbers)
	}
	return nil
}

// pushIssue creates or updates the remote issue for one epic or story.
func (e *PushEngine) pushIssue(ctx context.Context, t *target, res *SyncResult, it issueItem, numbers map[string]int) {
	ms := it.milestone(numbers)

	mapping, err := e.store.GetByLocalID(ctx, it.id, it.entityType, types.BackendGitHub)
	if err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, fmt.Errorf("load mapping: %w", err))
		return
	}

	if mapping == nil || mapping.RemoteEntityNumber == "" {
		e.createIssue(ctx, t, res, it, ms, mapping)
		return
	}

	number, err := strconv.Atoi(mapping.RemoteEntityNumber)
	if err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, fmt.Errorf("mapping has invalid remote number %q", mapping.RemoteEntityNumber))
		return
	}
	current, err := e.remote.GetIssue(ctx, t.link.Owner, t.link.Repo, number)
	if err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, err)
		return
	}
	e.updateIssue(ctx, t, res, it, ms, mapping, current)
}

// updateIssue sends the fields that differ between it and current, then
// records what was pushed on mapping.
func (e *PushEngine) updateIssue(ctx context.Context, t *target, res *SyncResult, it issueItem, ms milestoneTarget, mapping *types.EntityMapping, current *github.RemoteIssue) {
	patch := it.patch(ms, pushedFrom(mapping), current)
	updated := current
	if patch.IsEmpty() {
		res.Stats.Skipped++
		e.item(ctx, res, it.entityType, outcomeSkipped)
		e.logger.Debug("issue unchanged, skipping", "type", it.entityType, "id", it.id, "number", current.Number)
	} else {
		var err error
		updated, err = e.remote.UpdateIssue(ctx, t.link.Owner, t.link.Repo, current.Number, patch)
		if err != nil {
			e.itemFailed(ctx, res, it.entityType, it.id, err)
			return
		}
		res.Stats.IssuesUpdated++
		e.item(ctx, res, it.entityType, outcomeUpdated)
	}

	mapping.RemoteEntityID = updated.RemoteID()
	mapping.RemoteEntityNumber = strconv.Itoa(updated.Number)
	mapping.RemoteProjectID = t.project.ID
	mapping.RemoteProjectContext = t.context()
	it.record(mapping, ms)
	if updated.URL != "" {
		mapping.SetSyncValue(syncKeyURL, updated.URL)
	}
	if _, err := e.saveMapping(ctx, mapping, types.DirectionToRemote); err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, fmt.Errorf("save mapping: %w", err))
	}
}

// createIssue creates the remote issue for an unmapped item. An unmapped
// issue with the same title already under the target milestone is adopted
// instead, so a push interrupted before its mapping was saved does not
// leave a duplicate.
func (e *PushEngine) createIssue(ctx context.Context, t *target, res *SyncResult, it issueItem, ms milestoneTarget, mapping *types.EntityMapping) {
	if mapping == nil {
		mapping = &types.EntityMapping{
			LocalEntityID:   it.id,
			LocalEntityType: it.entityType,
			LocalProjectID:  t.roadmap.ID,
		}
	}

	existing, err := e.findExisting(ctx, t, it, ms)
	if err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, err)
		return
	}
	if existing != nil {
		e.logger.Info("adopting existing remote issue", "type", it.entityType, "id", it.id, "number", existing.Number)
		e.updateIssue(ctx, t, res, it, ms, mapping, existing)
		return
	}

	issue, err := e.remote.CreateIssue(ctx, t.link.Owner, t.link.Repo, it.fields(ms))
	if err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, err)
		return
	}
	res.Stats.IssuesCreated++
	e.item(ctx, res, it.entityType, outcomeCreated)
	e.logger.Info("created remote issue", "type", it.entityType, "id", it.id, "number", issue.Number)

	mapping.RemoteEntityID = issue.RemoteID()
	mapping.RemoteEntityNumber = strconv.Itoa(issue.Number)
	mapping.RemoteProjectID = t.project.ID
	mapping.RemoteProjectContext = t.context()
	it.record(mapping, ms)
	if issue.URL != "" {
		mapping.SetSyncValue(syncKeyURL, issue.URL)
	}
	if _, err := e.saveMapping(ctx, mapping, types.DirectionToRemote); err != nil {
		e.itemFailed(ctx, res, it.entityType, it.id, fmt.Errorf("save mapping: %w", err))
	}
}

// findExisting returns an issue under the item's milestone with the same
// title and the item's type label that no mapping claims yet, or nil.
func (e *PushEngine) findExisting(ctx context.Context, t *target, it issueItem, ms milestoneTarget) (*github.RemoteIssue, error) {
	if !ms.known || ms.number == 0 {
		return nil, nil
	}
	issues, err := e.remote.GetIssuesForMilestone(ctx, t.link.Owner, t.link.Repo, ms.number)
	if err != nil {
		return nil, fmt.Errorf("list milestone issues: %w", err)
	}
	for i := range issues {
		issue := &issues[i]
		if issue.IsPullRequest || !issue.HasLabel(it.typeLabel) ||
			!strings.EqualFold(strings.TrimSpace(issue.Title), strings.TrimSpace(it.title)) {
			continue
		}
		if id := issue.RemoteID(); id != "" {
			claimed, err := e.store.GetByRemoteID(ctx, id, types.BackendGitHub)
			if err != nil {
				return nil, err
			}
			if claimed != nil {
				continue
			}
		}
		return issue, nil
	}
	return nil, nil
}
