package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/resolver"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// Linker binds a roadmap to a remote project. *linking.Linker implements it.
type Linker interface {
	Link(ctx context.Context, roadmapID, owner, repo, ref string) (*types.RemoteLink, error)
}

// PullOptions configures a pull.
type PullOptions struct {
	// ProjectRef links an unlinked roadmap before pulling. With an empty or
	// unknown roadmap id, the roadmap is found or created by project title.
	ProjectRef string
	// Owner and Repo locate ProjectRef.
	Owner string
	Repo  string
}

// PullEngine imports a linked project's issues into the local roadmap.
type PullEngine struct {
	engine
	linker Linker
}

// NewPullEngine builds a pull engine. linker may be nil, in which case a
// ProjectRef is resolved and persisted directly.
func NewPullEngine(r Remote, s Store, linker Linker, opts ...Option) *PullEngine {
	return &PullEngine{engine: newEngine(r, s, opts), linker: linker}
}

// Pull reads the project's issues into roadmapID. Mapped entities take the
// remote status, title, description and assignee. Unmapped issues under a
// milestone without a type label become tasks under the milestone's
// implicit story; every other unmapped issue is skipped.
func (e *PullEngine) Pull(ctx context.Context, roadmapID string, opts PullOptions) (res *SyncResult, err error) {
	res = newResult(DirectionPull, roadmapID, e.now())
	ctx, span, start := e.metrics.StartRun(ctx, DirectionPull, roadmapID)
	defer func() {
		res.finish(e.now(), err)
		e.metrics.EndRun(ctx, span, start, DirectionPull, err)
	}()

	roadmap, link, err := e.prepare(ctx, roadmapID, opts)
	if err != nil {
		return res, err
	}
	res.RoadmapID = roadmap.ID

	release, err := e.acquire(ctx, roadmap.ID, DirectionPull)
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
	e.logger.Info("pull started", "roadmap", roadmap.ID, "project", project.ID, "repo", link.Context())

	stale := e.recordStale(ctx, res)

	issues, err := e.fetchIssues(ctx, t, res)
	if err != nil {
		return res, err
	}
	for i := range issues {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.pullIssue(ctx, t, res, &issues[i], stale)
	}

	e.logger.Info("pull finished", "roadmap", roadmap.ID,
		"created", res.Stats.EntitiesCreated, "updated", res.Stats.EntitiesUpdated,
		"tasks", res.Stats.TasksCreated, "skipped", res.Stats.Skipped, "errors", res.Stats.Errors)
	return res, nil
}

// prepare finds the roadmap and its link, linking opts.ProjectRef first when
// the roadmap is unlinked.
func (e *PullEngine) prepare(ctx context.Context, roadmapID string, opts PullOptions) (*types.Roadmap, *types.RemoteLink, error) {
	ref := strings.TrimSpace(opts.ProjectRef)
	if ref == "" {
		return e.linkedRoadmap(ctx, roadmapID)
	}

	var roadmap *types.Roadmap
	if roadmapID != "" {
		r, err := e.store.GetRoadmap(ctx, roadmapID)
		if err != nil {
			return nil, nil, fmt.Errorf("load roadmap %s: %w", roadmapID, err)
		}
		roadmap = r
	}
	if roadmap != nil {
		link, err := e.state.RemoteLink(ctx, roadmap.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("load link for %s: %w", roadmap.ID, err)
		}
		if link != nil && link.Owner != "" && link.Repo != "" {
			e.logger.Debug("roadmap already linked, ignoring project reference", "roadmap", roadmap.ID, "ref", ref)
			return roadmap, link, nil
		}
	}

	if opts.Owner == "" || opts.Repo == "" {
		return nil, nil, &syncerr.ConfigurationError{Field: "github.repo", Reason: "owner and repo are required to pull a project reference"}
	}
	if roadmap == nil {
		project, err := e.remote.ResolveProject(ctx, resolver.Reference{Raw: ref, Owner: opts.Owner, Repo: opts.Repo})
		if err != nil {
			return nil, nil, fmt.Errorf("resolve project %s: %w", ref, err)
		}
		if roadmap, err = e.roadmapForProject(ctx, roadmapID, project); err != nil {
			return nil, nil, err
		}
	}

	link, err := e.link(ctx, roadmap.ID, opts.Owner, opts.Repo, ref)
	if err != nil {
		return nil, nil, err
	}
	return roadmap, link, nil
}

// roadmapForProject finds the roadmap titled like the project, or creates it.
func (e *PullEngine) roadmapForProject(ctx context.Context, roadmapID string, project *github.RemoteProject) (*types.Roadmap, error) {
	existing, err := e.store.FindRoadmapByTitle(ctx, project.Title)
	if err != nil {
		return nil, fmt.Errorf("find roadmap %q: %w", project.Title, err)
	}
	if existing != nil {
		return existing, nil
	}
	r := &types.Roadmap{ID: roadmapID, Title: project.Title, Status: types.StatusTodo}
	if err := e.store.CreateRoadmap(ctx, r); err != nil {
		return nil, fmt.Errorf("create roadmap %q: %w", project.Title, err)
	}
	e.logger.Info("created roadmap for project", "roadmap", r.ID, "title", r.Title)
	return r, nil
}

func (e *PullEngine) link(ctx context.Context, roadmapID, owner, repo, ref string) (*types.RemoteLink, error) {
	if e.linker != nil {
		link, err := e.linker.Link(ctx, roadmapID, owner, repo, ref)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, &syncerr.ConfigurationError{Field: "roadmap", Reason: "link did not produce a project"}
		}
		return link, nil
	}
	project, err := e.remote.ResolveProject(ctx, resolver.Reference{Raw: ref, Owner: owner, Repo: repo})
	if err != nil {
		return nil, fmt.Errorf("resolve project %s: %w", ref, err)
	}
	link := types.RemoteLink{RoadmapID: roadmapID, ProjectID: project.ID, Owner: owner, Repo: repo}
	if err := e.state.SetRemoteLink(ctx, link); err != nil {
		return nil, fmt.Errorf("persist link: %w", err)
	}
	return &link, nil
}

// fetchIssues returns the issues on the project board, or every repository
// issue when the board yields none. Pull requests and drafts are dropped.
func (e *PullEngine) fetchIssues(ctx context.Context, t *target, res *SyncResult) ([]github.RemoteIssue, error) {
	items, err := e.remote.GetAllProjectItems(ctx, t.project.ID)
	if err != nil {
		if len(items) == 0 {
			res.warn("project items unavailable, using repository issues: %v", err)
		} else {
			res.warn("project items incomplete after %d items: %v", len(items), err)
		}
	}

	var issues []github.RemoteIssue
	for _, item := range items {
		switch {
		case item.ContentType == github.ContentTypeDraftIssue,
			item.ContentType == github.ContentTypePullRequest,
			item.Issue == nil,
			item.Issue.IsPullRequest:
			res.Stats.Skipped++
			e.logger.Debug("skipping project item", "item", item.ID, "type", item.ContentType)
			continue
		}
		issues = append(issues, *item.Issue)
	}
	if len(items) > 0 {
		return issues, nil
	}

	e.logger.Info("project has no items, falling back to repository issues", "repo", t.link.Context())
	all, err := e.remote.ListRepositoryIssues(ctx, t.link.Owner, t.link.Repo)
	if err != nil {
		return nil, fmt.Errorf("list repository issues: %w", err)
	}
	for _, issue := range all {
		if issue.IsPullRequest {
			res.Stats.Skipped++
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// findMapping looks an issue up by remote id, then by number scoped to the
// project: epics and stories first, then tasks. The number lookup only
// applies to issues from the linked repository.
func (e *PullEngine) findMapping(ctx context.Context, t *target, issue *github.RemoteIssue) (*types.EntityMapping, error) {
	if id := issue.RemoteID(); id != "" {
		m, err := e.store.GetByRemoteID(ctx, id, types.BackendGitHub)
		if err != nil || m != nil {
			return m, err
		}
	}
	// Numbers are only unique per repository; a board can mix repositories.
	if !t.inLinkedRepo(issue) {
		return nil, nil
	}
	number := strconv.Itoa(issue.Number)
	for _, et := range []types.EntityType{types.EntityEpic, types.EntityStory, types.EntityTask} {
		m, err := e.store.GetByRemoteNumber(ctx, number, et, types.BackendGitHub, t.project.ID)
		if err != nil {
			return nil, err
		}
		if m != nil && sameRepo(contextRepo(m.RemoteProjectContext), t.link.Context()) {
			return m, nil
		}
	}
	return nil, nil
}

func (e *PullEngine) pullIssue(ctx context.Context, t *target, res *SyncResult, issue *github.RemoteIssue, stale map[string]bool) {
	ref := "#" + strconv.Itoa(issue.Number)
	mapping, err := e.findMapping(ctx, t, issue)
	if err != nil {
		e.itemFailed(ctx, res, types.EntityTask, ref, fmt.Errorf("find mapping: %w", err))
		return
	}

	switch {
	case mapping != nil && stale[mapping.ID]:
		res.Stats.Skipped++
		e.logger.Warn("issue maps to a deleted local entity, skipping",
			"number", issue.Number, "type", mapping.LocalEntityType, "local_id", mapping.LocalEntityID)
	case mapping != nil && mapping.LocalProjectID != "" && mapping.LocalProjectID != t.roadmap.ID:
		res.Stats.Skipped++
		e.logger.Info("issue is mapped in another roadmap, skipping",
			"number", issue.Number, "roadmap", mapping.LocalProjectID)
	case mapping != nil:
		e.updateMapped(ctx, t, res, issue, mapping)
	case isPureTask(issue):
		e.createTask(ctx, t, res, issue)
	default:
		res.Stats.Skipped++
		e.item(ctx, res, types.EntityTask, outcomeSkipped)
		e.logger.Info("unmapped issue is not a plain task, skipping",
			"number", issue.Number, "title", issue.Title, "labels", issue.Labels)
	}
}

// updateMapped copies the remote fields onto the mapped local entity.
func (e *PullEngine) updateMapped(ctx context.Context, t *target, res *SyncResult, issue *github.RemoteIssue, m *types.EntityMapping) {
	f := fieldsOf(issue)
	var (
		changed bool
		found   bool
		err     error
	)
	switch m.LocalEntityType {
	case types.EntityEpic:
		var v *types.Epic
		if v, err = e.store.GetEpic(ctx, m.LocalEntityID); err == nil && v != nil {
			if changed = f.apply(issue, &v.Title, &v.Description, &v.Assignee, &v.Status); changed {
				err = e.store.UpdateEpic(ctx, v)
			}
		}
		found = v != nil
	case types.EntityStory:
		var v *types.Story
		if v, err = e.store.GetStory(ctx, m.LocalEntityID); err == nil && v != nil {
			if changed = f.apply(issue, &v.Title, &v.Description, &v.Assignee, &v.Status); changed {
				err = e.store.UpdateStory(ctx, v)
			}
		}
		found = v != nil
	case types.EntityTask:
		var v *types.Task
		if v, err = e.store.GetTask(ctx, m.LocalEntityID); err == nil && v != nil {
			if changed = f.apply(issue, &v.Title, &v.Description, &v.Assignee, &v.Status); changed {
				err = e.store.UpdateTask(ctx, v)
			}
		}
		found = v != nil
	default:
		res.Stats.Skipped++
		e.logger.Info("issue maps to a non-issue entity, skipping", "number", issue.Number, "type", m.LocalEntityType)
		return
	}
	if err != nil {
		e.itemFailed(ctx, res, m.LocalEntityType, m.LocalEntityID, err)
		return
	}
	if !found {
		res.Stats.Skipped++
		return
	}

	if changed {
		res.Stats.EntitiesUpdated++
		e.item(ctx, res, m.LocalEntityType, outcomeUpdated)
	} else {
		res.Stats.Skipped++
		e.item(ctx, res, m.LocalEntityType, outcomeSkipped)
	}

	m.RemoteEntityID = issue.RemoteID()
	m.RemoteEntityNumber = strconv.Itoa(issue.Number)
	m.RemoteProjectID = t.project.ID
	m.RemoteProjectContext = t.issueContext(issue)
	if issue.URL != "" {
		m.SetSyncValue(syncKeyURL, issue.URL)
	}
	if _, err := e.saveMapping(ctx, m, types.DirectionFromRemote); err != nil {
		e.itemFailed(ctx, res, m.LocalEntityType, m.LocalEntityID, fmt.Errorf("save mapping: %w", err))
	}
}

// createTask applies the pure-task rule: the milestone is found or created by
// title, tasks collect under one implicit story per milestone, and the new
// task is mapped to the issue.
func (e *PullEngine) createTask(ctx context.Context, t *target, res *SyncResult, issue *github.RemoteIssue) {
	ref := "#" + strconv.Itoa(issue.Number)
	msTitle := strings.TrimSpace(issue.Milestone.Title)

	milestone, err := e.store.FindMilestoneByTitle(ctx, t.roadmap.ID, msTitle)
	if err != nil {
		e.itemFailed(ctx, res, types.EntityMilestone, msTitle, err)
		return
	}
	if milestone == nil {
		milestone = &types.Milestone{RoadmapID: t.roadmap.ID, Title: msTitle, Status: types.StatusTodo}
		if err := e.store.CreateMilestone(ctx, milestone); err != nil {
			e.itemFailed(ctx, res, types.EntityMilestone, msTitle, err)
			return
		}
		res.Stats.EntitiesCreated++
		e.item(ctx, res, types.EntityMilestone, outcomeCreated)
	}

	storyTitle := types.ImplicitStoryTitle(milestone.Title)
	story, err := e.implicitStory(ctx, t.roadmap.ID, milestone.ID, storyTitle)
	if err != nil {
		e.itemFailed(ctx, res, types.EntityStory, storyTitle, err)
		return
	}
	if story == nil {
		story = &types.Story{
			RoadmapID:   t.roadmap.ID,
			MilestoneID: milestone.ID,
			Title:       storyTitle,
			Status:      types.StatusTodo,
			Implicit:    true,
		}
		if err := e.store.CreateStory(ctx, story); err != nil {
			e.itemFailed(ctx, res, types.EntityStory, storyTitle, err)
			return
		}
		res.Stats.EntitiesCreated++
		e.item(ctx, res, types.EntityStory, outcomeCreated)
	}

	task := &types.Task{
		RoadmapID:   t.roadmap.ID,
		StoryID:     story.ID,
		MilestoneID: milestone.ID,
		Title:       issue.Title,
		Description: issue.Body,
		Status:      mergeStatus("", issue),
		Assignee:    issue.Assignee(),
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		e.itemFailed(ctx, res, types.EntityTask, ref, err)
		return
	}
	res.Stats.EntitiesCreated++
	res.Stats.TasksCreated++
	e.item(ctx, res, types.EntityTask, outcomeCreated)
	e.logger.Info("created task from issue", "number", issue.Number, "task", task.ID, "milestone", milestone.Title)

	m := &types.EntityMapping{
		LocalEntityID:        task.ID,
		LocalEntityType:      types.EntityTask,
		LocalProjectID:       t.roadmap.ID,
		RemoteEntityID:       issue.RemoteID(),
		RemoteEntityNumber:   strconv.Itoa(issue.Number),
		RemoteProjectID:      t.project.ID,
		RemoteProjectContext: t.issueContext(issue),
	}
	if issue.URL != "" {
		m.SetSyncValue(syncKeyURL, issue.URL)
	}
	if _, err := e.saveMapping(ctx, m, types.DirectionFromRemote); err != nil {
		e.itemFailed(ctx, res, types.EntityTask, task.ID, fmt.Errorf("save mapping: %w", err))
	}
}

// implicitStory returns the story pulled tasks collect under for a
// milestone: an implicit story of that milestone, then an implicit story
// with the expected title, then a story with that title under the milestone.
func (e *PullEngine) implicitStory(ctx context.Context, roadmapID, milestoneID, title string) (*types.Story, error) {
	stories, err := e.store.ListStories(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	var byTitle, authored *types.Story
	for _, st := range stories {
		sameTitle := strings.EqualFold(strings.TrimSpace(st.Title), title)
		switch {
		case st.Implicit && st.MilestoneID == milestoneID:
			return st, nil
		case st.Implicit && sameTitle && byTitle == nil:
			byTitle = st
		case sameTitle && st.MilestoneID == milestoneID && authored == nil:
			authored = st
		}
	}
	if byTitle != nil {
		return byTitle, nil
	}
	return authored, nil
}
