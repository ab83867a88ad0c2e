package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// prepare fills id, default status and timestamps before an insert.
func prepare(id *string, status *types.Status, created, updated *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if *status == "" {
		*status = types.StatusTodo
	}
	now := timeNow().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// checkUpdated maps a zero-row UPDATE to storage.ErrNotFound.
func checkUpdated(res sql.Result, what, id string) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s %s: %w", what, id, storage.ErrNotFound)
	}
	return nil
}

func notFoundIsNil(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// Roadmaps

const roadmapColumns = `id, title, description, status, created_at, updated_at`

func scanRoadmap(row scanner) (*types.Roadmap, error) {
	var (
		r                types.Roadmap
		status           string
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &status, &created, &updated); err != nil {
		return nil, err
	}
	r.Status = types.Status(status)
	r.CreatedAt = parseTimeString(created)
	r.UpdatedAt = parseTimeString(updated)
	return &r, nil
}

// CreateRoadmap implements storage.RoadmapService.
func (s *Store) CreateRoadmap(ctx context.Context, r *types.Roadmap) error {
	prepare(&r.ID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	_, err := s.execContext(ctx, `INSERT INTO roadmaps (`+roadmapColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, string(r.Status), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return wrapDBErrorf(err, "create roadmap %s", r.ID)
}

// GetRoadmap implements storage.RoadmapService.
func (s *Store) GetRoadmap(ctx context.Context, id string) (*types.Roadmap, error) {
	r, err := scanRoadmap(s.db.QueryRowContext(ctx, `SELECT `+roadmapColumns+` FROM roadmaps WHERE id = ?`, id))
	if err = notFoundIsNil(err); err != nil || r == nil {
		return nil, wrapDBErrorf(err, "get roadmap %s", id)
	}
	return r, nil
}

// FindRoadmapByTitle implements storage.RoadmapService.
func (s *Store) FindRoadmapByTitle(ctx context.Context, title string) (*types.Roadmap, error) {
	r, err := scanRoadmap(s.db.QueryRowContext(ctx, `SELECT `+roadmapColumns+` FROM roadmaps
		WHERE lower(trim(title)) = lower(trim(?)) ORDER BY rowid LIMIT 1`, title))
	if err = notFoundIsNil(err); err != nil || r == nil {
		return nil, wrapDBError("find roadmap", err)
	}
	return r, nil
}

// ListRoadmaps implements storage.RoadmapService.
func (s *Store) ListRoadmaps(ctx context.Context) ([]*types.Roadmap, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roadmapColumns+` FROM roadmaps ORDER BY rowid`)
	if err != nil {
		return nil, wrapDBError("list roadmaps", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Roadmap
	for rows.Next() {
		r, err := scanRoadmap(rows)
		if err != nil {
			return nil, wrapDBError("scan roadmap", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("list roadmaps", rows.Err())
}

// Milestones

const milestoneColumns = `id, roadmap_id, title, description, status, due_date, created_at, updated_at`

func scanMilestone(row scanner) (*types.Milestone, error) {
	var (
		m                types.Milestone
		status           string
		due              sql.NullString
		created, updated string
	)
	if err := row.Scan(&m.ID, &m.RoadmapID, &m.Title, &m.Description, &status, &due, &created, &updated); err != nil {
		return nil, err
	}
	m.Status = types.Status(status)
	m.DueDate = parseNullableTimeString(due)
	m.CreatedAt = parseTimeString(created)
	m.UpdatedAt = parseTimeString(updated)
	return &m, nil
}

func (s *Store) queryMilestones(ctx context.Context, where string, args ...any) ([]*types.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, wrapDBError("list milestones", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, wrapDBError("scan milestone", err)
		}
		out = append(out, m)
	}
	return out, wrapDBError("list milestones", rows.Err())
}

// CreateMilestone implements storage.RoadmapService.
func (s *Store) CreateMilestone(ctx context.Context, m *types.Milestone) error {
	prepare(&m.ID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	_, err := s.execContext(ctx, `INSERT INTO milestones (`+milestoneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoadmapID, m.Title, m.Description, string(m.Status), formatNullableTime(m.DueDate),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	return wrapDBErrorf(err, "create milestone %s", m.ID)
}

// GetMilestone implements storage.RoadmapService.
func (s *Store) GetMilestone(ctx context.Context, id string) (*types.Milestone, error) {
	ms, err := s.queryMilestones(ctx, `id = ?`, id)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

// FindMilestoneByTitle implements storage.RoadmapService.
func (s *Store) FindMilestoneByTitle(ctx context.Context, roadmapID, title string) (*types.Milestone, error) {
	ms, err := s.queryMilestones(ctx, `roadmap_id = ? AND lower(trim(title)) = lower(trim(?))`, roadmapID, title)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

// ListMilestones implements storage.RoadmapService.
func (s *Store) ListMilestones(ctx context.Context, roadmapID string) ([]*types.Milestone, error) {
	return s.queryMilestones(ctx, `roadmap_id = ?`, roadmapID)
}

// UpdateMilestone implements storage.RoadmapService.
func (s *Store) UpdateMilestone(ctx context.Context, m *types.Milestone) error {
	m.UpdatedAt = timeNow().UTC()
	res, err := s.execContext(ctx, `UPDATE milestones SET title = ?, description = ?, status = ?, due_date = ?, updated_at = ?
		WHERE id = ?`, m.Title, m.Description, string(m.Status), formatNullableTime(m.DueDate), formatTime(m.UpdatedAt), m.ID)
	if err != nil {
		return wrapDBErrorf(err, "update milestone %s", m.ID)
	}
	return checkUpdated(res, "milestone", m.ID)
}

// Epics

const epicColumns = `id, roadmap_id, milestone_id, title, description, status, assignee, labels, created_at, updated_at`

func scanEpic(row scanner) (*types.Epic, error) {
	var (
		e                types.Epic
		status, labels   string
		created, updated string
	)
	if err := row.Scan(&e.ID, &e.RoadmapID, &e.MilestoneID, &e.Title, &e.Description, &status,
		&e.Assignee, &labels, &created, &updated); err != nil {
		return nil, err
	}
	e.Status = types.Status(status)
	e.Labels = parseJSONStringArray(labels)
	e.CreatedAt = parseTimeString(created)
	e.UpdatedAt = parseTimeString(updated)
	return &e, nil
}

func (s *Store) queryEpics(ctx context.Context, where string, args ...any) ([]*types.Epic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+epicColumns+` FROM epics WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, wrapDBError("list epics", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, wrapDBError("scan epic", err)
		}
		out = append(out, e)
	}
	return out, wrapDBError("list epics", rows.Err())
}

// CreateEpic implements storage.RoadmapService.
func (s *Store) CreateEpic(ctx context.Context, e *types.Epic) error {
	prepare(&e.ID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	_, err := s.execContext(ctx, `INSERT INTO epics (`+epicColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RoadmapID, e.MilestoneID, e.Title, e.Description, string(e.Status), e.Assignee,
		formatJSONStringArray(e.Labels), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	return wrapDBErrorf(err, "create epic %s", e.ID)
}

// GetEpic implements storage.RoadmapService.
func (s *Store) GetEpic(ctx context.Context, id string) (*types.Epic, error) {
	es, err := s.queryEpics(ctx, `id = ?`, id)
	if err != nil || len(es) == 0 {
		return nil, err
	}
	return es[0], nil
}

// ListEpics implements storage.RoadmapService.
func (s *Store) ListEpics(ctx context.Context, roadmapID string) ([]*types.Epic, error) {
	return s.queryEpics(ctx, `roadmap_id = ?`, roadmapID)
}

// UpdateEpic implements storage.RoadmapService.
func (s *Store) UpdateEpic(ctx context.Context, e *types.Epic) error {
	e.UpdatedAt = timeNow().UTC()
	res, err := s.execContext(ctx, `UPDATE epics SET milestone_id = ?, title = ?, description = ?, status = ?,
		assignee = ?, labels = ?, updated_at = ? WHERE id = ?`,
		e.MilestoneID, e.Title, e.Description, string(e.Status), e.Assignee,
		formatJSONStringArray(e.Labels), formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return wrapDBErrorf(err, "update epic %s", e.ID)
	}
	return checkUpdated(res, "epic", e.ID)
}

// Stories

const storyColumns = `id, roadmap_id, milestone_id, epic_id, title, description, status, assignee, labels, implicit, created_at, updated_at`

func scanStory(row scanner) (*types.Story, error) {
	var (
		st               types.Story
		status, labels   string
		implicit         int
		created, updated string
	)
	if err := row.Scan(&st.ID, &st.RoadmapID, &st.MilestoneID, &st.EpicID, &st.Title, &st.Description,
		&status, &st.Assignee, &labels, &implicit, &created, &updated); err != nil {
		return nil, err
	}
	st.Status = types.Status(status)
	st.Labels = parseJSONStringArray(labels)
	st.Implicit = implicit != 0
	st.CreatedAt = parseTimeString(created)
	st.UpdatedAt = parseTimeString(updated)
	return &st, nil
}

func (s *Store) queryStories(ctx context.Context, where string, args ...any) ([]*types.Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, wrapDBError("list stories", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, wrapDBError("scan story", err)
		}
		out = append(out, st)
	}
	return out, wrapDBError("list stories", rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateStory implements storage.RoadmapService.
func (s *Store) CreateStory(ctx context.Context, st *types.Story) error {
	prepare(&st.ID, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	_, err := s.execContext(ctx, `INSERT INTO stories (`+storyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.RoadmapID, st.MilestoneID, st.EpicID, st.Title, st.Description, string(st.Status),
		st.Assignee, formatJSONStringArray(st.Labels), boolToInt(st.Implicit),
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	return wrapDBErrorf(err, "create story %s", st.ID)
}

// GetStory implements storage.RoadmapService.
func (s *Store) GetStory(ctx context.Context, id string) (*types.Story, error) {
	ss, err := s.queryStories(ctx, `id = ?`, id)
	if err != nil || len(ss) == 0 {
		return nil, err
	}
	return ss[0], nil
}

// FindStoryByTitle implements storage.RoadmapService.
func (s *Store) FindStoryByTitle(ctx context.Context, roadmapID, title string) (*types.Story, error) {
	ss, err := s.queryStories(ctx, `roadmap_id = ? AND lower(trim(title)) = lower(trim(?))`, roadmapID, title)
	if err != nil || len(ss) == 0 {
		return nil, err
	}
	return ss[0], nil
}

// ListStories implements storage.RoadmapService.
func (s *Store) ListStories(ctx context.Context, roadmapID string) ([]*types.Story, error) {
	return s.queryStories(ctx, `roadmap_id = ?`, roadmapID)
}

// UpdateStory implements storage.RoadmapService.
func (s *Store) UpdateStory(ctx context.Context, st *types.Story) error {
	st.UpdatedAt = timeNow().UTC()
	res, err := s.execContext(ctx, `UPDATE stories SET milestone_id = ?, epic_id = ?, title = ?, description = ?,
		status = ?, assignee = ?, labels = ?, implicit = ?, updated_at = ? WHERE id = ?`,
		st.MilestoneID, st.EpicID, st.Title, st.Description, string(st.Status), st.Assignee,
		formatJSONStringArray(st.Labels), boolToInt(st.Implicit), formatTime(st.UpdatedAt), st.ID)
	if err != nil {
		return wrapDBErrorf(err, "update story %s", st.ID)
	}
	return checkUpdated(res, "story", st.ID)
}

// Tasks

const taskColumns = `id, roadmap_id, story_id, milestone_id, title, description, status, assignee, created_at, updated_at`

func scanTask(row scanner) (*types.Task, error) {
	var (
		t                types.Task
		status           string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.RoadmapID, &t.StoryID, &t.MilestoneID, &t.Title, &t.Description,
		&status, &t.Assignee, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = types.Status(status)
	t.CreatedAt = parseTimeString(created)
	t.UpdatedAt = parseTimeString(updated)
	return &t, nil
}

func (s *Store) queryTasks(ctx context.Context, where string, args ...any) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, wrapDBError("list tasks", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan task", err)
		}
		out = append(out, t)
	}
	return out, wrapDBError("list tasks", rows.Err())
}

// CreateTask implements storage.RoadmapService.
func (s *Store) CreateTask(ctx context.Context, t *types.Task) error {
	prepare(&t.ID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	_, err := s.execContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RoadmapID, t.StoryID, t.MilestoneID, t.Title, t.Description, string(t.Status),
		t.Assignee, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return wrapDBErrorf(err, "create task %s", t.ID)
}

// GetTask implements storage.RoadmapService.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	ts, err := s.queryTasks(ctx, `id = ?`, id)
	if err != nil || len(ts) == 0 {
		return nil, err
	}
	return ts[0], nil
}

// ListTasks implements storage.RoadmapService.
func (s *Store) ListTasks(ctx context.Context, roadmapID string) ([]*types.Task, error) {
	return s.queryTasks(ctx, `roadmap_id = ?`, roadmapID)
}

// UpdateTask implements storage.RoadmapService.
func (s *Store) UpdateTask(ctx context.Context, t *types.Task) error {
	t.UpdatedAt = timeNow().UTC()
	res, err := s.execContext(ctx, `UPDATE tasks SET story_id = ?, milestone_id = ?, title = ?, description = ?,
		status = ?, assignee = ?, updated_at = ? WHERE id = ?`,
		t.StoryID, t.MilestoneID, t.Title, t.Description, string(t.Status), t.Assignee, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return wrapDBErrorf(err, "update task %s", t.ID)
	}
	return checkUpdated(res, "task", t.ID)
}
