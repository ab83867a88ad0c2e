package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

func (s *Store) stamp(id string, created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
	if _, ok := s.order[id]; !ok {
		s.seq++
		s.order[id] = s.seq
	}
}

// sortByOrder sorts ids by insertion sequence.
func (s *Store) sortByOrder(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// Roadmaps

// CreateRoadmap implements storage.RoadmapService.
func (s *Store) CreateRoadmap(ctx context.Context, r *types.Roadmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if _, ok := s.roadmaps[r.ID]; ok {
		return fmt.Errorf("create roadmap %s: %w", r.ID, storage.ErrConflict)
	}
	if r.Status == "" {
		r.Status = types.StatusTodo
	}
	s.stamp(r.ID, &r.CreatedAt, &r.UpdatedAt)
	c := *r
	s.roadmaps[r.ID] = &c
	return nil
}

// GetRoadmap implements storage.RoadmapService.
func (s *Store) GetRoadmap(ctx context.Context, id string) (*types.Roadmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roadmaps[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

// FindRoadmapByTitle implements storage.RoadmapService.
func (s *Store) FindRoadmapByTitle(ctx context.Context, title string) (*types.Roadmap, error) {
	roadmaps, _ := s.ListRoadmaps(ctx)
	for _, r := range roadmaps {
		if titleMatch(r.Title, title) {
			return r, nil
		}
	}
	return nil, nil
}

// ListRoadmaps implements storage.RoadmapService.
func (s *Store) ListRoadmaps(ctx context.Context) ([]*types.Roadmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.roadmaps))
	for id := range s.roadmaps {
		ids = append(ids, id)
	}
	s.sortByOrder(ids)
	out := make([]*types.Roadmap, 0, len(ids))
	for _, id := range ids {
		c := *s.roadmaps[id]
		out = append(out, &c)
	}
	return out, nil
}

// Milestones

func copyMilestone(m *types.Milestone) *types.Milestone {
	c := *m
	if m.DueDate != nil {
		d := *m.DueDate
		c.DueDate = &d
	}
	return &c
}

// CreateMilestone implements storage.RoadmapService.
func (s *Store) CreateMilestone(ctx context.Context, m *types.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roadmaps[m.RoadmapID]; !ok {
		return fmt.Errorf("create milestone: roadmap %s: %w", m.RoadmapID, storage.ErrNotFound)
	}
	if m.ID == "" {
		m.ID = newID()
	}
	if _, ok := s.milestones[m.ID]; ok {
		return fmt.Errorf("create milestone %s: %w", m.ID, storage.ErrConflict)
	}
	if m.Status == "" {
		m.Status = types.StatusTodo
	}
	s.stamp(m.ID, &m.CreatedAt, &m.UpdatedAt)
	s.milestones[m.ID] = copyMilestone(m)
	return nil
}

// GetMilestone implements storage.RoadmapService.
func (s *Store) GetMilestone(ctx context.Context, id string) (*types.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, nil
	}
	return copyMilestone(m), nil
}

// FindMilestoneByTitle implements storage.RoadmapService.
func (s *Store) FindMilestoneByTitle(ctx context.Context, roadmapID, title string) (*types.Milestone, error) {
	milestones, _ := s.ListMilestones(ctx, roadmapID)
	for _, m := range milestones {
		if titleMatch(m.Title, title) {
			return m, nil
		}
	}
	return nil, nil
}

// ListMilestones implements storage.RoadmapService.
func (s *Store) ListMilestones(ctx context.Context, roadmapID string) ([]*types.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, m := range s.milestones {
		if m.RoadmapID == roadmapID {
			ids = append(ids, id)
		}
	}
	s.sortByOrder(ids)
	out := make([]*types.Milestone, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMilestone(s.milestones[id]))
	}
	return out, nil
}

// UpdateMilestone implements storage.RoadmapService.
func (s *Store) UpdateMilestone(ctx context.Context, m *types.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[m.ID]; !ok {
		return fmt.Errorf("update milestone %s: %w", m.ID, storage.ErrNotFound)
	}
	s.stamp(m.ID, &m.CreatedAt, &m.UpdatedAt)
	s.milestones[m.ID] = copyMilestone(m)
	return nil
}

// Epics

func copyEpic(e *types.Epic) *types.Epic {
	c := *e
	c.Labels = cloneStrings(e.Labels)
	return &c
}

// CreateEpic implements storage.RoadmapService.
func (s *Store) CreateEpic(ctx context.Context, e *types.Epic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roadmaps[e.RoadmapID]; !ok {
		return fmt.Errorf("create epic: roadmap %s: %w", e.RoadmapID, storage.ErrNotFound)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if _, ok := s.epics[e.ID]; ok {
		return fmt.Errorf("create epic %s: %w", e.ID, storage.ErrConflict)
	}
	if e.Status == "" {
		e.Status = types.StatusTodo
	}
	s.stamp(e.ID, &e.CreatedAt, &e.UpdatedAt)
	s.epics[e.ID] = copyEpic(e)
	return nil
}

// GetEpic implements storage.RoadmapService.
func (s *Store) GetEpic(ctx context.Context, id string) (*types.Epic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.epics[id]
	if !ok {
		return nil, nil
	}
	return copyEpic(e), nil
}

// ListEpics implements storage.RoadmapService.
func (s *Store) ListEpics(ctx context.Context, roadmapID string) ([]*types.Epic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, e := range s.epics {
		if e.RoadmapID == roadmapID {
			ids = append(ids, id)
		}
	}
	s.sortByOrder(ids)
	out := make([]*types.Epic, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyEpic(s.epics[id]))
	}
	return out, nil
}

// UpdateEpic implements storage.RoadmapService.
func (s *Store) UpdateEpic(ctx context.Context, e *types.Epic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.epics[e.ID]; !ok {
		return fmt.Errorf("update epic %s: %w", e.ID, storage.ErrNotFound)
	}
	s.stamp(e.ID, &e.CreatedAt, &e.UpdatedAt)
	s.epics[e.ID] = copyEpic(e)
	return nil
}

// Stories

func copyStory(st *types.Story) *types.Story {
	c := *st
	c.Labels = cloneStrings(st.Labels)
	return &c
}

// CreateStory implements storage.RoadmapService.
func (s *Store) CreateStory(ctx context.Context, st *types.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roadmaps[st.RoadmapID]; !ok {
		return fmt.Errorf("create story: roadmap %s: %w", st.RoadmapID, storage.ErrNotFound)
	}
	if st.ID == "" {
		st.ID = newID()
	}
	if _, ok := s.stories[st.ID]; ok {
		return fmt.Errorf("create story %s: %w", st.ID, storage.ErrConflict)
	}
	if st.Status == "" {
		st.Status = types.StatusTodo
	}
	s.stamp(st.ID, &st.CreatedAt, &st.UpdatedAt)
	s.stories[st.ID] = copyStory(st)
	return nil
}

// GetStory implements storage.RoadmapService.
func (s *Store) GetStory(ctx context.Context, id string) (*types.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stories[id]
	if !ok {
		return nil, nil
	}
	return copyStory(st), nil
}

// FindStoryByTitle implements storage.RoadmapService.
func (s *Store) FindStoryByTitle(ctx context.Context, roadmapID, title string) (*types.Story, error) {
	stories, _ := s.ListStories(ctx, roadmapID)
	for _, st := range stories {
		if titleMatch(st.Title, title) {
			return st, nil
		}
	}
	return nil, nil
}

// ListStories implements storage.RoadmapService.
func (s *Store) ListStories(ctx context.Context, roadmapID string) ([]*types.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, st := range s.stories {
		if st.RoadmapID == roadmapID {
			ids = append(ids, id)
		}
	}
	s.sortByOrder(ids)
	out := make([]*types.Story, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyStory(s.stories[id]))
	}
	return out, nil
}

// UpdateStory implements storage.RoadmapService.
func (s *Store) UpdateStory(ctx context.Context, st *types.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stories[st.ID]; !ok {
		return fmt.Errorf("update story %s: %w", st.ID, storage.ErrNotFound)
	}
	s.stamp(st.ID, &st.CreatedAt, &st.UpdatedAt)
	s.stories[st.ID] = copyStory(st)
	return nil
}

// Tasks

// CreateTask implements storage.RoadmapService.
func (s *Store) CreateTask(ctx context.Context, t *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roadmaps[t.RoadmapID]; !ok {
		return fmt.Errorf("create task: roadmap %s: %w", t.RoadmapID, storage.ErrNotFound)
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("create task %s: %w", t.ID, storage.ErrConflict)
	}
	if t.Status == "" {
		t.Status = types.StatusTodo
	}
	s.stamp(t.ID, &t.CreatedAt, &t.UpdatedAt)
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

// GetTask implements storage.RoadmapService.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// ListTasks implements storage.RoadmapService.
func (s *Store) ListTasks(ctx context.Context, roadmapID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, t := range s.tasks {
		if t.RoadmapID == roadmapID {
			ids = append(ids, id)
		}
	}
	s.sortByOrder(ids)
	out := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		c := *s.tasks[id]
		out = append(out, &c)
	}
	return out, nil
}

// UpdateTask implements storage.RoadmapService.
func (s *Store) UpdateTask(ctx context.Context, t *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("update task %s: %w", t.ID, storage.ErrNotFound)
	}
	s.stamp(t.ID, &t.CreatedAt, &t.UpdatedAt)
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

// DeleteTask removes a task. It exists so tests can exercise stale mappings.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("delete task %s: %w", id, storage.ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

// DeleteEpic removes an epic.
func (s *Store) DeleteEpic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.epics[id]; !ok {
		return fmt.Errorf("delete epic %s: %w", id, storage.ErrNotFound)
	}
	delete(s.epics, id)
	return nil
}
