package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// Sync directions as reported in results and metrics.
const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// Item outcomes recorded in metrics.
const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
)

// SyncStats counts what one run did.
type SyncStats struct {
	MilestonesProcessed int `json:"milestones_processed" yaml:"milestones_processed"`
	MilestonesCreated   int `json:"milestones_created" yaml:"milestones_created"`
	IssuesCreated       int `json:"issues_created" yaml:"issues_created"`
	IssuesUpdated       int `json:"issues_updated" yaml:"issues_updated"`
	EntitiesCreated     int `json:"entities_created" yaml:"entities_created"` // Local entities created by pull
	EntitiesUpdated     int `json:"entities_updated" yaml:"entities_updated"` // Local entities updated by pull
	TasksCreated        int `json:"tasks_created" yaml:"tasks_created"`
	Skipped             int `json:"skipped" yaml:"skipped"`
	Stale               int `json:"stale" yaml:"stale"` // Mappings whose local entity is gone
	Errors              int `json:"errors" yaml:"errors"`
}

// ItemError describes one failed item.
type ItemError struct {
	EntityType types.EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID   string           `json:"entity_id" yaml:"entity_id"`
	Kind       string           `json:"kind" yaml:"kind"`
	Message    string           `json:"message" yaml:"message"`
}

// SyncResult is returned by every Push and Pull, even when the run fails
// before processing any item.
type SyncResult struct {
	Direction  string                 `json:"direction" yaml:"direction"`
	RoadmapID  string                 `json:"roadmap_id" yaml:"roadmap_id"`
	ProjectID  string                 `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Success    bool                   `json:"success" yaml:"success"`
	Stats      SyncStats              `json:"stats" yaml:"stats"`
	StartedAt  time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time              `json:"finished_at" yaml:"finished_at"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Errors     []ItemError            `json:"errors,omitempty" yaml:"errors,omitempty"`
	Stale      []*types.EntityMapping `json:"stale,omitempty" yaml:"stale,omitempty"`
	Warnings   []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newResult(direction, roadmapID string, now time.Time) *SyncResult {
	return &SyncResult{Direction: direction, RoadmapID: roadmapID, StartedAt: now.UTC()}
}

func (r *SyncResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// finish stamps the result. err is the run-level error, if any.
func (r *SyncResult) finish(now time.Time, err error) {
	r.FinishedAt = now.UTC()
	if err != nil {
		r.Success = false
		r.Error = err.Error()
		return
	}
	r.Success = r.Stats.Errors == 0
}

// Entities the stale check can look up.
type entityLookup interface {
	GetMilestone(ctx context.Context, id string) (*types.Milestone, error)
	GetEpic(ctx context.Context, id string) (*types.Epic, error)
	GetStory(ctx context.Context, id string) (*types.Story, error)
	GetTask(ctx context.Context, id string) (*types.Task, error)
	GetRoadmap(ctx context.Context, id string) (*types.Roadmap, error)
}

type mappingLister interface {
	ListMappings(ctx context.Context, localProjectID string, backend types.BackendType) ([]*types.EntityMapping, error)
}

// localExists reports whether a mapping's local entity is still present.
func localExists(ctx context.Context, s entityLookup, m *types.EntityMapping) (bool, error) {
	var (
		found bool
		err   error
	)
	switch m.LocalEntityType {
	case types.EntityMilestone:
		var v *types.Milestone
		v, err = s.GetMilestone(ctx, m.LocalEntityID)
		found = v != nil
	case types.EntityEpic:
		var v *types.Epic
		v, err = s.GetEpic(ctx, m.LocalEntityID)
		found = v != nil
	case types.EntityStory:
		var v *types.Story
		v, err = s.GetStory(ctx, m.LocalEntityID)
		found = v != nil
	case types.EntityTask:
		var v *types.Task
		v, err = s.GetTask(ctx, m.LocalEntityID)
		found = v != nil
	case types.EntityRoadmap:
		var v *types.Roadmap
		v, err = s.GetRoadmap(ctx, m.LocalEntityID)
		found = v != nil
	default:
		return false, fmt.Errorf("unknown entity type %q", m.LocalEntityType)
	}
	return found, err
}

// StaleMappings lists the roadmap's GitHub mappings whose local entity no
// longer exists. Stale mappings are reported, never deleted or reused.
func StaleMappings(ctx context.Context, s interface {
	entityLookup
	mappingLister
}, roadmapID string) ([]*types.EntityMapping, error) {
	mappings, err := s.ListMappings(ctx, roadmapID, types.BackendGitHub)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	var stale []*types.EntityMapping
	for _, m := range mappings {
		ok, err := localExists(ctx, s, m)
		if err != nil {
			return nil, fmt.Errorf("check %s %s: %w", m.LocalEntityType, m.LocalEntityID, err)
		}
		if !ok {
			stale = append(stale, m)
		}
	}
	return stale, nil
}

// recordStale runs the stale check for res. Failures become warnings.
func (e *engine) recordStale(ctx context.Context, res *SyncResult) map[string]bool {
	stale, err := StaleMappings(ctx, e.store, res.RoadmapID)
	if err != nil {
		res.warn("stale mapping check failed: %v", err)
		return nil
	}
	ids := make(map[string]bool, len(stale))
	for _, m := range stale {
		ids[m.ID] = true
		e.logger.Warn("stale mapping ignored",
			"type", m.LocalEntityType, "local_id", m.LocalEntityID, "remote_number", m.RemoteEntityNumber)
	}
	res.Stale = stale
	res.Stats.Stale = len(stale)
	return ids
}
