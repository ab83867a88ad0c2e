// Package storage defines the persistence interfaces consumed by the sync
// engine: the entity mapping store, the roadmap data service and the
// project-state key/value document.
//
// The sqlite sub-package is the durable implementation; the memory
// sub-package is an in-process implementation used by tests.
package storage

import (
	"context"
	"errors"

	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// ErrNotFound is returned when an update or delete targets a row that does not exist.
// Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint that
// is not a mapping integrity rule (for example a duplicate entity id).
var ErrConflict = errors.New("conflict")

// MappingStore persists EntityMapping rows.
//
// Uniqueness rules:
//   - one row per (local entity id, local entity type, backend)
//   - one row per (remote entity id, backend) when the remote id is set
//
// Lookups return (nil, nil) when nothing matches.
type MappingStore interface {
	// CreateOrUpdateMapping upserts keyed on (local id, local type, backend).
	// It returns *syncerr.MappingIntegrityError when the remote id already
	// belongs to a different local entity.
	CreateOrUpdateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, error)

	GetByLocalID(ctx context.Context, localID string, localType types.EntityType, backend types.BackendType) (*types.EntityMapping, error)
	GetByRemoteID(ctx context.Context, remoteID string, backend types.BackendType) (*types.EntityMapping, error)

	// GetByRemoteNumber is always scoped to one remote project and one local
	// entity type, since numbers repeat across projects.
	GetByRemoteNumber(ctx context.Context, number string, localType types.EntityType, backend types.BackendType, remoteProjectID string) (*types.EntityMapping, error)

	// GetOrCreateMapping returns the existing mapping for m's local key, or
	// creates m. created reports which branch was taken. It is not atomic
	// across processes.
	GetOrCreateMapping(ctx context.Context, m *types.EntityMapping) (mapping *types.EntityMapping, created bool, err error)

	DeleteMapping(ctx context.Context, id string) error
	ListMappings(ctx context.Context, localProjectID string, backend types.BackendType) ([]*types.EntityMapping, error)
}

// RoadmapService is the local planning data the sync engine reads and writes.
// Get and Find methods return (nil, nil) when nothing matches.
type RoadmapService interface {
	CreateRoadmap(ctx context.Context, r *types.Roadmap) error
	GetRoadmap(ctx context.Context, id string) (*types.Roadmap, error)
	FindRoadmapByTitle(ctx context.Context, title string) (*types.Roadmap, error)
	ListRoadmaps(ctx context.Context) ([]*types.Roadmap, error)

	CreateMilestone(ctx context.Context, m *types.Milestone) error
	GetMilestone(ctx context.Context, id string) (*types.Milestone, error)
	FindMilestoneByTitle(ctx context.Context, roadmapID, title string) (*types.Milestone, error)
	ListMilestones(ctx context.Context, roadmapID string) ([]*types.Milestone, error)
	UpdateMilestone(ctx context.Context, m *types.Milestone) error

	CreateEpic(ctx context.Context, e *types.Epic) error
	GetEpic(ctx context.Context, id string) (*types.Epic, error)
	ListEpics(ctx context.Context, roadmapID string) ([]*types.Epic, error)
	UpdateEpic(ctx context.Context, e *types.Epic) error

	CreateStory(ctx context.Context, s *types.Story) error
	GetStory(ctx context.Context, id string) (*types.Story, error)
	FindStoryByTitle(ctx context.Context, roadmapID, title string) (*types.Story, error)
	ListStories(ctx context.Context, roadmapID string) ([]*types.Story, error)
	UpdateStory(ctx context.Context, s *types.Story) error

	CreateTask(ctx context.Context, t *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context, roadmapID string) ([]*types.Task, error)
	UpdateTask(ctx context.Context, t *types.Task) error
}

// ProjectState is a small key/value document. Missing keys read as "".
type ProjectState interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, key string) error
}

// Store bundles every interface a full backend provides.
type Store interface {
	MappingStore
	RoadmapService
	ProjectState
	Close() error
}
