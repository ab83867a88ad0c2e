// Package memory implements storage.Store in process memory. It enforces the
// same uniqueness rules as the sqlite store and is used by engine tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu sync.RWMutex

	roadmaps   map[string]*types.Roadmap
	milestones map[string]*types.Milestone
	epics      map[string]*types.Epic
	stories    map[string]*types.Story
	tasks      map[string]*types.Task
	mappings   map[string]*types.EntityMapping
	state      map[string]string

	// order records insertion sequence so listings are stable.
	order map[string]int64
	seq   int64

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		roadmaps:   make(map[string]*types.Roadmap),
		milestones: make(map[string]*types.Milestone),
		epics:      make(map[string]*types.Epic),
		stories:    make(map[string]*types.Story),
		tasks:      make(map[string]*types.Task),
		mappings:   make(map[string]*types.EntityMapping),
		state:      make(map[string]string),
		order:      make(map[string]int64),
		now:        time.Now,
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func newID() string { return uuid.NewString() }

// Mappings

func copyMapping(m *types.EntityMapping) *types.EntityMapping {
	if m == nil {
		return nil
	}
	c := *m
	if m.SyncData != nil {
		c.SyncData = make(map[string]string, len(m.SyncData))
		for k, v := range m.SyncData {
			c.SyncData[k] = v
		}
	}
	if m.LastSyncedAt != nil {
		t := *m.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

func (s *Store) findLocal(localID string, localType types.EntityType, backend types.BackendType) *types.EntityMapping {
	for _, m := range s.mappings {
		if m.LocalEntityID == localID && m.LocalEntityType == localType && m.BackendType == backend {
			return m
		}
	}
	return nil
}

func (s *Store) findRemote(remoteID string, backend types.BackendType) *types.EntityMapping {
	if remoteID == "" {
		return nil
	}
	for _, m := range s.mappings {
		if m.RemoteEntityID == remoteID && m.BackendType == backend {
			return m
		}
	}
	return nil
}

// CreateOrUpdateMapping implements storage.MappingStore.
func (s *Store) CreateOrUpdateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(m)
}

func (s *Store) upsertLocked(m *types.EntityMapping) (*types.EntityMapping, error) {
	existing := s.findLocal(m.LocalEntityID, m.LocalEntityType, m.BackendType)
	if holder := s.findRemote(m.RemoteEntityID, m.BackendType); holder != nil && (existing == nil || holder.ID != existing.ID) {
		return nil, &syncerr.MappingIntegrityError{
			LocalID:   m.LocalEntityID,
			LocalType: string(m.LocalEntityType),
			RemoteID:  m.RemoteEntityID,
			Reason:    fmt.Sprintf("remote id already mapped to %s %s", holder.LocalEntityType, holder.LocalEntityID),
		}
	}

	now := s.now().UTC()
	if existing != nil {
		existing.LocalProjectID = m.LocalProjectID
		existing.RemoteEntityID = m.RemoteEntityID
		existing.RemoteEntityNumber = m.RemoteEntityNumber
		existing.RemoteProjectID = m.RemoteProjectID
		existing.RemoteProjectContext = m.RemoteProjectContext
		existing.LastSyncedAt = m.LastSyncedAt
		existing.LastSyncDirection = m.LastSyncDirection
		existing.SyncData = copyMapping(m).SyncData
		existing.UpdatedAt = now
		return copyMapping(existing), nil
	}

	stored := copyMapping(m)
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.mappings[stored.ID] = stored
	return copyMapping(stored), nil
}

// GetByLocalID implements storage.MappingStore.
func (s *Store) GetByLocalID(ctx context.Context, localID string, localType types.EntityType, backend types.BackendType) (*types.EntityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMapping(s.findLocal(localID, localType, backend)), nil
}

// GetByRemoteID implements storage.MappingStore.
func (s *Store) GetByRemoteID(ctx context.Context, remoteID string, backend types.BackendType) (*types.EntityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMapping(s.findRemote(remoteID, backend)), nil
}

// GetByRemoteNumber implements storage.MappingStore.
func (s *Store) GetByRemoteNumber(ctx context.Context, number string, localType types.EntityType, backend types.BackendType, remoteProjectID string) (*types.EntityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *types.EntityMapping
	for _, m := range s.mappings {
		if m.RemoteEntityNumber != number || m.LocalEntityType != localType ||
			m.BackendType != backend || m.RemoteProjectID != remoteProjectID {
			continue
		}
		if found != nil {
			return nil, &syncerr.MappingIntegrityError{
				LocalID:   found.LocalEntityID,
				LocalType: string(localType),
				RemoteID:  number,
				Reason:    "remote number mapped more than once in project " + remoteProjectID,
			}
		}
		found = m
	}
	return copyMapping(found), nil
}

// GetOrCreateMapping implements storage.MappingStore.
func (s *Store) GetOrCreateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, bool, error) {
	if err := m.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findLocal(m.LocalEntityID, m.LocalEntityType, m.BackendType); existing != nil {
		return copyMapping(existing), false, nil
	}
	created, err := s.upsertLocked(m)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// DeleteMapping implements storage.MappingStore.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return fmt.Errorf("delete mapping %s: %w", id, storage.ErrNotFound)
	}
	delete(s.mappings, id)
	return nil
}

// ListMappings implements storage.MappingStore. An empty localProjectID lists all.
func (s *Store) ListMappings(ctx context.Context, localProjectID string, backend types.BackendType) ([]*types.EntityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.EntityMapping
	for _, m := range s.mappings {
		if m.BackendType != backend {
			continue
		}
		if localProjectID != "" && m.LocalProjectID != localProjectID {
			continue
		}
		out = append(out, copyMapping(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocalEntityType != out[j].LocalEntityType {
			return out[i].LocalEntityType < out[j].LocalEntityType
		}
		return out[i].LocalEntityID < out[j].LocalEntityID
	})
	return out, nil
}

// Project state

// GetState implements storage.ProjectState.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key], nil
}

// SetState implements storage.ProjectState.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	return nil
}

// DeleteState implements storage.ProjectState.
func (s *Store) DeleteState(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, key)
	return nil
}

func titleMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
