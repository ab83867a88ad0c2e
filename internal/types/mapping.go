package types

import (
	"fmt"
	"time"
)

// EntityType identifies the kind of local entity a mapping points at.
type EntityType string

// Entity types
const (
	EntityRoadmap   EntityType = "roadmap"
	EntityMilestone EntityType = "milestone"
	EntityEpic      EntityType = "epic"
	EntityStory     EntityType = "story"
	EntityTask      EntityType = "task"
)

// IsValid checks if the entity type value is valid
func (t EntityType) IsValid() bool {
	switch t {
	case EntityRoadmap, EntityMilestone, EntityEpic, EntityStory, EntityTask:
		return true
	}
	return false
}

// BackendType tags a mapping with the remote system it belongs to.
type BackendType string

// Backend types
const (
	BackendGitHub BackendType = "github"
)

// IsValid checks if the backend type value is valid
func (b BackendType) IsValid() bool {
	return b == BackendGitHub
}

// SyncDirection records which way the last successful sync went.
type SyncDirection string

// Sync directions
const (
	DirectionToRemote      SyncDirection = "to_remote"
	DirectionFromRemote    SyncDirection = "from_remote"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// IsValid checks if the direction value is valid
func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionToRemote, DirectionFromRemote, DirectionBidirectional:
		return true
	}
	return false
}

// EntityMapping links one local entity to one remote object for one backend.
//
// RemoteEntityID and RemoteEntityNumber are optional; an empty string means
// absent. Numbers are only unique inside one remote project, so lookups by
// number must also be scoped by RemoteProjectID and LocalEntityType.
type EntityMapping struct {
	ID                   string            `json:"id" yaml:"id"`
	LocalEntityID        string            `json:"local_entity_id" yaml:"local_entity_id"`
	LocalEntityType      EntityType        `json:"local_entity_type" yaml:"local_entity_type"`
	LocalProjectID       string            `json:"local_project_id" yaml:"local_project_id"`
	BackendType          BackendType       `json:"backend_type" yaml:"backend_type"`
	RemoteEntityID       string            `json:"remote_entity_id,omitempty" yaml:"remote_entity_id,omitempty"`
	RemoteEntityNumber   string            `json:"remote_entity_number,omitempty" yaml:"remote_entity_number,omitempty"`
	RemoteProjectID      string            `json:"remote_project_id,omitempty" yaml:"remote_project_id,omitempty"`
	RemoteProjectContext string            `json:"remote_project_context,omitempty" yaml:"remote_project_context,omitempty"`
	LastSyncedAt         *time.Time        `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
	LastSyncDirection    SyncDirection     `json:"last_sync_direction,omitempty" yaml:"last_sync_direction,omitempty"`
	SyncData             map[string]string `json:"sync_data,omitempty" yaml:"sync_data,omitempty"`
	CreatedAt            time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the fields every stored mapping must carry.
func (m *EntityMapping) Validate() error {
	if m.LocalEntityID == "" {
		return fmt.Errorf("local entity id is required")
	}
	if !m.LocalEntityType.IsValid() {
		return fmt.Errorf("invalid local entity type: %q", m.LocalEntityType)
	}
	if !m.BackendType.IsValid() {
		return fmt.Errorf("invalid backend type: %q", m.BackendType)
	}
	if m.LastSyncDirection != "" && !m.LastSyncDirection.IsValid() {
		return fmt.Errorf("invalid sync direction: %q", m.LastSyncDirection)
	}
	return nil
}

// SyncValue returns a value from SyncData, or "" when unset.
func (m *EntityMapping) SyncValue(key string) string {
	if m == nil || m.SyncData == nil {
		return ""
	}
	return m.SyncData[key]
}

// SetSyncValue stores a value in SyncData, allocating the map if needed.
func (m *EntityMapping) SetSyncValue(key, value string) {
	if m.SyncData == nil {
		m.SyncData = make(map[string]string)
	}
	m.SyncData[key] = value
}

// ActiveLinkCache is the display cache for the currently active roadmap's
// remote project. It is rebuilt lazily and cleared on roadmap switch.
type ActiveLinkCache struct {
	RoadmapID     string    `json:"roadmap_id" yaml:"roadmap_id"`
	ProjectID     string    `json:"project_id" yaml:"project_id"`
	Owner         string    `json:"owner" yaml:"owner"`
	Repo          string    `json:"repo" yaml:"repo"`
	ProjectNumber int       `json:"project_number,omitempty" yaml:"project_number,omitempty"`
	ProjectTitle  string    `json:"project_title,omitempty" yaml:"project_title,omitempty"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// RemoteLink is the persisted link from one roadmap to one remote project.
type RemoteLink struct {
	RoadmapID string `json:"roadmap_id" yaml:"roadmap_id"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	Owner     string `json:"owner" yaml:"owner"`
	Repo      string `json:"repo" yaml:"repo"`
}

// Context returns the "owner/repo" label for the link.
func (l *RemoteLink) Context() string {
	return l.Owner + "/" + l.Repo
}
