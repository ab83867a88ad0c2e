package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// Project-state document keys.
const (
	KeyCurrentRoadmap       = "current_roadmap_id"
	KeyRoadmapRemoteMapping = "roadmap_remote_mapping"
	KeyRoadmapRemoteRepos   = "roadmap_remote_repos"
	KeyActiveBackendConfig  = "active_roadmap_backend_config"
)

// StateDocument gives typed access to the project-state keys.
type StateDocument struct {
	kv ProjectState
}

// NewStateDocument wraps a ProjectState.
func NewStateDocument(kv ProjectState) *StateDocument {
	return &StateDocument{kv: kv}
}

// CurrentRoadmapID returns the active roadmap id, or "" when none is set.
func (d *StateDocument) CurrentRoadmapID(ctx context.Context) (string, error) {
	return d.kv.GetState(ctx, KeyCurrentRoadmap)
}

// SetCurrentRoadmapID records the active roadmap.
func (d *StateDocument) SetCurrentRoadmapID(ctx context.Context, id string) error {
	return d.kv.SetState(ctx, KeyCurrentRoadmap, id)
}

// RemoteLinks returns the roadmap id -> remote project id map.
func (d *StateDocument) RemoteLinks(ctx context.Context) (map[string]string, error) {
	return d.readMap(ctx, KeyRoadmapRemoteMapping)
}

// RemoteLink returns the persisted link for a roadmap, or nil when unlinked.
func (d *StateDocument) RemoteLink(ctx context.Context, roadmapID string) (*types.RemoteLink, error) {
	projects, err := d.readMap(ctx, KeyRoadmapRemoteMapping)
	if err != nil {
		return nil, err
	}
	projectID, ok := projects[roadmapID]
	if !ok || projectID == "" {
		return nil, nil
	}
	repos, err := d.readMap(ctx, KeyRoadmapRemoteRepos)
	if err != nil {
		return nil, err
	}
	link := &types.RemoteLink{RoadmapID: roadmapID, ProjectID: projectID}
	if repo := repos[roadmapID]; repo != "" {
		link.Owner, link.Repo, _ = strings.Cut(repo, "/")
	}
	return link, nil
}

// SetRemoteLink persists a roadmap -> project link and its owner/repo.
func (d *StateDocument) SetRemoteLink(ctx context.Context, link types.RemoteLink) error {
	if link.RoadmapID == "" || link.ProjectID == "" {
		return fmt.Errorf("remote link requires roadmap and project ids")
	}
	projects, err := d.readMap(ctx, KeyRoadmapRemoteMapping)
	if err != nil {
		return err
	}
	projects[link.RoadmapID] = link.ProjectID
	if err := d.writeMap(ctx, KeyRoadmapRemoteMapping, projects); err != nil {
		return err
	}

	repos, err := d.readMap(ctx, KeyRoadmapRemoteRepos)
	if err != nil {
		return err
	}
	if link.Owner != "" && link.Repo != "" {
		repos[link.RoadmapID] = link.Context()
	} else {
		delete(repos, link.RoadmapID)
	}
	return d.writeMap(ctx, KeyRoadmapRemoteRepos, repos)
}

// RemoveRemoteLink drops a roadmap's link. Missing links are not an error.
func (d *StateDocument) RemoveRemoteLink(ctx context.Context, roadmapID string) error {
	for _, key := range []string{KeyRoadmapRemoteMapping, KeyRoadmapRemoteRepos} {
		m, err := d.readMap(ctx, key)
		if err != nil {
			return err
		}
		delete(m, roadmapID)
		if err := d.writeMap(ctx, key, m); err != nil {
			return err
		}
	}
	return nil
}

// ActiveCache returns the display cache, or nil when it is empty.
func (d *StateDocument) ActiveCache(ctx context.Context) (*types.ActiveLinkCache, error) {
	raw, err := d.kv.GetState(ctx, KeyActiveBackendConfig)
	if err != nil || raw == "" {
		return nil, err
	}
	var c types.ActiveLinkCache
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyActiveBackendConfig, err)
	}
	return &c, nil
}

// SetActiveCache replaces the display cache.
func (d *StateDocument) SetActiveCache(ctx context.Context, c *types.ActiveLinkCache) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyActiveBackendConfig, err)
	}
	return d.kv.SetState(ctx, KeyActiveBackendConfig, string(data))
}

// ClearActiveCache empties the display cache.
func (d *StateDocument) ClearActiveCache(ctx context.Context) error {
	return d.kv.DeleteState(ctx, KeyActiveBackendConfig)
}

func (d *StateDocument) readMap(ctx context.Context, key string) (map[string]string, error) {
	raw, err := d.kv.GetState(ctx, key)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return m, nil
}

func (d *StateDocument) writeMap(ctx context.Context, key string, m map[string]string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return d.kv.SetState(ctx, key, string(data))
}
