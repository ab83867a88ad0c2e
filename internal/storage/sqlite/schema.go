package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS roadmaps (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'todo',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS milestones (
    id TEXT PRIMARY KEY,
    roadmap_id TEXT NOT NULL REFERENCES roadmaps(id) ON DELETE CASCADE,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'todo',
    due_date TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_milestones_roadmap ON milestones(roadmap_id);

CREATE TABLE IF NOT EXISTS epics (
    id TEXT PRIMARY KEY,
    roadmap_id TEXT NOT NULL REFERENCES roadmaps(id) ON DELETE CASCADE,
    milestone_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'todo',
    assignee TEXT NOT NULL DEFAULT '',
    labels TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_epics_roadmap ON epics(roadmap_id);

CREATE TABLE IF NOT EXISTS stories (
    id TEXT PRIMARY KEY,
    roadmap_id TEXT NOT NULL REFERENCES roadmaps(id) ON DELETE CASCADE,
    milestone_id TEXT NOT NULL DEFAULT '',
    epic_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'todo',
    assignee TEXT NOT NULL DEFAULT '',
    labels TEXT NOT NULL DEFAULT '',
    implicit INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stories_roadmap ON stories(roadmap_id);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    roadmap_id TEXT NOT NULL REFERENCES roadmaps(id) ON DELETE CASCADE,
    story_id TEXT NOT NULL DEFAULT '',
    milestone_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'todo',
    assignee TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_roadmap ON tasks(roadmap_id);

-- One row per local entity per backend; a remote object maps to at most one local entity.
CREATE TABLE IF NOT EXISTS entity_mappings (
    id TEXT PRIMARY KEY,
    local_entity_id TEXT NOT NULL,
    local_entity_type TEXT NOT NULL,
    local_project_id TEXT NOT NULL DEFAULT '',
    backend_type TEXT NOT NULL,
    remote_entity_id TEXT,
    remote_entity_number TEXT,
    remote_project_id TEXT NOT NULL DEFAULT '',
    remote_project_context TEXT NOT NULL DEFAULT '',
    last_synced_at TEXT,
    last_sync_direction TEXT NOT NULL DEFAULT '',
    sync_data TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_local
    ON entity_mappings(local_entity_id, local_entity_type, backend_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_remote
    ON entity_mappings(remote_entity_id, backend_type)
    WHERE remote_entity_id IS NOT NULL AND remote_entity_id != '';
CREATE INDEX IF NOT EXISTS idx_mappings_number
    ON entity_mappings(remote_project_id, local_entity_type, remote_entity_number);
CREATE INDEX IF NOT EXISTS idx_mappings_project
    ON entity_mappings(local_project_id, backend_type);

CREATE TABLE IF NOT EXISTS project_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
