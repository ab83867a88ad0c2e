package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

const mappingColumns = `id, local_entity_id, local_entity_type, local_project_id, backend_type,
	remote_entity_id, remote_entity_number, remote_project_id, remote_project_context,
	last_synced_at, last_sync_direction, sync_data, created_at, updated_at`

func scanMapping(row scanner) (*types.EntityMapping, error) {
	var (
		m                          types.EntityMapping
		localType, backend, dir    string
		remoteID, remoteNumber     sql.NullString
		lastSynced                 sql.NullString
		syncData, created, updated string
	)
	err := row.Scan(&m.ID, &m.LocalEntityID, &localType, &m.LocalProjectID, &backend,
		&remoteID, &remoteNumber, &m.RemoteProjectID, &m.RemoteProjectContext,
		&lastSynced, &dir, &syncData, &created, &updated)
	if err != nil {
		return nil, err
	}
	m.LocalEntityType = types.EntityType(localType)
	m.BackendType = types.BackendType(backend)
	m.RemoteEntityID = remoteID.String
	m.RemoteEntityNumber = remoteNumber.String
	m.LastSyncedAt = parseNullableTimeString(lastSynced)
	m.LastSyncDirection = types.SyncDirection(dir)
	m.SyncData = parseSyncData(syncData)
	m.CreatedAt = parseTimeString(created)
	m.UpdatedAt = parseTimeString(updated)
	return &m, nil
}

// queryOneMapping runs a single-row lookup and maps sql.ErrNoRows to (nil, nil).
func queryOneMapping(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, where string, args ...any) (*types.EntityMapping, error) {
	m, err := scanMapping(q.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM entity_mappings WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("get mapping", err)
	}
	return m, nil
}

func integrityError(m *types.EntityMapping, holder *types.EntityMapping) error {
	reason := "remote id already mapped to another local entity"
	if holder != nil {
		reason = fmt.Sprintf("remote id already mapped to %s %s", holder.LocalEntityType, holder.LocalEntityID)
	}
	return &syncerr.MappingIntegrityError{
		LocalID:   m.LocalEntityID,
		LocalType: string(m.LocalEntityType),
		RemoteID:  m.RemoteEntityID,
		Reason:    reason,
	}
}

// CreateOrUpdateMapping implements storage.MappingStore.
func (s *Store) CreateOrUpdateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var out *types.EntityMapping
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = upsertMapping(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func upsertMapping(ctx context.Context, tx *sql.Tx, m *types.EntityMapping) (*types.EntityMapping, error) {
	if m.RemoteEntityID != "" {
		holder, err := queryOneMapping(ctx, tx, `remote_entity_id = ? AND backend_type = ?`, m.RemoteEntityID, string(m.BackendType))
		if err != nil {
			return nil, err
		}
		if holder != nil && (holder.LocalEntityID != m.LocalEntityID || holder.LocalEntityType != m.LocalEntityType) {
			return nil, integrityError(m, holder)
		}
	}

	syncData, err := formatSyncData(m.SyncData)
	if err != nil {
		return nil, fmt.Errorf("encode sync data: %w", err)
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := formatTime(timeNow())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_mappings (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_entity_id, local_entity_type, backend_type) DO UPDATE SET
			local_project_id = excluded.local_project_id,
			remote_entity_id = excluded.remote_entity_id,
			remote_entity_number = excluded.remote_entity_number,
			remote_project_id = excluded.remote_project_id,
			remote_project_context = excluded.remote_project_context,
			last_synced_at = excluded.last_synced_at,
			last_sync_direction = excluded.last_sync_direction,
			sync_data = excluded.sync_data,
			updated_at = excluded.updated_at
	`, id, m.LocalEntityID, string(m.LocalEntityType), m.LocalProjectID, string(m.BackendType),
		nullString(m.RemoteEntityID), nullString(m.RemoteEntityNumber), m.RemoteProjectID, m.RemoteProjectContext,
		formatNullableTime(m.LastSyncedAt), string(m.LastSyncDirection), syncData, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, integrityError(m, nil)
		}
		return nil, wrapDBErrorf(err, "upsert mapping for %s %s", m.LocalEntityType, m.LocalEntityID)
	}

	return queryOneMapping(ctx, tx, `local_entity_id = ? AND local_entity_type = ? AND backend_type = ?`,
		m.LocalEntityID, string(m.LocalEntityType), string(m.BackendType))
}

// GetByLocalID implements storage.MappingStore.
func (s *Store) GetByLocalID(ctx context.Context, localID string, localType types.EntityType, backend types.BackendType) (*types.EntityMapping, error) {
	return queryOneMapping(ctx, s.db, `local_entity_id = ? AND local_entity_type = ? AND backend_type = ?`,
		localID, string(localType), string(backend))
}

// GetByRemoteID implements storage.MappingStore.
func (s *Store) GetByRemoteID(ctx context.Context, remoteID string, backend types.BackendType) (*types.EntityMapping, error) {
	if remoteID == "" {
		return nil, nil
	}
	return queryOneMapping(ctx, s.db, `remote_entity_id = ? AND backend_type = ?`, remoteID, string(backend))
}

// GetByRemoteNumber implements storage.MappingStore.
func (s *Store) GetByRemoteNumber(ctx context.Context, number string, localType types.EntityType, backend types.BackendType, remoteProjectID string) (*types.EntityMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM entity_mappings
		WHERE remote_entity_number = ? AND local_entity_type = ? AND backend_type = ? AND remote_project_id = ?
		LIMIT 2`, number, string(localType), string(backend), remoteProjectID)
	if err != nil {
		return nil, wrapDBError("get mapping by number", err)
	}
	defer func() { _ = rows.Close() }()

	var found []*types.EntityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, wrapDBError("scan mapping", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("get mapping by number", err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	return nil, &syncerr.MappingIntegrityError{
		LocalID:   found[0].LocalEntityID,
		LocalType: string(localType),
		RemoteID:  number,
		Reason:    "remote number mapped more than once in project " + remoteProjectID,
	}
}

// GetOrCreateMapping implements storage.MappingStore.
func (s *Store) GetOrCreateMapping(ctx context.Context, m *types.EntityMapping) (*types.EntityMapping, bool, error) {
	if err := m.Validate(); err != nil {
		return nil, false, err
	}
	var (
		out     *types.EntityMapping
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := queryOneMapping(ctx, tx, `local_entity_id = ? AND local_entity_type = ? AND backend_type = ?`,
			m.LocalEntityID, string(m.LocalEntityType), string(m.BackendType))
		if err != nil {
			return err
		}
		if existing != nil {
			out, created = existing, false
			return nil
		}
		out, err = upsertMapping(ctx, tx, m)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// DeleteMapping implements storage.MappingStore.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	res, err := s.execContext(ctx, `DELETE FROM entity_mappings WHERE id = ?`, id)
	if err != nil {
		return wrapDBErrorf(err, "delete mapping %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete mapping %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListMappings implements storage.MappingStore. An empty localProjectID lists all.
func (s *Store) ListMappings(ctx context.Context, localProjectID string, backend types.BackendType) ([]*types.EntityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM entity_mappings WHERE backend_type = ?`
	args := []any{string(backend)}
	if localProjectID != "" {
		query += ` AND local_project_id = ?`
		args = append(args, localProjectID)
	}
	query += ` ORDER BY local_entity_type, local_entity_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list mappings", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.EntityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, wrapDBError("scan mapping", err)
		}
		out = append(out, m)
	}
	return out, wrapDBError("list mappings", rows.Err())
}
