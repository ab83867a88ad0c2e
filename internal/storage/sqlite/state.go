package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

// SetState upserts a project-state value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.execContext(ctx, `
		INSERT INTO project_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBErrorf(err, "set state %s", key)
}

// GetState returns a project-state value, or "" when the key is unset.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM project_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, wrapDBErrorf(err, "get state %s", key)
}

// DeleteState removes a project-state value.
func (s *Store) DeleteState(ctx context.Context, key string) error {
	_, err := s.execContext(ctx, `DELETE FROM project_state WHERE key = ?`, key)
	return wrapDBErrorf(err, "delete state %s", key)
}

// GetAllState returns every project-state key and value.
func (s *Store) GetAllState(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM project_state ORDER BY key`)
	if err != nil {
		return nil, wrapDBError("list state", err)
	}
	defer func() { _ = rows.Close() }()

	state := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapDBError("scan state", err)
		}
		state[key] = value
	}
	return state, wrapDBError("list state", rows.Err())
}
