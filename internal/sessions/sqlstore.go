package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dohr-michael/pokus/internal/storage/sqlitedb"
)

// SQLStore persists checkpoints in the shared SQLite database. The snapshot
// is a JSON blob; turn_count and last_handler are denormalized for listing.
type SQLStore struct {
	db *sqlitedb.DB
}

// NewSQLStore creates a SQLStore. The database lifecycle is owned by the caller.
func NewSQLStore(db *sqlitedb.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var state string
	err := s.db.Conn().QueryRowContext(ctx,
		"SELECT state FROM checkpoints WHERE session_id = ?", id,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return decodeCheckpoint([]byte(state))
}

func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateID(cp.Session.ID); err != nil {
		return err
	}
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, state, turn_count, last_handler, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			turn_count = excluded.turn_count,
			last_handler = excluded.last_handler,
			updated_at = excluded.updated_at
	`, cp.Session.ID, string(data), cp.Session.TurnCount, cp.Session.LastActiveHandler,
		cp.Session.CreatedAt.UTC(), cp.Session.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Session.ID, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.Conn().QueryContext(ctx, "SELECT state FROM checkpoints")
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp, err := decodeCheckpoint([]byte(state))
		if err != nil {
			continue
		}
		result = append(result, cp.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(result)
	return result, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Conn().ExecContext(ctx, "DELETE FROM checkpoints WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the shared database is closed by its owner.
func (s *SQLStore) Close() error { return nil }
