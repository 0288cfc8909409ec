package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dohr-michael/pokus/internal/storage/sqlitedb"
)

// SQLStore implements Store on the shared SQLite database.
type SQLStore struct {
	db *sqlitedb.DB
}

// NewSQLStore creates a SQLStore. The database lifecycle is owned by the caller.
func NewSQLStore(db *sqlitedb.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Save(ctx context.Context, userID, namespace string, payload []byte) error {
	if err := validateKey(userID, namespace); err != nil {
		return err
	}
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO memory (user_id, namespace, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, namespace) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, userID, namespace, payload, time.Now().UTC())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: save %s/%s: %v", ErrUnavailable, userID, namespace, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, userID, namespace string) ([]byte, error) {
	if err := validateKey(userID, namespace); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.Conn().QueryRowContext(ctx,
		"SELECT data FROM memory WHERE user_id = ? AND namespace = ?", userID, namespace,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: load %s/%s: %v", ErrUnavailable, userID, namespace, err)
	}
	return data, nil
}

func (s *SQLStore) Namespaces(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT namespace FROM memory WHERE user_id = ? ORDER BY namespace", userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list namespaces: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("%w: scan namespace: %v", ErrUnavailable, err)
		}
		result = append(result, ns)
	}
	return result, rows.Err()
}

// Close is a no-op; the shared database is closed by its owner.
func (s *SQLStore) Close() error { return nil }
