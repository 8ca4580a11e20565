package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSessionsTable = `
	CREATE TABLE IF NOT EXISTS fpp_sessions (
		id                 TEXT PRIMARY KEY,
		shop               TEXT NOT NULL,
		state              TEXT NOT NULL,
		is_online          BOOLEAN NOT NULL DEFAULT FALSE,
		scope              TEXT NOT NULL DEFAULT '',
		expires            TIMESTAMPTZ,
		access_token       TEXT NOT NULL DEFAULT '',
		online_access_info JSONB,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS fpp_sessions_shop_idx ON fpp_sessions (shop);
`

// PostgresSessionStorage implements SessionStorage using PostgreSQL
type PostgresSessionStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStorage creates a new PostgreSQL-backed session storage
func NewPostgresSessionStorage(pool *pgxpool.Pool) *PostgresSessionStorage {
	return &PostgresSessionStorage{pool: pool}
}

var _ ports.SessionStorage = (*PostgresSessionStorage)(nil)

// Migrate creates the sessions table when missing
func (s *PostgresSessionStorage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("failed to migrate sessions table: %w", err)
	}
	return nil
}

// StoreSession inserts or replaces a session
func (s *PostgresSessionStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	query := `
		INSERT INTO fpp_sessions (
			id, shop, state, is_online, scope,
			expires, access_token, online_access_info, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			shop = EXCLUDED.shop,
			state = EXCLUDED.state,
			is_online = EXCLUDED.is_online,
			scope = EXCLUDED.scope,
			expires = EXCLUDED.expires,
			access_token = EXCLUDED.access_token,
			online_access_info = EXCLUDED.online_access_info,
			updated_at = EXCLUDED.updated_at
	`

	var info []byte
	if session.OnlineAccessInfo != nil {
		var err error
		if info, err = json.Marshal(session.OnlineAccessInfo); err != nil {
			return false, fmt.Errorf("failed to encode online access info: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.Shop,
		session.State,
		session.IsOnline,
		session.Scope,
		session.Expires,
		session.AccessToken,
		info,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	return true, nil
}

// LoadSession retrieves a session by id
func (s *PostgresSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT
			id, shop, state, is_online, scope,
			expires, access_token, online_access_info
		FROM fpp_sessions
		WHERE id = $1
	`

	var session domain.Session
	var info []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Shop,
		&session.State,
		&session.IsOnline,
		&session.Scope,
		&session.Expires,
		&session.AccessToken,
		&info,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if len(info) > 0 {
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{}
		if err := json.Unmarshal(info, session.OnlineAccessInfo); err != nil {
			return nil, fmt.Errorf("failed to decode online access info: %w", err)
		}
	}
	return &session, nil
}

// DeleteSession deletes a session by id
func (s *PostgresSessionStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	if _, err := s.pool.Exec(ctx, `DELETE FROM fpp_sessions WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}
