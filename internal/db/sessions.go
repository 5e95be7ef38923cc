package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oscan-intake/pkg"
)

// DefaultSessionTTL matches the lifetime of the auth session.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore keeps intake state in the intake_sessions table so that it
// survives restarts and is shared between replicas.
type SessionStore struct {
	DB  *sql.DB
	TTL time.Duration
}

// NewSessionStore uses DefaultSessionTTL when ttl is not positive.
func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{DB: db, TTL: ttl}
}

func (s *SessionStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// Get returns the stored state; rows older than the TTL are ignored.
func (s *SessionStore) Get(ctx context.Context, key string) (pkg.SessionState, bool, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT state FROM intake_sessions
         WHERE user_key = $1 AND updated_at > NOW() - make_interval(secs => $2)`,
		key, s.ttl().Seconds(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return pkg.SessionState{}, false, nil
	}
	if err != nil {
		return pkg.SessionState{}, false, fmt.Errorf("select session %s: %w", key, err)
	}
	var state pkg.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return pkg.SessionState{}, false, fmt.Errorf("decode session %s: %w", key, err)
	}
	return state, true, nil
}

func (s *SessionStore) Put(ctx context.Context, key string, state pkg.SessionState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO intake_sessions (user_key, state, updated_at)
         VALUES ($1, $2, $3)
         ON CONFLICT (user_key) DO UPDATE
         SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		key, raw, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM intake_sessions WHERE user_key = $1`, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Sweep removes expired rows.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM intake_sessions WHERE updated_at <= NOW() - make_interval(secs => $1)`,
		s.ttl().Seconds())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}
