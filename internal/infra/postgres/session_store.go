package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-arena-service/internal/domain"
)

const uniqueViolation = "23505"

// SessionStore persists session documents as JSONB rows. The version column
// is authoritative for optimistic saves.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	doc := *sess
	doc.Version = 1
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, code, kind, status, version, data) VALUES ($1, $2, $3, $4, 1, $5)`,
		sess.ID, normalizeCode(sess.Code), string(sess.Kind), string(sess.Status), raw)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.Version = 1
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	return s.loadWhere(ctx, `id = $1`, id)
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (*domain.Session, error) {
	return s.loadWhere(ctx, `code = $1`, normalizeCode(code))
}

func (s *SessionStore) loadWhere(ctx context.Context, cond string, arg string) (*domain.Session, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT data, version FROM sessions WHERE `+cond, arg).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	sess.Version = version
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	doc := *sess
	doc.Version = sess.Version + 1
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET data = $1, status = $2, version = version + 1, updated_at = now()
		 WHERE id = $3 AND version = $4`,
		raw, string(sess.Status), sess.ID, sess.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sess.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return domain.ErrSessionNotFound
		}
		return domain.ErrConflict
	}
	sess.Version = doc.Version
	return nil
}

// ActiveSessionIDs lists sessions whose timers must be re-armed after a restart.
func (s *SessionStore) ActiveSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM sessions WHERE status = $1`, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
