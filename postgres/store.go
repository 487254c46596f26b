// Package postgres implements the datastore interfaces on PostgreSQL
// via pgx. One Store serves user records, session records, and the
// audit log; wire it into the engine builder as all three.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    email            TEXT NOT NULL UNIQUE,
//	    username         TEXT NOT NULL UNIQUE,
//	    password_hash    TEXT NOT NULL,
//	    role             TEXT NOT NULL,
//	    status           SMALLINT NOT NULL DEFAULT 0,
//	    last_login_at    TIMESTAMPTZ,
//	    last_activity_at TIMESTAMPTZ,
//	    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE sessions (
//	    id             UUID PRIMARY KEY,
//	    user_id        UUID NOT NULL REFERENCES users (id),
//	    device         TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    expires_at     TIMESTAMPTZ NOT NULL,
//	    active         BOOLEAN NOT NULL DEFAULT TRUE,
//	    invalidated_at TIMESTAMPTZ
//	);
//
//	CREATE TABLE audit_log (
//	    id         BIGSERIAL PRIMARY KEY,
//	    time       TIMESTAMPTZ NOT NULL,
//	    event      TEXT NOT NULL,
//	    success    BOOLEAN NOT NULL,
//	    user_id    TEXT,
//	    session_id TEXT,
//	    error      TEXT,
//	    fields     JSONB
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailops/authcore"
	"github.com/retailops/authcore/session"
)

const (
	usersTable    = "users"
	sessionsTable = "sessions"
	auditTable    = "audit_log"

	uniqueViolation = "23505"
)

// Store implements authcore.UserStore, session.Store, and
// authcore.AuditStore on one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pool for dsn and verifies connectivity.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	const op = "postgres.NewStore"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) FindUserByIdentifier(ctx context.Context, identifier string) (authcore.User, error) {
	const op = "postgres.FindUserByIdentifier"

	query := fmt.Sprintf(
		"SELECT id, email, username, password_hash, role, status, last_login_at, last_activity_at FROM %s WHERE email = $1 OR username = $1",
		usersTable,
	)

	return s.scanUser(ctx, op, query, identifier)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (authcore.User, error) {
	const op = "postgres.FindUserByID"

	query := fmt.Sprintf(
		"SELECT id, email, username, password_hash, role, status, last_login_at, last_activity_at FROM %s WHERE id = $1",
		usersTable,
	)

	return s.scanUser(ctx, op, query, id)
}

func (s *Store) scanUser(ctx context.Context, op, query string, arg any) (authcore.User, error) {
	var u authcore.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Status, &u.LastLoginAt, &u.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.User{}, authcore.ErrUserNotFound
		}
		return authcore.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u authcore.User) (authcore.User, error) {
	const op = "postgres.CreateUser"

	query := fmt.Sprintf(
		"INSERT INTO %s (email, username, password_hash, role, status) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		usersTable,
	)

	err := s.pool.QueryRow(ctx, query, u.Email, u.Username, u.PasswordHash, u.Role, u.Status).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcore.User{}, authcore.ErrAccountExists
		}
		return authcore.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const op = "postgres.UpdatePassword"

	query := fmt.Sprintf("UPDATE %s SET password_hash = $2 WHERE id = $1", usersTable)

	tag, err := s.pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}

	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	const op = "postgres.UpdateLastLogin"

	query := fmt.Sprintf("UPDATE %s SET last_login_at = $2 WHERE id = $1", usersTable)

	if _, err := s.pool.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) UpdateLastActivity(ctx context.Context, userID string, at time.Time) error {
	const op = "postgres.UpdateLastActivity"

	query := fmt.Sprintf("UPDATE %s SET last_activity_at = $2 WHERE id = $1", usersTable)

	if _, err := s.pool.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Insert(ctx context.Context, sess session.Session) error {
	const op = "postgres.Insert"

	query := fmt.Sprintf(
		"INSERT INTO %s (id, user_id, device, created_at, expires_at, active) VALUES ($1, $2, $3, $4, $5, $6)",
		sessionsTable,
	)

	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.UserID, sess.Device, sess.CreatedAt, sess.ExpiresAt, sess.Active,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	const op = "postgres.Get"

	query := fmt.Sprintf(
		"SELECT id, user_id, device, created_at, expires_at, active, invalidated_at FROM %s WHERE id = $1",
		sessionsTable,
	)

	var sess session.Session
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.UserID, &sess.Device,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.Active, &sess.InvalidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	const op = "postgres.SetActive"

	query := fmt.Sprintf(
		"UPDATE %s SET active = $2, invalidated_at = CASE WHEN $2 THEN NULL ELSE $3 END WHERE id = $1",
		sessionsTable,
	)

	tag, err := s.pool.Exec(ctx, query, id, active, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}

	return nil
}

func (s *Store) InvalidateOthers(ctx context.Context, userID, keepID string, at time.Time) (int64, error) {
	const op = "postgres.InvalidateOthers"

	query := fmt.Sprintf(
		"UPDATE %s SET active = FALSE, invalidated_at = $3 WHERE user_id = $1 AND id <> $2 AND active",
		sessionsTable,
	)

	tag, err := s.pool.Exec(ctx, query, userID, keepID, at)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	const op = "postgres.InvalidateAll"

	query := fmt.Sprintf(
		"UPDATE %s SET active = FALSE, invalidated_at = $2 WHERE user_id = $1 AND active",
		sessionsTable,
	)

	tag, err := s.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "postgres.SweepExpired"

	query := fmt.Sprintf(
		"UPDATE %s SET active = FALSE, invalidated_at = $1 WHERE active AND expires_at <= $1",
		sessionsTable,
	)

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) InsertAuditLog(ctx context.Context, e authcore.AuditEvent) error {
	const op = "postgres.InsertAuditLog"

	query := fmt.Sprintf(
		"INSERT INTO %s (time, event, success, user_id, session_id, error, fields) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		auditTable,
	)

	_, err := s.pool.Exec(ctx, query,
		e.Time, e.Event, e.Success, e.UserID, e.SessionID, e.Error, e.Fields,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
