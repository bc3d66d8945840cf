// Package postgres is the PostgreSQL persistence driver.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dkoval/wirechat/internal/model"
	"github.com/dkoval/wirechat/internal/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// Store implements store.Store on a pgx connection pool. The messages
// table is append-only: seq is a BIGSERIAL, message_id carries a unique
// constraint, and no statement in this package updates or deletes rows.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, pings, and runs pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Append(ctx context.Context, msg *model.Message) error {
	// ON CONFLICT DO NOTHING keeps the first writer's row; RETURNING then
	// yields no row, which is our duplicate signal.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (message_id, sender_id, sender_name, recipient_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING seq
	`, msg.MessageID, msg.SenderID, msg.SenderName, msg.RecipientID, msg.Content, msg.Timestamp).Scan(&msg.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("postgres: append: %w", err)
	}
	return nil
}

const messageColumns = `seq, message_id, sender_id, sender_name, recipient_id, content, created_at`

func (s *Store) ListAll(ctx context.Context) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all: %w", err)
	}
	return scanMessages(rows)
}

func (s *Store) ListFor(ctx context.Context, identityID uuid.UUID) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY seq ASC
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list for %s: %w", identityID, err)
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		err := rows.Scan(&msg.Seq, &msg.MessageID, &msg.SenderID, &msg.SenderName,
			&msg.RecipientID, &msg.Content, &msg.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate messages: %w", err)
	}
	return out, nil
}

func (s *Store) GetByMessageID(ctx context.Context, messageID string) (model.Message, error) {
	var msg model.Message
	err := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE message_id = $1
	`, messageID).Scan(&msg.Seq, &msg.MessageID, &msg.SenderID, &msg.SenderName,
		&msg.RecipientID, &msg.Content, &msg.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, store.ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("postgres: get %s: %w", messageID, err)
	}
	return msg, nil
}

func (s *Store) CreateUser(ctx context.Context, user store.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, hashed_password, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.Email, user.HashedPassword, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateID
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, hashed_password, created_at`

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (store.User, error) {
	var user store.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username,
		&user.Email, &user.HashedPassword, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("postgres: get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		var user store.User
		err := rows.Scan(&user.ID, &user.Username, &user.Email,
			&user.HashedPassword, &user.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate users: %w", err)
	}
	return out, nil
}

// Reset drops all rows; test helper only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE messages, users`)
	if err != nil {
		return fmt.Errorf("postgres: reset: %w", err)
	}
	return nil
}
