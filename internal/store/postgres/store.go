// Package postgres keeps users, best scores and questions in PostgreSQL.
//
// Unlike the jsonbin driver, every operation touches only the rows it needs, and the best score
// update is a single conditional upsert, so concurrent results for the same user cannot lose an update.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Schema creates the tables used by Store. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	email       TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	mobile      TEXT NOT NULL,
	password    TEXT NOT NULL,
	create_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS best_scores (
	email       TEXT NOT NULL REFERENCES users (email),
	category    TEXT NOT NULL,
	score       INTEGER NOT NULL,
	update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (email, category)
);

CREATE TABLE IF NOT EXISTS questions (
	category TEXT NOT NULL,
	position INTEGER NOT NULL,
	question TEXT NOT NULL,
	options  TEXT[] NOT NULL,
	answer   TEXT NOT NULL,
	PRIMARY KEY (category, position)
);`

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(c Config) *Store {
	return &Store{
		db: c.DB,
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	const stmt = `
SELECT u.name, u.email, u.mobile, u.password,
	COALESCE(jsonb_object_agg(b.category, b.score) FILTER (WHERE b.category IS NOT NULL), '{}'::jsonb)
FROM users u
LEFT JOIN best_scores b ON b.email = u.email
GROUP BY u.email
ORDER BY MIN(u.create_time), u.email;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("list users: %w", err))
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

func (s *Store) FindUser(ctx context.Context, email string) (*domain.User, error) {
	const stmt = `
SELECT u.name, u.email, u.mobile, u.password,
	COALESCE(jsonb_object_agg(b.category, b.score) FILTER (WHERE b.category IS NOT NULL), '{}'::jsonb)
FROM users u
LEFT JOIN best_scores b ON b.email = u.email
WHERE u.email = $1
GROUP BY u.email;`

	rows, err := s.db.Query(ctx, stmt, email)
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("find user: %w", err))
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	const stmt = `INSERT INTO users (email, name, mobile, password) VALUES ($1, $2, $3, $4);`

	_, err := s.db.Exec(ctx, stmt, u.Email, u.Name, u.Mobile, u.Password)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("user already exists: %s", u.Email),
			errors.WithCause(err))
	}

	if err != nil {
		return errors.Unavailable(fmt.Errorf("create user: %w", err))
	}

	return nil
}

// SaveBestScore reads the previous best and conditionally upserts in one statement.
// A zero score never creates a row since it cannot beat the implicit zero.
func (s *Store) SaveBestScore(ctx context.Context, email, category string, score int) (*store.BestScoreUpdate, error) {
	const stmt = `
WITH prev AS (
	SELECT score FROM best_scores WHERE email = $1::text AND category = $2::text
), upserted AS (
	INSERT INTO best_scores (email, category, score, update_time)
	SELECT $1::text, $2::text, $3::int, now() WHERE $3::int > 0
	ON CONFLICT (email, category) DO UPDATE
		SET score = EXCLUDED.score, update_time = EXCLUDED.update_time
		WHERE best_scores.score < EXCLUDED.score
	RETURNING 1
)
SELECT
	EXISTS (SELECT 1 FROM users WHERE email = $1::text),
	COALESCE((SELECT score FROM prev), 0),
	EXISTS (SELECT 1 FROM upserted);`

	var (
		found bool
		up    store.BestScoreUpdate
	)
	err := s.db.QueryRow(ctx, stmt, email, category, score).Scan(&found, &up.Previous, &up.Updated)

	var pgErr *pgconn.PgError
	if (stderrors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation) || (err == nil && !found) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}

	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("save best score: %w", err))
	}

	return &up, nil
}

func (s *Store) ListQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	const stmt = `
SELECT question, options, answer
FROM questions
WHERE category = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, stmt, category)
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("list questions: %w", err))
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.Question, &q.Options, &q.Answer); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if len(qs) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("Category not found: %s", category))
	}

	return qs, nil
}

// ImportQuestions replaces a category of the bank inside one transaction.
func (s *Store) ImportQuestions(ctx context.Context, category string, qs []domain.Question) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM questions WHERE category = $1;`, category); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	rows := make([][]any, 0, len(qs))
	for i, q := range qs {
		rows = append(rows, []any{category, i, q.Question, q.Options, q.Answer})
	}

	if _, err = tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"category", "position", "question", "options", "answer"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

func scanUser(r pgx.CollectableRow) (domain.User, error) {
	var u domain.User
	if err := r.Scan(&u.Name, &u.Email, &u.Mobile, &u.Password, &u.Scores); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
