// Package store defines how the quiz reads and writes its persistent state.
//
// Drivers return *errors.Error values from internal/errors for expected outcomes:
// CodeNotFound for a missing user or category, CodeAlreadyExists for a duplicate email
// and CodeUnavailable when the backing service cannot be reached.
package store

import (
	"context"

	"github.com/victornm/techquiz/internal/domain"
)

// Users is the user account collection.
type Users interface {
	// ListUsers returns every user record in store order, including malformed ones.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// FindUser returns the first user with the given email.
	FindUser(ctx context.Context, email string) (*domain.User, error)

	// CreateUser appends a new account unless one with the same email exists.
	CreateUser(ctx context.Context, u domain.User) error

	// SaveBestScore stores score as the user's best for category only if it is strictly greater
	// than the stored one. A category never played counts as zero.
	SaveBestScore(ctx context.Context, email, category string, score int) (*BestScoreUpdate, error)
}

type BestScoreUpdate struct {
	Previous int
	Updated  bool
}

// Questions is the read-only question bank.
type Questions interface {
	// ListQuestions returns the questions of a category in bank order.
	ListQuestions(ctx context.Context, category string) ([]domain.Question, error)
}
