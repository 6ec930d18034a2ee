// Package memory keeps users and questions in process memory. It backs tests and local runs.
package memory

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	users     []domain.User
	questions domain.QuestionBank
}

func NewStore() *Store {
	return &Store{
		questions: make(domain.QuestionBank),
	}
}

// SetQuestions replaces the questions of a category.
func (s *Store) SetQuestions(category string, qs []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions[category] = slices.Clone(qs)
}

// LoadQuestions reads a YAML question bank, see store.ReadQuestionBank.
func (s *Store) LoadQuestions(r io.Reader) error {
	bank, err := store.ReadQuestionBank(r)
	if err != nil {
		return err
	}

	for category, qs := range bank {
		s.SetQuestions(category, qs)
	}

	return nil
}

func (s *Store) ImportQuestions(_ context.Context, category string, qs []domain.Question) error {
	s.SetQuestions(category, qs)
	return nil
}

func (s *Store) ListQuestions(_ context.Context, category string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs, ok := s.questions[category]
	if !ok || len(qs) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("Category not found: %s", category))
	}

	return slices.Clone(qs), nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, clone(u))
	}

	return users, nil
}

func (s *Store) FindUser(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(email)
	if i < 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}

	u := clone(s.users[i])
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(u.Email) >= 0 {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("user already exists: %s", u.Email))
	}

	s.users = append(s.users, clone(u))
	return nil
}

func (s *Store) SaveBestScore(_ context.Context, email, category string, score int) (*store.BestScoreUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(email)
	if i < 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}

	u := &s.users[i]
	prev := u.BestScore(category)
	if score <= prev {
		return &store.BestScoreUpdate{Previous: prev}, nil
	}

	if u.Scores == nil {
		u.Scores = make(map[string]int)
	}
	u.Scores[category] = score

	return &store.BestScoreUpdate{Previous: prev, Updated: true}, nil
}

func (s *Store) indexOf(email string) int {
	return slices.IndexFunc(s.users, func(u domain.User) bool {
		return u.Email == email
	})
}

func clone(u domain.User) domain.User {
	u.Scores = maps.Clone(u.Scores)
	return u
}
