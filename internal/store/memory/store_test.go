package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/store"
	"github.com/victornm/techquiz/internal/store/memory"
)

var (
	_ store.Users            = (*memory.Store)(nil)
	_ store.Questions        = (*memory.Store)(nil)
	_ store.QuestionImporter = (*memory.Store)(nil)
)

const bank = `
categories:
  Programming:
    - question: Which keyword declares a constant in Go?
      options: [var, const, let, def]
      answer: const
  Networking:
    - question: Default HTTPS port?
      options: ["80", "443", "8080", "22"]
      answer: "443"
`

func TestStore_LoadQuestions(t *testing.T) {
	s := memory.NewStore()
	require.NoError(t, s.LoadQuestions(strings.NewReader(bank)))

	qs, err := s.ListQuestions(context.Background(), domain.CategoryNetworking)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "443", qs[0].Answer)
	assert.True(t, qs[0].HasOption("443"))

	_, err = s.ListQuestions(context.Background(), domain.CategoryDatabase)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	u := domain.User{Name: "Ann", Email: "ann@x.io", Mobile: "0123456789", Password: "Ab1!"}
	require.NoError(t, s.CreateUser(ctx, u))

	err := s.CreateUser(ctx, domain.User{Name: "Other", Email: "ann@x.io"})
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.User{u}, users)
}

func TestStore_SaveBestScore(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateUser(ctx, domain.User{
		Name:   "Ann",
		Email:  "ann@x.io",
		Scores: map[string]int{domain.CategoryProgramming: 3},
	}))

	up, err := s.SaveBestScore(ctx, "ann@x.io", domain.CategoryProgramming, 2)
	require.NoError(t, err)
	assert.Equal(t, &store.BestScoreUpdate{Previous: 3}, up)

	up, err = s.SaveBestScore(ctx, "ann@x.io", domain.CategoryProgramming, 3)
	require.NoError(t, err)
	assert.False(t, up.Updated, "equal score should not update")

	up, err = s.SaveBestScore(ctx, "ann@x.io", domain.CategoryProgramming, 5)
	require.NoError(t, err)
	assert.Equal(t, &store.BestScoreUpdate{Previous: 3, Updated: true}, up)

	u, err := s.FindUser(ctx, "ann@x.io")
	require.NoError(t, err)
	assert.Equal(t, 5, u.BestScore(domain.CategoryProgramming))

	_, err = s.SaveBestScore(ctx, "nobody@x.io", domain.CategoryProgramming, 1)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
