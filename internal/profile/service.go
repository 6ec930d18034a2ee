// Package profile shows a user's best score and rank in every category.
package profile

import (
	"context"
	"slices"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/store"
)

type Config struct {
	Users store.Users
}

type Service struct {
	users store.Users
}

func NewService(c Config) *Service {
	return &Service{
		users: c.Users,
	}
}

type GetProfileRequest struct {
	Identity domain.Identity
}

// GetProfile ranks the user among all stored users, category by category.
// A user missing from the store gets an empty profile with every rank unset.
func (s *Service) GetProfile(ctx context.Context, req GetProfileRequest) (*domain.Profile, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	p := &domain.Profile{
		Name:      req.Identity.Name,
		Email:     req.Identity.Email,
		Standings: make([]domain.Standing, 0, len(domain.Categories())),
	}

	i := slices.IndexFunc(users, func(u domain.User) bool {
		return u.Email == req.Identity.Email
	})

	var me domain.User
	if i >= 0 {
		me = users[i]
		if me.Name != "" {
			p.Name = me.Name
		}
		p.HighestScore = me.HighestScore()
	}

	for _, c := range domain.Categories() {
		st := domain.Standing{
			Category:  c,
			BestScore: me.BestScore(c),
		}
		if i >= 0 {
			st.Rank = rank(users, c, req.Identity.Email)
		}
		p.Standings = append(p.Standings, st)
	}

	return p, nil
}

func rank(users []domain.User, category, email string) int {
	sorted := domain.SortByScore(users, category)
	return slices.IndexFunc(sorted, func(u domain.User) bool {
		return u.Email == email
	}) + 1
}
