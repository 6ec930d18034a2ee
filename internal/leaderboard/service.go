package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/store"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Users    store.Users
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	users  store.Users
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		users:  c.Users,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameBestScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventBestScoreUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	Category string
	// Email marks the row of the current user, if any.
	Email string
}

// GetLeaderboard ranks every well-formed user by their best score in a category.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	if req.Category == "" {
		req.Category = domain.CategoryProgramming
	}

	if !domain.IsCategory(req.Category) {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown category: %s", req.Category))
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	valid := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.Valid() {
			valid = append(valid, u)
		}
	}

	sorted := domain.SortByScore(valid, req.Category)

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, u := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:    i + 1,
			Name:    u.Name,
			Email:   u.Email,
			Score:   u.BestScore(req.Category),
			Current: req.Email != "" && u.Email == req.Email,
		})
	}

	return &domain.Leaderboard{
		Category: req.Category,
		Entries:  entries,
	}, nil
}

// UpdateLeaderboard announces the new standings of the category whose best score changed.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventBestScoreUpdated) error {
	return s.schedulePublishLeaderboard(ctx, e)
}

// schedulePublishLeaderboard publishes at most once per interval and category.
// Best scores of many users can change in a short time, so this reduces the number of published events.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, e domain.EventBestScoreUpdated) error {
	// Works across instances, though a change landing inside the interval is only seen by the next publish.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(e.Category), e.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, e)
}

func (s *Service) publishLeaderboard(ctx context.Context, e domain.EventBestScoreUpdated) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		Category: e.Category,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: category=%s: %w", e.Category, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardTimeKey(category string) string {
	return fmt.Sprintf("%s:leaderboard:%s:time", s.prefix, category)
}
