package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/techquiz/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated sends the new standings to every ranked user's channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Email, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishBestScoreUpdated tells the player about their new personal best.
func (a *API) PublishBestScoreUpdated(ctx context.Context, e domain.EventBestScoreUpdated) error {
	return a.publishNotification(ctx, e.Email, e.Name(), BestScore{
		Category: e.Category,
		Previous: e.Previous,
		Score:    e.Score,
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.getUserChannel(user), b).Err()
}

func (a *API) getUserChannel(email string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, email)
}
