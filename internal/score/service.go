// Package score reports a finished attempt and keeps the user's best score per category.
package score

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/session"
	"github.com/victornm/techquiz/internal/store"
)

// Status tells how the best score was affected by a result.
type Status string

const (
	StatusNewHighScore Status = "new_high_score"
	StatusNotBeaten    Status = "not_beaten"
	StatusUserNotFound Status = "user_not_found"
	StatusUpdateFailed Status = "update_failed"
	StatusMissingInfo  Status = "missing_info"
)

var statusMessages = map[Status]string{
	StatusNewHighScore: "New high score saved successfully!",
	StatusNotBeaten:    "You did not beat your previous best score.",
	StatusUserNotFound: "User not found in database.",
	StatusUpdateFailed: "Failed to update score in database.",
	StatusMissingInfo:  "Missing user or category info.",
}

func (s Status) Message() string {
	return statusMessages[s]
}

type Config struct {
	EventBus *event.Bus
	Users    store.Users
	Sessions *session.Service
	Now      func() time.Time
}

type Service struct {
	eb       *event.Bus
	users    store.Users
	sessions *session.Service
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		users:    c.Users,
		sessions: c.Sessions,
		now:      c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Report is the result screen: the per-question analysis plus what happened to the best score.
type Report struct {
	Result       domain.SessionResult
	Total        int
	Accuracy     decimal.Decimal
	PreviousBest int
	Status       Status
}

// Report reads the last finished attempt from the session and saves its score if it beats the stored best.
// Only a missing result is an error, every store outcome is reported through the status.
func (s *Service) Report(ctx context.Context, st *session.State) (*Report, error) {
	r, err := s.sessions.Result(ctx, st.Token)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Result:   *r,
		Total:    len(r.UserAnswers),
		Accuracy: accuracy(r.Score, len(r.UserAnswers)),
	}

	rep.PreviousBest, rep.Status = s.saveBestScore(ctx, st.Identity.Email, r.Category, r.Score)

	return rep, nil
}

func (s *Service) saveBestScore(ctx context.Context, email, category string, score int) (int, Status) {
	if email == "" || category == "" {
		return 0, StatusMissingInfo
	}

	u, err := s.users.SaveBestScore(ctx, email, category, score)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return 0, StatusUserNotFound
		}

		slog.ErrorContext(ctx, "score: save best score failed", "email", email, "category", category, "error", err)
		return 0, StatusUpdateFailed
	}

	if !u.Updated {
		return u.Previous, StatusNotBeaten
	}

	slog.InfoContext(ctx, "score: new best score", "email", email, "category", category, "previous", u.Previous, "score", score)

	s.eb.Publish(ctx, domain.EventBestScoreUpdated{
		Email:      email,
		Category:   category,
		Previous:   u.Previous,
		Score:      score,
		UpdateTime: s.now(),
	})

	return u.Previous, StatusNewHighScore
}

// accuracy is the share of correct answers in percent, rounded to 2 places.
func accuracy(correct, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}
