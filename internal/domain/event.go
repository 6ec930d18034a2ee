package domain

import "time"

const (
	EventNameUserRegistered     = "user.registered"
	EventNameQuizFinished       = "quiz.finished"
	EventNameBestScoreUpdated   = "score.best_updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventUserRegistered struct {
	Email    string
	Username string
}

func (EventUserRegistered) Name() string { return EventNameUserRegistered }

type EventQuizFinished struct {
	Identity Identity
	Result   SessionResult
}

func (EventQuizFinished) Name() string { return EventNameQuizFinished }

type EventBestScoreUpdated struct {
	Email      string
	Category   string
	Previous   int
	Score      int
	UpdateTime time.Time
}

func (EventBestScoreUpdated) Name() string { return EventNameBestScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
