package api

import (
	"strconv"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/quiz"
	"github.com/victornm/techquiz/internal/score"
)

// RankNone is shown for a category in which the user is not ranked.
const RankNone = "N/A"

type (
	RegisterRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Mobile   string `json:"mobile"`
		Password string `json:"password"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	LoginResponse struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}

	User struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	BestScore struct {
		Category string `json:"category"`
		Previous int    `json:"previous"`
		Score    int    `json:"score"`
	}

	CategoriesResponse struct {
		Categories []string `json:"categories"`
	}

	AnswerRequest struct {
		Index  int    `json:"index"`
		Option string `json:"option"`
	}

	QuizView struct {
		Category  string   `json:"category"`
		Index     int      `json:"index"`
		Total     int      `json:"total"`
		Question  string   `json:"question,omitempty"`
		Options   []string `json:"options,omitempty"`
		Selected  string   `json:"selected,omitempty"`
		Remaining int      `json:"remaining"`
		CanNext   bool     `json:"canNext"`
		Finished  bool     `json:"finished"`
		Next      string   `json:"next,omitempty"`
	}

	ResultReport struct {
		Category     string                `json:"category"`
		Score        int                   `json:"score"`
		Total        int                   `json:"total"`
		Accuracy     string                `json:"accuracy"`
		PreviousBest int                   `json:"previousBest"`
		Status       score.Status          `json:"status"`
		Message      string                `json:"message"`
		UserAnswers  []domain.AnswerRecord `json:"userAnswers"`
	}

	Profile struct {
		Name         string     `json:"name"`
		Email        string     `json:"email"`
		HighestScore int        `json:"highestScore"`
		Standings    []Standing `json:"standings"`
	}

	Standing struct {
		Category  string `json:"category"`
		BestScore int    `json:"bestScore"`
		Rank      string `json:"rank"`
	}

	Leaderboard struct {
		Category string             `json:"category"`
		Entries  []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank    int    `json:"rank"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Score   int    `json:"score"`
		Current bool   `json:"current,omitempty"`
	}
)

func toQuizView(v *quiz.View) QuizView {
	return QuizView{
		Category:  v.Category,
		Index:     v.Index,
		Total:     v.Total,
		Question:  v.Question,
		Options:   v.Options,
		Selected:  v.Selected,
		Remaining: v.Remaining,
		CanNext:   v.CanNext,
		Finished:  v.Finished,
		Next:      v.Next,
	}
}

func toResultReport(r *score.Report) ResultReport {
	answers := r.Result.UserAnswers
	if answers == nil {
		answers = []domain.AnswerRecord{}
	}

	return ResultReport{
		Category:     r.Result.Category,
		Score:        r.Result.Score,
		Total:        r.Total,
		Accuracy:     r.Accuracy.StringFixed(2),
		PreviousBest: r.PreviousBest,
		Status:       r.Status,
		Message:      r.Status.Message(),
		UserAnswers:  answers,
	}
}

func toProfile(p *domain.Profile) Profile {
	out := Profile{
		Name:         p.Name,
		Email:        p.Email,
		HighestScore: p.HighestScore,
		Standings:    make([]Standing, 0, len(p.Standings)),
	}

	for _, st := range p.Standings {
		rank := RankNone
		if st.Rank > 0 {
			rank = strconv.Itoa(st.Rank)
		}

		out.Standings = append(out.Standings, Standing{
			Category:  st.Category,
			BestScore: st.BestScore,
			Rank:      rank,
		})
	}

	return out
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		Category: l.Category,
		Entries:  make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:    e.Rank,
			Name:    e.Name,
			Email:   e.Email,
			Score:   e.Score,
			Current: e.Current,
		})
	}

	return out
}
