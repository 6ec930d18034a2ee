package domain

import (
	"slices"
	"sort"
)

const (
	CategoryProgramming      = "Programming"
	CategoryNetworking       = "Networking"
	CategoryDatabase         = "Database"
	CategoryOperatingSystems = "Operating Systems"
)

// NoAnswer is recorded for a question that was left unanswered when its countdown ran out.
const NoAnswer = "No answer"

// DefaultName is the display name used when a user record has no name.
const DefaultName = "Player"

// Categories returns the fixed list of quiz categories in menu order.
func Categories() []string {
	return []string{
		CategoryProgramming,
		CategoryNetworking,
		CategoryDatabase,
		CategoryOperatingSystems,
	}
}

func IsCategory(name string) bool {
	return slices.Contains(Categories(), name)
}

// User is a registered account. Email is the unique key.
//
// Password is kept in plaintext because existing user documents store it that way.
type User struct {
	Name     string
	Email    string
	Mobile   string
	Password string
	// Scores maps a category to the best score ever achieved in it.
	Scores map[string]int
}

// BestScore returns the stored best score for a category, zero when the category was never played.
func (u User) BestScore(category string) int {
	return u.Scores[category]
}

// HighestScore returns the maximum best score across all played categories.
func (u User) HighestScore() int {
	highest := 0
	for _, s := range u.Scores {
		highest = max(highest, s)
	}
	return highest
}

// Valid reports whether the record carries the fields needed to show it on a leaderboard.
func (u User) Valid() bool {
	return u.Email != "" && u.Name != ""
}

// SortByScore returns a copy of users ordered by their best score in category, highest first.
// Users with equal scores keep their store order.
func SortByScore(users []User, category string) []User {
	sorted := slices.Clone(users)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BestScore(category) > sorted[j].BestScore(category)
	})
	return sorted
}

type Question struct {
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

// QuestionBank maps a category name to its questions.
type QuestionBank map[string][]Question

// SessionResult is the outcome of one finished quiz attempt, handed from the quiz to the result screen.
type SessionResult struct {
	Category    string         `json:"category"`
	Score       int            `json:"score"`
	UserAnswers []AnswerRecord `json:"userAnswers"`
}

type AnswerRecord struct {
	Question   string `json:"question"`
	UserAnswer string `json:"userAnswer"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Identity is the logged-in user as remembered by the session.
type Identity struct {
	Email string
	Name  string
}

// Leaderboard represents all valid users ranked by their best score within a category.
// The list is sorted by score in descending order.
type Leaderboard struct {
	Category string
	Entries  []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank    int
	Name    string
	Email   string
	Score   int
	Current bool
}

// Profile is a user's best score and rank in every category.
type Profile struct {
	Name         string
	Email        string
	Standings    []Standing
	HighestScore int
}

type Standing struct {
	Category  string
	BestScore int
	// Rank is 1-based, zero means the user is not ranked.
	Rank int
}
