package quiz

import (
	"slices"
	"time"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
)

// Attempt is one run through the questions of a category. It is stored in the session between requests,
// so every field is exported and the countdown is kept as an absolute deadline.
type Attempt struct {
	Category  string                `json:"category"`
	Questions []domain.Question     `json:"questions"`
	Current   int                   `json:"current"`
	Selected  string                `json:"selected,omitempty"`
	Deadline  time.Time             `json:"deadline"`
	Score     int                   `json:"score"`
	Answers   []domain.AnswerRecord `json:"answers"`
}

func NewAttempt(category string, qs []domain.Question, now time.Time, questionTime time.Duration) *Attempt {
	return &Attempt{
		Category:  category,
		Questions: qs,
		Deadline:  now.Add(questionTime),
		Answers:   make([]domain.AnswerRecord, 0, len(qs)),
	}
}

func (a *Attempt) Finished() bool {
	return a.Current >= len(a.Questions)
}

// Expire closes every question whose deadline is not after now, recording "No answer" for each.
// A pending selection is dropped. The following question's countdown starts at the expired deadline.
// It returns the number of questions closed.
func (a *Attempt) Expire(now time.Time, questionTime time.Duration) int {
	n := 0
	for !a.Finished() && !now.Before(a.Deadline) {
		a.record(domain.NoAnswer, false)
		a.Deadline = a.Deadline.Add(questionTime)
		n++
	}
	return n
}

// Select marks option as the choice for the question at index. Selecting again replaces the choice.
func (a *Attempt) Select(index int, option string) error {
	if a.Finished() || index != a.Current {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("question already closed"))
	}

	if !a.Questions[a.Current].HasOption(option) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown option: %q", option))
	}

	a.Selected = option
	return nil
}

func (a *Attempt) CanAdvance() bool {
	return !a.Finished() && a.Selected != ""
}

// Advance grades the selection of the current question and starts a fresh countdown for the next one.
func (a *Attempt) Advance(now time.Time, questionTime time.Duration) error {
	if !a.CanAdvance() {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("select an option first"))
	}

	a.record(a.Selected, true)
	a.Deadline = now.Add(questionTime)
	return nil
}

// Remaining returns the whole units left on the current question, rounded up.
func (a *Attempt) Remaining(now time.Time, unit time.Duration) int {
	d := a.Deadline.Sub(now)
	if d <= 0 || unit <= 0 {
		return 0
	}
	return int((d + unit - 1) / unit)
}

func (a *Attempt) Result() domain.SessionResult {
	return domain.SessionResult{
		Category:    a.Category,
		Score:       a.Score,
		UserAnswers: slices.Clone(a.Answers),
	}
}

func (a *Attempt) record(answer string, answered bool) {
	q := a.Questions[a.Current]
	correct := answered && answer == q.Answer

	a.Answers = append(a.Answers, domain.AnswerRecord{
		Question:   q.Question,
		UserAnswer: answer,
		Answer:     q.Answer,
		IsCorrect:  correct,
	})
	if correct {
		a.Score++
	}

	a.Current++
	a.Selected = ""
}
