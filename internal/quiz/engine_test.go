package quiz_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/quiz"
)

const questionTime = 15 * time.Second

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func makeQuestions(n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := range n {
		qs = append(qs, domain.Question{
			Question: fmt.Sprintf("q%d", i+1),
			Options:  []string{"A", "B", "C", "D"},
			Answer:   "B",
		})
	}
	return qs
}

func TestAttempt_AllTimeout(t *testing.T) {
	a := quiz.NewAttempt(domain.CategoryProgramming, makeQuestions(5), t0, questionTime)

	closed := a.Expire(t0.Add(5*questionTime), questionTime)
	assert.Equal(t, 5, closed)
	require.True(t, a.Finished())

	r := a.Result()
	assert.Equal(t, 0, r.Score)
	require.Len(t, r.UserAnswers, 5)
	for i, rec := range r.UserAnswers {
		assert.Equal(t, fmt.Sprintf("q%d", i+1), rec.Question)
		assert.Equal(t, domain.NoAnswer, rec.UserAnswer)
		assert.Equal(t, "B", rec.Answer)
		assert.False(t, rec.IsCorrect)
	}
}

func TestAttempt_Score(t *testing.T) {
	tests := map[string]struct {
		answers   []string
		wantScore int
	}{
		"all correct": {
			answers:   []string{"B", "B", "B"},
			wantScore: 3,
		},
		"none correct": {
			answers:   []string{"A", "C", "D"},
			wantScore: 0,
		},
		"some correct": {
			answers:   []string{"B", "A", "B"},
			wantScore: 2,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			a := quiz.NewAttempt(domain.CategoryNetworking, makeQuestions(len(tt.answers)), t0, questionTime)

			now := t0
			for i, ans := range tt.answers {
				now = now.Add(time.Second)
				require.NoError(t, a.Select(i, ans))
				require.NoError(t, a.Advance(now, questionTime))
			}

			require.True(t, a.Finished())
			r := a.Result()
			assert.Equal(t, tt.wantScore, r.Score)

			correct := 0
			for i, rec := range r.UserAnswers {
				assert.Equal(t, tt.answers[i], rec.UserAnswer)
				assert.Equal(t, rec.UserAnswer == rec.Answer, rec.IsCorrect)
				if rec.IsCorrect {
					correct++
				}
			}
			assert.Equal(t, correct, r.Score, "score should count exact matches")
		})
	}
}

func TestAttempt_TimeoutDropsPendingSelection(t *testing.T) {
	a := quiz.NewAttempt(domain.CategoryDatabase, makeQuestions(2), t0, questionTime)
	require.NoError(t, a.Select(0, "B"))

	a.Expire(t0.Add(questionTime), questionTime)

	require.Len(t, a.Answers, 1)
	assert.Equal(t, domain.NoAnswer, a.Answers[0].UserAnswer)
	assert.False(t, a.Answers[0].IsCorrect)
	assert.Equal(t, 0, a.Score)
	assert.Empty(t, a.Selected)
	assert.Equal(t, t0.Add(2*questionTime), a.Deadline, "next countdown starts at the expired deadline")
}

func TestAttempt_CanAdvance(t *testing.T) {
	a := quiz.NewAttempt(domain.CategoryProgramming, makeQuestions(2), t0, questionTime)
	assert.False(t, a.CanAdvance())

	err := a.Advance(t0, questionTime)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	require.NoError(t, a.Select(0, "A"))
	assert.True(t, a.CanAdvance())

	require.NoError(t, a.Select(0, "B"), "selecting again replaces the choice")
	assert.Equal(t, "B", a.Selected)

	now := t0.Add(4 * time.Second)
	require.NoError(t, a.Advance(now, questionTime))
	assert.Equal(t, now.Add(questionTime), a.Deadline, "manual advance restarts a full countdown")
	assert.False(t, a.CanAdvance())
}

func TestAttempt_Select(t *testing.T) {
	tests := map[string]struct {
		index    int
		option   string
		wantCode errors.Code
	}{
		"unknown option": {
			index:    1,
			option:   "E",
			wantCode: errors.CodeInvalidArgument,
		},
		"closed question": {
			index:    0,
			option:   "A",
			wantCode: errors.CodeFailedPrecondition,
		},
		"question beyond the end": {
			index:    7,
			option:   "A",
			wantCode: errors.CodeFailedPrecondition,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			a := quiz.NewAttempt(domain.CategoryProgramming, makeQuestions(3), t0, questionTime)
			require.NoError(t, a.Select(0, "A"))
			require.NoError(t, a.Advance(t0, questionTime))

			err := a.Select(tt.index, tt.option)
			assert.True(t, errors.Is(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestAttempt_Remaining(t *testing.T) {
	a := quiz.NewAttempt(domain.CategoryProgramming, makeQuestions(1), t0, questionTime)

	assert.Equal(t, 15, a.Remaining(t0, time.Second))
	assert.Equal(t, 15, a.Remaining(t0.Add(100*time.Millisecond), time.Second), "rounds up")
	assert.Equal(t, 1, a.Remaining(t0.Add(14*time.Second), time.Second))
	assert.Equal(t, 0, a.Remaining(t0.Add(20*time.Second), time.Second))
}
