// Package quiz runs timed multiple-choice attempts. The attempt lives in the session, and every call
// first closes the questions whose countdown has run out, so no background ticker is needed.
package quiz

import (
	"context"
	"log/slog"
	"time"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/session"
	"github.com/victornm/techquiz/internal/store"
)

const (
	DefaultQuestionUnits = 15
	DefaultUnit          = time.Second
)

// ResultPath is where the client goes once the attempt is finished.
const ResultPath = "/results"

type Config struct {
	Questions store.Questions
	Sessions  *session.Service
	EventBus  *event.Bus

	// QuestionUnits is the countdown of a single question, in Unit.
	QuestionUnits int
	Unit          time.Duration

	Now func() time.Time
}

type Service struct {
	questions store.Questions
	sessions  *session.Service
	eb        *event.Bus

	units int
	unit  time.Duration
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		questions: c.Questions,
		sessions:  c.Sessions,
		eb:        c.EventBus,
		units:     c.QuestionUnits,
		unit:      c.Unit,
		now:       c.Now,
	}

	if s.units <= 0 {
		s.units = DefaultQuestionUnits
	}
	if s.unit <= 0 {
		s.unit = DefaultUnit
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// View is what the quiz screen shows. The correct answer is never part of it.
type View struct {
	Category  string
	Index     int
	Total     int
	Question  string
	Options   []string
	Selected  string
	Remaining int
	CanNext   bool
	Finished  bool
	Next      string
}

type StartRequest struct {
	Category string
}

// Start loads the questions of a category and begins a new attempt, replacing any attempt in progress.
func (s *Service) Start(ctx context.Context, st *session.State, req StartRequest) (*View, error) {
	qs, err := s.questions.ListQuestions(ctx, req.Category)
	if err == nil && len(qs) == 0 {
		err = errors.New(errors.CodeNotFound, errors.WithMessagef("no questions: %s", req.Category))
	}
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, errors.New(errors.CodeNotFound,
				errors.WithMessagef("Category not found: %s", req.Category),
				errors.WithCause(err),
			)
		}
		slog.ErrorContext(ctx, "quiz: load questions failed", "category", req.Category, "error", err)
		return nil, err
	}

	now := s.now()
	a := NewAttempt(req.Category, qs, now, s.questionTime())
	if err := s.save(ctx, st, a); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "quiz: attempt started", "email", st.Identity.Email, "category", req.Category, "questions", len(qs))

	return s.view(a, now), nil
}

// Get returns the current question, closing the ones that timed out since the last call.
func (s *Service) Get(ctx context.Context, st *session.State) (*View, error) {
	return s.update(ctx, st, func(a *Attempt, now time.Time, expired bool) error {
		return nil
	})
}

type AnswerRequest struct {
	Index  int
	Option string
}

// Answer selects an option for the current question. It does not move on.
func (s *Service) Answer(ctx context.Context, st *session.State, req AnswerRequest) (*View, error) {
	return s.update(ctx, st, func(a *Attempt, now time.Time, expired bool) error {
		return a.Select(req.Index, req.Option)
	})
}

// Next grades the selected option and moves on. A question that already timed out has moved on by itself,
// in which case Next only reports the new state.
func (s *Service) Next(ctx context.Context, st *session.State) (*View, error) {
	return s.update(ctx, st, func(a *Attempt, now time.Time, expired bool) error {
		if expired {
			return nil
		}
		return a.Advance(now, s.questionTime())
	})
}

// Quit drops the attempt in progress without recording a result.
func (s *Service) Quit(ctx context.Context, st *session.State) error {
	return s.sessions.Delete(ctx, st.Token, session.KeyQuizAttempt)
}

// update loads the attempt, applies the expired countdowns and then op. The attempt is saved even when
// op fails, since expiry may have changed it.
func (s *Service) update(ctx context.Context, st *session.State, op func(a *Attempt, now time.Time, expired bool) error) (*View, error) {
	a, err := s.load(ctx, st)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expired := a.Expire(now, s.questionTime()) > 0

	var opErr error
	if !a.Finished() {
		opErr = op(a, now, expired)
	}

	if a.Finished() {
		return s.finish(ctx, st, a)
	}

	if err := s.save(ctx, st, a); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	return s.view(a, now), nil
}

// finish hands the result to the result screen. The result replaces the attempt in one step, so an
// attempt finished by a concurrent request is not reported twice.
func (s *Service) finish(ctx context.Context, st *session.State, a *Attempt) (*View, error) {
	r := a.Result()

	done, err := s.sessions.FinishAttempt(ctx, st.Token, r)
	if err != nil {
		slog.ErrorContext(ctx, "quiz: save result failed", "email", st.Identity.Email, "error", err)
		return nil, err
	}

	if done {
		slog.InfoContext(ctx, "quiz: attempt finished", "email", st.Identity.Email, "category", r.Category, "score", r.Score)

		s.eb.Publish(ctx, domain.EventQuizFinished{
			Identity: st.Identity,
			Result:   r,
		})
	}

	return &View{
		Category: a.Category,
		Index:    len(a.Questions),
		Total:    len(a.Questions),
		Finished: true,
		Next:     ResultPath,
	}, nil
}

func (s *Service) load(ctx context.Context, st *session.State) (*Attempt, error) {
	var a Attempt
	ok, err := s.sessions.Fetch(ctx, st.Token, session.KeyQuizAttempt, &a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("No quiz in progress"))
	}

	return &a, nil
}

func (s *Service) save(ctx context.Context, st *session.State, a *Attempt) error {
	return s.sessions.Put(ctx, st.Token, session.KeyQuizAttempt, a)
}

func (s *Service) view(a *Attempt, now time.Time) *View {
	q := a.Questions[a.Current]

	return &View{
		Category:  a.Category,
		Index:     a.Current,
		Total:     len(a.Questions),
		Question:  q.Question,
		Options:   q.Options,
		Selected:  a.Selected,
		Remaining: a.Remaining(now, s.unit),
		CanNext:   a.CanAdvance(),
	}
}

func (s *Service) questionTime() time.Duration {
	return time.Duration(s.units) * s.unit
}
