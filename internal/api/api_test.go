package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/techquiz/internal/api"
	"github.com/victornm/techquiz/internal/auth"
	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/leaderboard"
	"github.com/victornm/techquiz/internal/profile"
	"github.com/victornm/techquiz/internal/quiz"
	"github.com/victornm/techquiz/internal/score"
	"github.com/victornm/techquiz/internal/session"
	"github.com/victornm/techquiz/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var registerAnn = api.RegisterRequest{
	Name:     "Ann",
	Email:    "ann@x.io",
	Mobile:   "0123456789",
	Password: "Ab1!",
}

func TestAPI_Guard(t *testing.T) {
	tests := map[string]struct {
		method, path string
	}{
		"me":          {http.MethodGet, "/api/v1/me"},
		"categories":  {http.MethodGet, "/api/v1/categories"},
		"start quiz":  {http.MethodPost, "/api/v1/quiz?category=Programming"},
		"results":     {http.MethodGet, "/api/v1/results"},
		"profile":     {http.MethodGet, "/api/v1/profile"},
		"leaderboard": {http.MethodGet, "/api/v1/leaderboard"},
		"logout":      {http.MethodPost, "/api/v1/logout"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := makeAPI(t)

			w := env.do(tt.method, tt.path, "unknown-token", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAPI_RegisterLogin(t *testing.T) {
	env := makeAPI(t)

	w := env.do(http.MethodPost, "/api/v1/register", "", registerAnn)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/v1/register", "", registerAnn)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "User already exists!", decode[errorBody](t, w).Message)

	w = env.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: "ann@x.io", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid Email or Password!", decode[errorBody](t, w).Message)

	w = env.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: "ann@x.io", Password: "Ab1!"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[api.LoginResponse](t, w)
	assert.Equal(t, api.User{Name: "Ann", Email: "ann@x.io"}, login.User)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == api.CookieSession {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login should set the session cookie")
	assert.Equal(t, login.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.User{Name: "Ann", Email: "ann@x.io"}, decode[api.User](t, rec))

	w = env.do(http.MethodPost, "/api/v1/logout", login.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/v1/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_Register_Invalid(t *testing.T) {
	env := makeAPI(t)

	w := env.do(http.MethodPost, "/api/v1/register", "", api.RegisterRequest{
		Name:     "Al",
		Email:    "al@x.io",
		Mobile:   "123",
		Password: "abc",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[errorBody](t, w)
	assert.Equal(t, map[string]string{
		"name":     "Name must be at least 3 characters",
		"mobile":   "Mobile number must be 10 digits",
		"password": "Must include a capital letter, number, and special symbol",
	}, body.Fields)

	w = env.do(http.MethodPost, "/api/v1/register", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_RateLimit(t *testing.T) {
	env := makeAPI(t, withAuthRate(0.001, 2))

	for range 2 {
		w := env.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: "x@x.io", Password: "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := env.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: "x@x.io", Password: "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAPI_QuizFlow(t *testing.T) {
	env := makeAPI(t)
	token := env.login(t, registerAnn)

	w := env.do(http.MethodGet, "/api/v1/categories", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Categories(), decode[api.CategoriesResponse](t, w).Categories)

	w = env.do(http.MethodPost, "/api/v1/quiz?category=Cooking", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/results", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no result before the first attempt")

	// 3 correct answers out of 5.
	v := env.play(t, token, domain.CategoryProgramming, []string{"B", "B", "A", "B", "C"})
	assert.True(t, v.Finished)
	assert.Equal(t, quiz.ResultPath, v.Next)

	w = env.do(http.MethodGet, "/api/v1/results", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode[api.ResultReport](t, w)
	assert.Equal(t, 3, rep.Score)
	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, "60.00", rep.Accuracy)
	assert.Equal(t, score.StatusNewHighScore, rep.Status)
	assert.Equal(t, "New high score saved successfully!", rep.Message)
	require.Len(t, rep.UserAnswers, 5)
	assert.Equal(t, domain.AnswerRecord{Question: "q3", UserAnswer: "A", Answer: "B"}, rep.UserAnswers[2])

	w = env.do(http.MethodGet, "/api/v1/results", token, nil)
	assert.Equal(t, score.StatusNotBeaten, decode[api.ResultReport](t, w).Status, "viewing again never rewrites")

	w = env.do(http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[api.Profile](t, w)
	assert.Equal(t, 3, p.HighestScore)
	assert.Equal(t, api.Standing{Category: domain.CategoryProgramming, BestScore: 3, Rank: "1"}, p.Standings[0])

	w = env.do(http.MethodGet, "/api/v1/leaderboard?category=Programming", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.Leaderboard{
		Category: domain.CategoryProgramming,
		Entries: []api.LeaderboardEntry{
			{Rank: 1, Name: "Ann", Email: "ann@x.io", Score: 3, Current: true},
		},
	}, decode[api.Leaderboard](t, w))

	w = env.do(http.MethodGet, "/api/v1/leaderboard?category=Cooking", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_BestScore(t *testing.T) {
	tests := map[string]struct {
		answers    []string
		wantStatus score.Status
		wantBest   int
	}{
		"5 beats 3": {
			answers:    []string{"B", "B", "B", "B", "B"},
			wantStatus: score.StatusNewHighScore,
			wantBest:   5,
		},
		"2 does not beat 3": {
			answers:    []string{"B", "B", "A", "A", "A"},
			wantStatus: score.StatusNotBeaten,
			wantBest:   3,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := makeAPI(t)
			require.NoError(t, env.store.CreateUser(context.Background(), domain.User{
				Name:     "Ann",
				Email:    "ann@x.io",
				Password: "Ab1!",
				Scores:   map[string]int{domain.CategoryProgramming: 3},
			}))

			w := env.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: "ann@x.io", Password: "Ab1!"})
			require.Equal(t, http.StatusOK, w.Code)
			token := decode[api.LoginResponse](t, w).Token

			env.play(t, token, domain.CategoryProgramming, tt.answers)

			w = env.do(http.MethodGet, "/api/v1/results", token, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantStatus, decode[api.ResultReport](t, w).Status)

			u, err := env.store.FindUser(context.Background(), "ann@x.io")
			require.NoError(t, err)
			assert.Equal(t, tt.wantBest, u.BestScore(domain.CategoryProgramming))
		})
	}
}

func TestAPI_QuizTimeout(t *testing.T) {
	env := makeAPI(t)
	token := env.login(t, registerAnn)

	w := env.do(http.MethodPost, "/api/v1/quiz?category=Programming", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/quiz/next", token, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code, "next is disabled without a selection")

	env.clock = env.clock.Add(5 * 15 * time.Second)

	w = env.do(http.MethodGet, "/api/v1/quiz", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.QuizView](t, w).Finished)

	w = env.do(http.MethodGet, "/api/v1/results", token, nil)
	rep := decode[api.ResultReport](t, w)
	assert.Equal(t, 0, rep.Score)
	for _, rec := range rep.UserAnswers {
		assert.Equal(t, domain.NoAnswer, rec.UserAnswer)
	}
}

func TestAPI_ProfileRanksUnset(t *testing.T) {
	env := makeAPI(t)

	// A session whose user is gone from the store.
	st, err := env.sessions.Create(context.Background(), domain.Identity{Email: "gone@x.io", Name: "Gone"})
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/profile", st.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, s := range decode[api.Profile](t, w).Standings {
		assert.Equal(t, api.RankNone, s.Rank)
	}
}

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	env := makeAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := env.redis.Subscribe(ctx, "test:user:ann@x.io")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "should confirm subscription")

	err = env.api.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			Category: domain.CategoryDatabase,
			Entries: []domain.LeaderboardEntry{
				{Rank: 1, Name: "Ann", Email: "ann@x.io", Score: 4},
			},
		},
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n struct {
		Event string          `json:"event"`
		Data  api.Leaderboard `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	assert.Equal(t, domain.EventNameLeaderboardUpdated, n.Event)
	assert.Equal(t, domain.CategoryDatabase, n.Data.Category)
	assert.Equal(t, 4, n.Data.Entries[0].Score)
}

func TestAPI_PublishBestScoreUpdated(t *testing.T) {
	env := makeAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := env.redis.Subscribe(ctx, "test:user:bob@x.io")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "should confirm subscription")

	err = env.api.PublishBestScoreUpdated(ctx, domain.EventBestScoreUpdated{
		Email:    "bob@x.io",
		Category: domain.CategoryNetworking,
		Previous: 2,
		Score:    4,
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n struct {
		Event string        `json:"event"`
		Data  api.BestScore `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	assert.Equal(t, domain.EventNameBestScoreUpdated, n.Event)
	assert.Equal(t, api.BestScore{Category: domain.CategoryNetworking, Previous: 2, Score: 4}, n.Data)
}

type errorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type testEnv struct {
	router   *gin.Engine
	api      *api.API
	store    *memory.Store
	sessions *session.Service
	redis    redis.UniversalClient
	clock    time.Time
}

func (e *testEnv) now() time.Time {
	return e.clock
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(api.HeaderSession, token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, reg api.RegisterRequest) string {
	t.Helper()

	w := e.do(http.MethodPost, "/api/v1/register", "", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/login", "", api.LoginRequest{Email: reg.Email, Password: reg.Password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	return decode[api.LoginResponse](t, w).Token
}

func (e *testEnv) play(t *testing.T, token, category string, answers []string) api.QuizView {
	t.Helper()

	w := e.do(http.MethodPost, "/api/v1/quiz?category="+category, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v api.QuizView
	for i, ans := range answers {
		e.clock = e.clock.Add(time.Second)

		w = e.do(http.MethodPost, "/api/v1/quiz/answer", token, api.AnswerRequest{Index: i, Option: ans})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decode[api.QuizView](t, w).CanNext)

		w = e.do(http.MethodPost, "/api/v1/quiz/next", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		v = decode[api.QuizView](t, w)
	}

	return v
}

type options struct {
	authRate  float64
	authBurst int
}

type option func(o *options)

func withAuthRate(r float64, burst int) option {
	return func(o *options) {
		o.authRate = r
		o.authBurst = burst
	}
}

func makeAPI(t *testing.T, opts ...option) *testEnv {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	ms := memory.NewStore()
	var qs []domain.Question
	for i := range 5 {
		qs = append(qs, domain.Question{
			Question: fmt.Sprintf("q%d", i+1),
			Options:  []string{"A", "B", "C", "D"},
			Answer:   "B",
		})
	}
	ms.SetQuestions(domain.CategoryProgramming, qs)

	env := &testEnv{
		router: gin.New(),
		store:  ms,
		redis:  rc,
		clock:  time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC),
	}

	env.sessions = session.NewService(session.Config{Redis: rc, Prefix: "test"})

	env.api = api.New(api.Config{
		Router:   env.router,
		EventBus: eb,
		Session:  env.sessions,
		Auth: auth.NewService(auth.Config{
			Users:    ms,
			Sessions: env.sessions,
			EventBus: eb,
		}),
		Quiz: quiz.NewService(quiz.Config{
			Questions: ms,
			Sessions:  env.sessions,
			EventBus:  eb,
			Now:       env.now,
		}),
		Score: score.NewService(score.Config{
			EventBus: eb,
			Users:    ms,
			Sessions: env.sessions,
		}),
		Profile: profile.NewService(profile.Config{Users: ms}),
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			EventBus: eb,
			Users:    ms,
			Redis:    rc,
			Prefix:   "test",
		}),
		Redis:        rc,
		PubsubPrefix: "test",
		AuthRate:     o.authRate,
		AuthBurst:    o.authBurst,
	})

	return env
}
