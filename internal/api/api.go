package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/techquiz/internal/auth"
	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/leaderboard"
	"github.com/victornm/techquiz/internal/profile"
	"github.com/victornm/techquiz/internal/quiz"
	"github.com/victornm/techquiz/internal/score"
	"github.com/victornm/techquiz/internal/session"
)

const (
	CookieSession = "quiz_session"
	HeaderSession = "X-Session-Token"
)

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Session     *session.Service
	Auth        *auth.Service
	Quiz        *quiz.Service
	Score       *score.Service
	Profile     *profile.Service
	Leaderboard *leaderboard.Service

	Redis        Redis
	PubsubPrefix string

	// AuthRate limits login and register calls per client IP, per second.
	AuthRate  float64
	AuthBurst int

	SecureCookie bool
	CookieTTL    time.Duration
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss  *session.Service
	as  *auth.Service
	qs  *quiz.Service
	scs *score.Service
	ps  *profile.Service
	ls  *leaderboard.Service

	redis  Redis
	prefix string

	secureCookie bool
	cookieTTL    time.Duration
}

func New(c Config) *API {
	a := &API{
		ss:           c.Session,
		as:           c.Auth,
		qs:           c.Quiz,
		scs:          c.Score,
		ps:           c.Profile,
		ls:           c.Leaderboard,
		redis:        c.Redis,
		prefix:       c.PubsubPrefix,
		secureCookie: c.SecureCookie,
		cookieTTL:    c.CookieTTL,
	}

	if a.cookieTTL <= 0 {
		a.cookieTTL = session.DefaultTTL
	}

	// HTTP APIs
	v1 := c.Router.Group("/api/v1")

	limit := rateLimit(c.AuthRate, c.AuthBurst)
	v1.POST("/register", limit, a.Register)
	v1.POST("/login", limit, a.Login)

	guarded := v1.Group("", a.requireSession)
	guarded.POST("/logout", a.Logout)
	guarded.GET("/me", a.Me)
	guarded.GET("/categories", a.Categories)
	guarded.POST("/quiz", a.StartQuiz)
	guarded.GET("/quiz", a.GetQuiz)
	guarded.POST("/quiz/answer", a.AnswerQuiz)
	guarded.POST("/quiz/next", a.NextQuestion)
	guarded.DELETE("/quiz", a.QuitQuiz)
	guarded.GET("/results", a.GetResults)
	guarded.GET("/profile", a.GetProfile)
	guarded.GET("/leaderboard", a.GetLeaderboard)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})

		c.EventBus.Subscribe(domain.EventNameBestScoreUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishBestScoreUpdated(ctx, e.(domain.EventBestScoreUpdated))
		})
	}

	return a
}

func (a *API) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := a.as.Register(c.Request.Context(), auth.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, User{
		Name:  u.Name,
		Email: u.Email,
	})
}

func (a *API) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	st, err := a.as.Login(c.Request.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieSession, st.Token, int(a.cookieTTL.Seconds()), "/", "", a.secureCookie, true)

	c.JSON(http.StatusOK, LoginResponse{
		Token: st.Token,
		User: User{
			Name:  st.Identity.Name,
			Email: st.Identity.Email,
		},
	})
}

func (a *API) Logout(c *gin.Context) {
	if err := a.as.Logout(c.Request.Context(), SessionFrom(c).Token); err != nil {
		abort(c, err)
		return
	}

	c.SetCookie(CookieSession, "", -1, "/", "", a.secureCookie, true)
	c.Status(http.StatusNoContent)
}

func (a *API) Me(c *gin.Context) {
	id := SessionFrom(c).Identity
	c.JSON(http.StatusOK, User{
		Name:  id.Name,
		Email: id.Email,
	})
}

func (a *API) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, CategoriesResponse{
		Categories: domain.Categories(),
	})
}

func (a *API) StartQuiz(c *gin.Context) {
	v, err := a.qs.Start(c.Request.Context(), SessionFrom(c), quiz.StartRequest{
		Category: c.Query("category"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizView(v))
}

func (a *API) GetQuiz(c *gin.Context) {
	v, err := a.qs.Get(c.Request.Context(), SessionFrom(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizView(v))
}

func (a *API) AnswerQuiz(c *gin.Context) {
	var req AnswerRequest
	if !bindJSON(c, &req) {
		return
	}

	v, err := a.qs.Answer(c.Request.Context(), SessionFrom(c), quiz.AnswerRequest{
		Index:  req.Index,
		Option: req.Option,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizView(v))
}

func (a *API) NextQuestion(c *gin.Context) {
	v, err := a.qs.Next(c.Request.Context(), SessionFrom(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizView(v))
}

func (a *API) QuitQuiz(c *gin.Context) {
	if err := a.qs.Quit(c.Request.Context(), SessionFrom(c)); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) GetResults(c *gin.Context) {
	rep, err := a.scs.Report(c.Request.Context(), SessionFrom(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toResultReport(rep))
}

func (a *API) GetProfile(c *gin.Context) {
	p, err := a.ps.GetProfile(c.Request.Context(), profile.GetProfileRequest{
		Identity: SessionFrom(c).Identity,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfile(p))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Category: c.Query("category"),
		Email:    SessionFrom(c).Identity.Email,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err),
		))
		return false
	}
	return true
}
