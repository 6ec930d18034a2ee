package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/techquiz/internal/api"
	"github.com/victornm/techquiz/internal/auth"
	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/leaderboard"
	"github.com/victornm/techquiz/internal/profile"
	"github.com/victornm/techquiz/internal/quiz"
	"github.com/victornm/techquiz/internal/score"
	"github.com/victornm/techquiz/internal/session"
	"github.com/victornm/techquiz/internal/store"
	"github.com/victornm/techquiz/internal/store/jsonbin"
	"github.com/victornm/techquiz/internal/store/memory"
	"github.com/victornm/techquiz/internal/store/mongodb"
	"github.com/victornm/techquiz/internal/store/postgres"
	"github.com/victornm/techquiz/internal/telemetry"
)

// Store drivers.
const (
	DriverJSONBin  = "jsonbin"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Log struct {
		Level  string
		Format string
	}

	HTTP struct {
		Port         int32
		SecureCookie bool
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Session struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Store struct {
		Driver string
		// QuestionsFile seeds the question bank of the postgres, mongo and memory drivers.
		QuestionsFile string

		JSONBin struct {
			BaseURL      string
			MasterKey    string
			UsersBin     string
			QuestionsBin string
		}

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Mongo struct {
			URI  string
			Name string
		}
	}

	Quiz struct {
		QuestionUnits int
		Unit          time.Duration
	}

	Auth struct {
		Rate  float64
		Burst int
	}
}

// DefaultConfig holds the values used for keys missing from both the file and the environment.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Session.Addrs = []string{"localhost:6379"}
	c.Redis.Session.Prefix = "local:session"
	c.Redis.Session.TTL = session.DefaultTTL
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "local:pubsub"
	c.Store.Driver = DriverJSONBin
	c.Store.JSONBin.BaseURL = jsonbin.DefaultBaseURL
	c.Quiz.QuestionUnits = quiz.DefaultQuestionUnits
	c.Quiz.Unit = quiz.DefaultUnit
	c.Auth.Rate = 1
	c.Auth.Burst = 5
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			session redis.UniversalClient
			pubsub  redis.UniversalClient
		}

		postgres *pgxpool.Pool
		mongo    *mongo.Client

		users     store.Users
		questions store.Questions
	}

	service struct {
		session     *session.Service
		auth        *auth.Service
		quiz        *quiz.Service
		score       *score.Service
		profile     *profile.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initTelemetry()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.session, err = connect(s.c.Redis.Session.Addrs, s.c.Redis.Session.Pass)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var importer store.QuestionImporter

	switch s.c.Store.Driver {
	case DriverJSONBin, "":
		// Bins and key are not checked here, a bad value shows up as Unavailable on first use.
		c := jsonbin.NewClient(jsonbin.Config{
			BaseURL:   s.c.Store.JSONBin.BaseURL,
			MasterKey: s.c.Store.JSONBin.MasterKey,
		})
		s.infra.users = jsonbin.NewUserStore(c, s.c.Store.JSONBin.UsersBin)
		s.infra.questions = jsonbin.NewQuestionStore(c, s.c.Store.JSONBin.QuestionsBin)

		if s.c.Store.QuestionsFile != "" {
			slog.WarnContext(ctx, "server: questions file ignored by the jsonbin driver", "file", s.c.Store.QuestionsFile)
		}

	case DriverPostgres:
		db, err := s.connectPostgres(ctx)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.postgres = db

		ps := postgres.NewStore(postgres.Config{DB: db})
		if err := ps.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.users, s.infra.questions, importer = ps, ps, ps

	case DriverMongo:
		mc, err := s.connectMongo(ctx)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		s.infra.mongo = mc

		ms := mongodb.NewStore(mongodb.Config{DB: mc.Database(s.c.Store.Mongo.Name)})
		if err := ms.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		s.infra.users, s.infra.questions, importer = ms, ms, ms

	case DriverMemory:
		ms := memory.NewStore()
		s.infra.users, s.infra.questions, importer = ms, ms, ms

	default:
		return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
	}

	if importer != nil && s.c.Store.QuestionsFile != "" {
		if err := store.ImportQuestionBankFile(ctx, importer, s.c.Store.QuestionsFile); err != nil {
			return fmt.Errorf("seed questions: %w", err)
		}
		slog.InfoContext(ctx, "server: question bank imported", "file", s.c.Store.QuestionsFile)
	}

	return nil
}

func (s *Server) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	pc := s.c.Store.Postgres

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) connectMongo(ctx context.Context) (*mongo.Client, error) {
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(s.c.Store.Mongo.URI))
	if err != nil {
		return nil, err
	}

	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, err
	}

	return mc, nil
}

func (s *Server) initService() {
	s.service.session = session.NewService(session.Config{
		Redis:  s.infra.redis.session,
		Prefix: s.c.Redis.Session.Prefix,
		TTL:    s.c.Redis.Session.TTL,
	})

	s.service.auth = auth.NewService(auth.Config{
		Users:    s.infra.users,
		Sessions: s.service.session,
		EventBus: s.eb,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Questions:     s.infra.questions,
		Sessions:      s.service.session,
		EventBus:      s.eb,
		QuestionUnits: s.c.Quiz.QuestionUnits,
		Unit:          s.c.Quiz.Unit,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		Users:    s.infra.users,
		Sessions: s.service.session,
	})

	s.service.profile = profile.NewService(profile.Config{
		Users: s.infra.users,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Users:    s.infra.users,
		Redis:    s.infra.redis.session,
		Prefix:   s.c.Redis.Session.Prefix,
	})
}

func (s *Server) initTelemetry() {
	s.eb.Subscribe(domain.EventNameQuizFinished, func(ctx context.Context, e event.Event) error {
		telemetry.CountQuizFinished(e.(domain.EventQuizFinished).Result.Category)
		return nil
	})

	s.eb.Subscribe(domain.EventNameBestScoreUpdated, func(ctx context.Context, e event.Event) error {
		telemetry.CountBestScoreUpdated(e.(domain.EventBestScoreUpdated).Category)
		return nil
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPMiddleware())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = telemetry.RegisterHealth(s.grpc)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Auth:         s.service.auth,
		Quiz:         s.service.quiz,
		Score:        s.service.score,
		Profile:      s.service.profile,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		AuthRate:     s.c.Auth.Rate,
		AuthBurst:    s.c.Auth.Burst,
		SecureCookie: s.c.HTTP.SecureCookie,
		CookieTTL:    s.c.Redis.Session.TTL,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if s.infra.mongo != nil {
		if err := s.infra.mongo.Disconnect(ctx); err != nil {
			slog.ErrorContext(ctx, "server: disconnect mongo failed", "error", err)
		}
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.session, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
