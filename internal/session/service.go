// Package session keeps per-browser state between screens: the logged-in identity,
// the quiz attempt in progress and the result of the last finished attempt.
package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
)

// Hash fields of a session.
const (
	KeyUserEmail   = "userEmail"
	KeyUsername    = "username"
	KeyQuizDetails = "quizDetails"
	KeyQuizAttempt = "quizAttempt"
)

const DefaultTTL = 24 * time.Hour

// setIfExists writes one field without resurrecting a session that was destroyed or expired.
var setIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// replaceField swaps one field for another in a single step. It does nothing when the
// source field is gone, so only one caller can take it.
var replaceField = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

type Service struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}

	return s
}

// State is the typed view of one session, resolved once per request.
type State struct {
	Token    string
	Identity domain.Identity
}

// Create starts a session for a logged-in user and returns its token.
func (s *Service) Create(ctx context.Context, id domain.Identity) (*State, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	st := &State{
		Token:    token.String(),
		Identity: id,
	}

	key := s.getSessionKey(st.Token)
	if _, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, KeyUserEmail, id.Email, KeyUsername, id.Name)
		p.PExpire(ctx, key, s.ttl)
		return nil
	}); err != nil {
		return nil, errors.Unavailable(fmt.Errorf("session: create: %w", err))
	}

	return st, nil
}

// Get resolves a token. A missing session or one without an email is unauthenticated.
func (s *Service) Get(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, errNoSession()
	}

	vals, err := s.redis.HMGet(ctx, s.getSessionKey(token), KeyUserEmail, KeyUsername).Result()
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("session: get: %w", err))
	}

	email, _ := vals[0].(string)
	name, _ := vals[1].(string)
	if email == "" {
		return nil, errNoSession()
	}

	return &State{
		Token:    token,
		Identity: domain.Identity{Email: email, Name: name},
	}, nil
}

// Destroy removes every key of the session.
func (s *Service) Destroy(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.getSessionKey(token)).Err(); err != nil {
		return errors.Unavailable(fmt.Errorf("session: destroy: %w", err))
	}
	return nil
}

// SaveResult stores the result of a finished attempt for the result screen.
func (s *Service) SaveResult(ctx context.Context, token string, r domain.SessionResult) error {
	return s.Put(ctx, token, KeyQuizDetails, r)
}

// FinishAttempt replaces the attempt in progress with its result. It reports false, writing nothing,
// when there is no attempt left to finish.
func (s *Service) FinishAttempt(ctx context.Context, token string, r domain.SessionResult) (bool, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("session: marshal %s: %w", KeyQuizDetails, err)
	}

	ok, err := replaceField.Run(ctx, s.redis, []string{s.getSessionKey(token)},
		KeyQuizAttempt, KeyQuizDetails, b, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, errors.Unavailable(fmt.Errorf("session: finish attempt: %w", err))
	}

	return ok == 1, nil
}

// Result returns the stored result of the last finished attempt.
func (s *Service) Result(ctx context.Context, token string) (*domain.SessionResult, error) {
	var r domain.SessionResult
	ok, err := s.Fetch(ctx, token, KeyQuizDetails, &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("No quiz result found"))
	}

	return &r, nil
}

// Put stores v as JSON under key.
func (s *Service) Put(ctx context.Context, token, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", key, err)
	}

	ok, err := setIfExists.Run(ctx, s.redis, []string{s.getSessionKey(token)}, key, b, s.ttl.Milliseconds()).Int()
	if err != nil {
		return errors.Unavailable(fmt.Errorf("session: put %s: %w", key, err))
	}
	if ok == 0 {
		return errNoSession()
	}

	return nil
}

// Fetch decodes the JSON stored under key into v, reporting false when the key is absent.
func (s *Service) Fetch(ctx context.Context, token, key string, v any) (bool, error) {
	b, err := s.redis.HGet(ctx, s.getSessionKey(token), key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Unavailable(fmt.Errorf("session: fetch %s: %w", key, err))
	}

	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("session: decode %s: %w", key, err)
	}

	return true, nil
}

// Delete removes one key of the session.
func (s *Service) Delete(ctx context.Context, token, key string) error {
	if err := s.redis.HDel(ctx, s.getSessionKey(token), key).Err(); err != nil {
		return errors.Unavailable(fmt.Errorf("session: delete %s: %w", key, err))
	}
	return nil
}

func (s *Service) getSessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, token)
}

func errNoSession() *errors.Error {
	return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("not logged in"))
}
