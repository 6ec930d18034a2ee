package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/event"
	"github.com/victornm/techquiz/internal/session"
	"github.com/victornm/techquiz/internal/store"
)

// MessageSaveFailed is shown when the new account could not be written.
const MessageSaveFailed = "Network error while saving."

type Config struct {
	Users    store.Users
	Sessions *session.Service
	EventBus *event.Bus
}

type Service struct {
	users    store.Users
	sessions *session.Service
	eb       *event.Bus
	validate *validator.Validate
}

func NewService(c Config) *Service {
	return &Service{
		users:    c.Users,
		sessions: c.Sessions,
		eb:       c.EventBus,
		validate: newValidator(),
	}
}

// RegisterRequest is the registration form. The tags are the whole input schema.
type RegisterRequest struct {
	Name     string `json:"name" validate:"min=3"`
	Email    string `json:"email" validate:"required,email"`
	Mobile   string `json:"mobile" validate:"mobile"`
	Password string `json:"password" validate:"min=3,max=6,password"`
}

// Register validates the form and creates the account if the email is not taken yet.
//
// The password is stored as typed. Hashing it would change the stored user format
// shared with existing documents.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid registration form"),
			errors.WithFields(fieldErrors(err)),
		)
	}

	u := domain.User{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	}

	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("User already exists!"),
				errors.WithCause(err),
			)
		}
		if errors.Is(err, errors.CodeUnavailable) {
			return nil, errors.New(errors.CodeUnavailable,
				errors.WithMessagef(MessageSaveFailed),
				errors.WithCause(err),
			)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "auth: user registered", "email", u.Email)

	s.eb.Publish(ctx, domain.EventUserRegistered{
		Email:    u.Email,
		Username: u.Name,
	})

	return &u, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login opens a session when email and password match a stored account exactly.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*session.State, error) {
	u, err := s.users.FindUser(ctx, req.Email)
	switch {
	case errors.Is(err, errors.CodeUnavailable):
		return nil, errors.Unavailable(err)
	case err != nil && !errors.Is(err, errors.CodeNotFound):
		return nil, err
	}

	if u == nil || subtle.ConstantTimeCompare([]byte(u.Password), []byte(req.Password)) != 1 {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("Invalid Email or Password!"))
	}

	name := u.Name
	if name == "" {
		name = domain.DefaultName
	}

	return s.sessions.Create(ctx, domain.Identity{
		Email: u.Email,
		Name:  name,
	})
}

// Logout forgets the identity together with any quiz state of the session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}
