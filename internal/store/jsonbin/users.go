package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/store"
)

// userRecord is the wire shape of one entry of the users bin.
type userRecord struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Mobile   string         `json:"mobile"`
	Password string         `json:"password"`
	Scores   map[string]int `json:"scores,omitempty"`
}

func (r userRecord) toDomain() domain.User {
	return domain.User{
		Name:     r.Name,
		Email:    r.Email,
		Mobile:   r.Mobile,
		Password: r.Password,
		Scores:   r.Scores,
	}
}

// UserStore keeps all accounts as a JSON array in one bin.
// Entries are kept as raw JSON so fields this service does not know survive a rewrite.
type UserStore struct {
	client *Client
	bin    string
}

func NewUserStore(c *Client, bin string) *UserStore {
	return &UserStore{
		client: c,
		bin:    bin,
	}
}

func (s *UserStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(raw))
	for _, r := range raw {
		users = append(users, decodeUser(r).toDomain())
	}

	return users, nil
}

func (s *UserStore) FindUser(ctx context.Context, email string) (*domain.User, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(raw, email)
	if i < 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}

	u := decodeUser(raw[i]).toDomain()
	return &u, nil
}

// CreateUser appends u and writes the whole collection back.
// The duplicate check and the write are not atomic.
func (s *UserStore) CreateUser(ctx context.Context, u domain.User) error {
	raw, err := s.load(ctx)
	if err != nil {
		return err
	}

	if indexOf(raw, u.Email) >= 0 {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("user already exists: %s", u.Email))
	}

	b, err := json.Marshal(userRecord{
		Name:     u.Name,
		Email:    u.Email,
		Mobile:   u.Mobile,
		Password: u.Password,
		Scores:   u.Scores,
	})
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return s.client.Update(ctx, s.bin, append(raw, b))
}

// SaveBestScore rewrites the collection only when score beats the stored best.
func (s *UserStore) SaveBestScore(ctx context.Context, email, category string, score int) (*store.BestScoreUpdate, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(raw, email)
	if i < 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}

	u := decodeUser(raw[i])
	prev := u.Scores[category]
	if score <= prev {
		return &store.BestScoreUpdate{Previous: prev}, nil
	}

	scores := maps.Clone(u.Scores)
	if scores == nil {
		scores = make(map[string]int)
	}
	scores[category] = score

	raw[i], err = setField(raw[i], "scores", scores)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", email, err)
	}

	if err := s.client.Update(ctx, s.bin, raw); err != nil {
		return nil, err
	}

	return &store.BestScoreUpdate{Previous: prev, Updated: true}, nil
}

func (s *UserStore) load(ctx context.Context) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := s.client.Latest(ctx, s.bin, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// decodeUser reads each field on its own, so one field of an unexpected type
// does not hide the rest of the record. Entries that are not objects decode to the zero record.
func decodeUser(r json.RawMessage) userRecord {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r, &obj); err != nil {
		return userRecord{}
	}

	return userRecord{
		Name:     text(obj["name"]),
		Email:    text(obj["email"]),
		Mobile:   text(obj["mobile"]),
		Password: text(obj["password"]),
		Scores:   scores(obj["scores"]),
	}
}

// text reads a string field. Numbers keep their literal form, anything else is empty.
func text(r json.RawMessage) string {
	if len(r) == 0 {
		return ""
	}

	d := json.NewDecoder(bytes.NewReader(r))
	d.UseNumber()

	var v any
	if err := d.Decode(&v); err != nil {
		return ""
	}

	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// scores reads the per-category best scores. Fractional values are truncated,
// numeric strings are accepted, other values are skipped.
func scores(r json.RawMessage) map[string]int {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(r, &m); err != nil || len(m) == 0 {
		return nil
	}

	out := make(map[string]int, len(m))
	for category, v := range m {
		n, err := strconv.ParseFloat(text(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		out[category] = int(n)
	}

	return out
}

func indexOf(raw []json.RawMessage, email string) int {
	if email == "" {
		return -1
	}

	for i, r := range raw {
		var u struct {
			Email json.RawMessage `json:"email"`
		}
		if err := json.Unmarshal(r, &u); err != nil {
			continue
		}
		if text(u.Email) == email {
			return i
		}
	}
	return -1
}

func setField(r json.RawMessage, key string, v any) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj[key] = b

	return json.Marshal(obj)
}
