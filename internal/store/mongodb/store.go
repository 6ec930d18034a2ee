// Package mongodb keeps users and questions in MongoDB collections.
//
// A unique index on email rejects duplicate registrations, and best scores are raised with a
// filtered FindOneAndUpdate, so concurrent writers cannot lose each other's updates.
package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/store"
)

const (
	collectionUsers     = "users"
	collectionQuestions = "questions"
)

type userDocument struct {
	Name     string         `bson:"name"`
	Email    string         `bson:"email"`
	Mobile   string         `bson:"mobile"`
	Password string         `bson:"password"`
	Scores   map[string]int `bson:"scores,omitempty"`
}

func (d userDocument) toDomain() domain.User {
	return domain.User{
		Name:     d.Name,
		Email:    d.Email,
		Mobile:   d.Mobile,
		Password: d.Password,
		Scores:   d.Scores,
	}
}

type categoryDocument struct {
	Category  string             `bson:"category"`
	Questions []questionDocument `bson:"questions"`
}

type questionDocument struct {
	Question string   `bson:"question"`
	Options  []string `bson:"options"`
	Answer   string   `bson:"answer"`
}

type Config struct {
	DB *mongo.Database
}

type Store struct {
	users     *mongo.Collection
	questions *mongo.Collection
}

func NewStore(c Config) *Store {
	return &Store{
		users:     c.DB.Collection(collectionUsers),
		questions: c.DB.Collection(collectionQuestions),
	}
}

// EnsureIndexes creates the unique indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}

	if _, err := s.questions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "category", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("questions index: %w", err)
	}

	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("list users: %w", err))
	}

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}

	return users, nil
}

func (s *Store) FindUser(ctx context.Context, email string) (*domain.User, error) {
	var d userDocument
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&d)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", email))
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("find user: %w", err))
	}

	u := d.toDomain()
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.users.InsertOne(ctx, userDocument{
		Name:     u.Name,
		Email:    u.Email,
		Mobile:   u.Mobile,
		Password: u.Password,
		Scores:   u.Scores,
	})
	if mongo.IsDuplicateKeyError(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("user already exists: %s", u.Email),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.Unavailable(fmt.Errorf("create user: %w", err))
	}

	return nil
}

// SaveBestScore only matches the user when the stored best is lower, then reads the previous
// value from the document as it was before the update.
func (s *Store) SaveBestScore(ctx context.Context, email, category string, score int) (*store.BestScoreUpdate, error) {
	field := "scores." + category

	if score > 0 {
		filter := bson.M{
			"email": email,
			"$or": bson.A{
				bson.M{field: bson.M{"$lt": score}},
				bson.M{field: bson.M{"$exists": false}},
			},
		}
		update := bson.M{"$set": bson.M{field: score}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

		var before userDocument
		err := s.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
		if err == nil {
			return &store.BestScoreUpdate{Previous: before.Scores[category], Updated: true}, nil
		}
		if !stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Unavailable(fmt.Errorf("save best score: %w", err))
		}
	}

	// Either the score cannot beat anything or the filter did not match: tell the two apart.
	u, err := s.FindUser(ctx, email)
	if err != nil {
		return nil, err
	}

	return &store.BestScoreUpdate{Previous: u.BestScore(category)}, nil
}

func (s *Store) ListQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	var d categoryDocument
	err := s.questions.FindOne(ctx, bson.M{"category": category}).Decode(&d)
	if stderrors.Is(err, mongo.ErrNoDocuments) || (err == nil && len(d.Questions) == 0) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("Category not found: %s", category))
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("list questions: %w", err))
	}

	qs := make([]domain.Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		qs = append(qs, domain.Question{Question: q.Question, Options: q.Options, Answer: q.Answer})
	}

	return qs, nil
}

// ImportQuestions upserts the whole question list of a category.
func (s *Store) ImportQuestions(ctx context.Context, category string, qs []domain.Question) error {
	doc := categoryDocument{
		Category:  category,
		Questions: make([]questionDocument, 0, len(qs)),
	}
	for _, q := range qs {
		doc.Questions = append(doc.Questions, questionDocument{Question: q.Question, Options: q.Options, Answer: q.Answer})
	}

	_, err := s.questions.ReplaceOne(ctx, bson.M{"category": category}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("import questions: %w", err)
	}

	return nil
}
