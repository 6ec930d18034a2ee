package jsonbin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/techquiz/internal/domain"
	"github.com/victornm/techquiz/internal/errors"
)

// QuestionStore reads the question bank bin. The bin holds either
// {"categories": {...}} or [{"categories": {...}}].
type QuestionStore struct {
	client *Client
	bin    string
}

func NewQuestionStore(c *Client, bin string) *QuestionStore {
	return &QuestionStore{
		client: c,
		bin:    bin,
	}
}

type bankRecord struct {
	Categories domain.QuestionBank `json:"categories"`
}

func (s *QuestionStore) ListQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	var raw json.RawMessage
	if err := s.client.Latest(ctx, s.bin, &raw); err != nil {
		return nil, err
	}

	bank, err := decodeBank(raw)
	if err != nil {
		return nil, fmt.Errorf("question bank %s: %w", s.bin, err)
	}

	qs, ok := bank[category]
	if !ok || len(qs) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("Category not found: %s", category))
	}

	return qs, nil
}

func decodeBank(raw json.RawMessage) (domain.QuestionBank, error) {
	var obj bankRecord
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Categories, nil
	}

	var arr []bankRecord
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(arr) == 0 {
		return nil, nil
	}

	return arr[0].Categories, nil
}
