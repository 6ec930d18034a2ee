package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/victornm/techquiz/internal/domain"
)

// QuestionImporter replaces the questions of one category.
type QuestionImporter interface {
	ImportQuestions(ctx context.Context, category string, qs []domain.Question) error
}

// ReadQuestionBank decodes a YAML bank shaped as {categories: {<name>: [question...]}}.
func ReadQuestionBank(r io.Reader) (domain.QuestionBank, error) {
	var doc struct {
		Categories domain.QuestionBank `yaml:"categories"`
	}

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}

	for category, qs := range doc.Categories {
		for i, q := range qs {
			if !q.HasOption(q.Answer) {
				return nil, fmt.Errorf("question bank: %s #%d: answer %q is not one of the options", category, i+1, q.Answer)
			}
		}
	}

	return doc.Categories, nil
}

// ImportQuestionBankFile loads a YAML bank file into dst, one category at a time in name order.
func ImportQuestionBankFile(ctx context.Context, dst QuestionImporter, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()

	bank, err := ReadQuestionBank(f)
	if err != nil {
		return err
	}

	categories := make([]string, 0, len(bank))
	for c := range bank {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, c := range categories {
		if err := dst.ImportQuestions(ctx, c, bank[c]); err != nil {
			return fmt.Errorf("import %s: %w", c, err)
		}
	}

	return nil
}
