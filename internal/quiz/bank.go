// Package quiz runs timed quiz sessions against a YAML question bank.
package quiz

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"animehub/internal/domain"
)

type Question struct {
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []string `yaml:"options" json:"options"`
	Correct string   `yaml:"correct" json:"-"`
}

type Quiz struct {
	ID           string     `yaml:"id" json:"id"`
	Title        string     `yaml:"title" json:"title"`
	TimeLimitSec int        `yaml:"timeLimitSec" json:"timeLimitSec,omitempty"`
	Questions    []Question `yaml:"questions" json:"questions"`
}

// TimeLimit is the quiz's own default, zero when unset.
func (q *Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

type Bank struct {
	order   []string
	quizzes map[string]*Quiz
}

func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz bank: %w", err)
	}
	return ParseBank(data)
}

func ParseBank(data []byte) (*Bank, error) {
	var doc struct {
		Quizzes []*Quiz `yaml:"quizzes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse quiz bank: %w", err)
	}
	b := &Bank{quizzes: make(map[string]*Quiz, len(doc.Quizzes))}
	for _, q := range doc.Quizzes {
		if err := check(q); err != nil {
			return nil, err
		}
		if _, dup := b.quizzes[q.ID]; dup {
			return nil, domain.Invalid("quizzes", "duplicate quiz id "+q.ID)
		}
		b.quizzes[q.ID] = q
		b.order = append(b.order, q.ID)
	}
	return b, nil
}

func check(q *Quiz) error {
	if q.ID == "" {
		return domain.Invalid("quizzes.id", "required")
	}
	if len(q.Questions) == 0 {
		return domain.Invalid("quizzes."+q.ID, "has no questions")
	}
	if q.TimeLimitSec < 0 {
		return domain.Invalid("quizzes."+q.ID+".timeLimitSec", "must not be negative")
	}
	for i, qq := range q.Questions {
		if !slices.Contains(qq.Options, qq.Correct) {
			return domain.Invalid(fmt.Sprintf("quizzes.%s.questions[%d]", q.ID, i), "correct answer is not an option")
		}
	}
	return nil
}

func (b *Bank) Get(id string) (*Quiz, bool) {
	q, ok := b.quizzes[id]
	return q, ok
}

// List returns quizzes in file order.
func (b *Bank) List() []*Quiz {
	out := make([]*Quiz, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.quizzes[id])
	}
	return out
}
