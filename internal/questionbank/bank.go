package questionbank

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spigell/interviewer/internal/taxonomy"

	"gopkg.in/yaml.v3"
)

// Kind describes the expected answer shape.
type Kind string

const (
	KindFormula     Kind = "formula"
	KindExplanation Kind = "explanation"
	KindScenario    Kind = "scenario"
)

func (k Kind) valid() bool {
	switch k {
	case KindFormula, KindExplanation, KindScenario:
		return true
	}
	return false
}

// Rules are the structural checks a formula-shaped answer must pass.
type Rules struct {
	// Functions must all appear in the answer.
	Functions []string `yaml:"functions,omitempty" json:"functions,omitempty"`
	// AnyOf requires at least one of the listed functions.
	AnyOf           []string `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	RequireAbsolute bool     `yaml:"absolute,omitempty" json:"absolute,omitempty"`
	RequireRelative bool     `yaml:"relative,omitempty" json:"relative,omitempty"`
	RequireRange    bool     `yaml:"range,omitempty" json:"range,omitempty"`
}

// Question is immutable after load; an edited question gets a new id.
type Question struct {
	ID             string            `yaml:"id" json:"id"`
	SkillID        string            `yaml:"skill" json:"skill"`
	Tier           taxonomy.Tier     `yaml:"tier" json:"tier"`
	Category       string            `yaml:"category,omitempty" json:"category"`
	Kind           Kind              `yaml:"kind" json:"kind"`
	Prompt         string            `yaml:"prompt" json:"prompt"`
	ExpectedAnswer string            `yaml:"expected,omitempty" json:"expected,omitempty"`
	Rules          *Rules            `yaml:"rules,omitempty" json:"rules,omitempty"`
	Rubric         map[string]string `yaml:"rubric,omitempty" json:"rubric,omitempty"`
	KeyConcepts    []string          `yaml:"concepts,omitempty" json:"concepts,omitempty"`
	Metadata       map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// HasRules reports whether structural validation applies to the question.
func (q *Question) HasRules() bool {
	return q != nil && q.Rules != nil
}

//go:embed questions.yaml
var defaultQuestions []byte

// Default returns the built-in question set.
func Default() []Question {
	qs, err := Parse(defaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("embedded question bank is invalid: %v", err))
	}
	return qs
}

// ParseFile reads questions from a YAML file.
func ParseFile(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML list of questions.
func Parse(data []byte) ([]Question, error) {
	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}
	return doc.Questions, nil
}

// Bank is a read-only index over questions. It is safe for concurrent use.
type Bank struct {
	byID    map[string]*Question
	ordered []*Question
}

// New validates questions against the taxonomy and indexes them.
func New(tax *taxonomy.Taxonomy, questions []Question) (*Bank, error) {
	if tax == nil {
		return nil, errors.New("taxonomy is required")
	}
	if len(questions) == 0 {
		return nil, errors.New("question bank is empty")
	}

	b := &Bank{byID: make(map[string]*Question, len(questions))}
	for i := range questions {
		q := questions[i]
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			return nil, fmt.Errorf("question #%d has no id", i)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		skill, ok := tax.Skill(q.SkillID)
		if !ok {
			return nil, fmt.Errorf("question %q: %w %q", q.ID, taxonomy.ErrUnknownSkill, q.SkillID)
		}
		if q.Category == "" {
			q.Category = skill.Category
		}
		if q.Category != skill.Category {
			return nil, fmt.Errorf("question %q: category %q does not match skill category %q", q.ID, q.Category, skill.Category)
		}
		if !q.Tier.Valid() {
			return nil, fmt.Errorf("question %q: invalid tier %d", q.ID, q.Tier)
		}
		if !q.Kind.valid() {
			return nil, fmt.Errorf("question %q: invalid kind %q", q.ID, q.Kind)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("question %q: prompt is empty", q.ID)
		}
		if q.Rules != nil {
			q.Rules = normalizeRules(q.Rules)
		}

		stored := q
		b.byID[q.ID] = &stored
		b.ordered = append(b.ordered, &stored)
	}

	sort.Slice(b.ordered, func(i, j int) bool { return b.ordered[i].ID < b.ordered[j].ID })
	return b, nil
}

func normalizeRules(r *Rules) *Rules {
	out := *r
	out.Functions = upper(r.Functions)
	out.AnyOf = upper(r.AnyOf)
	return &out
}

func upper(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Get returns a question by id.
func (b *Bank) Get(id string) (*Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Len returns the number of questions.
func (b *Bank) Len() int {
	return len(b.ordered)
}

// All returns every question ordered by id.
func (b *Bank) All() []*Question {
	return append([]*Question(nil), b.ordered...)
}

// Query filters candidates. Zero values mean "no constraint".
type Query struct {
	Categories []string
	MinTier    taxonomy.Tier
	MaxTier    taxonomy.Tier
	Kinds      []Kind
	Exclude    map[string]struct{}
}

// Candidates returns the questions matching the query ordered by id.
func (b *Bank) Candidates(q Query) []*Question {
	var out []*Question
	for _, question := range b.ordered {
		if _, skip := q.Exclude[question.ID]; skip {
			continue
		}
		if len(q.Categories) > 0 && !contains(q.Categories, question.Category) {
			continue
		}
		if q.MinTier != 0 && question.Tier < q.MinTier {
			continue
		}
		if q.MaxTier != 0 && question.Tier > q.MaxTier {
			continue
		}
		if len(q.Kinds) > 0 && !containsKind(q.Kinds, question.Kind) {
			continue
		}
		out = append(out, question)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsKind(list []Kind, v Kind) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
