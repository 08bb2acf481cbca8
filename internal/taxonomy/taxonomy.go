package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSkill is returned when a skill id is not part of the taxonomy.
var ErrUnknownSkill = errors.New("unknown skill")

// Tier is an ordinal difficulty level.
type Tier int

const (
	TierFoundation   Tier = 1
	TierIntermediate Tier = 2
	TierAdvanced     Tier = 3
)

// Valid reports whether the tier is one of the finite tier values.
func (t Tier) Valid() bool {
	return t >= TierFoundation && t <= TierAdvanced
}

// ClampTier bounds any integer into the tier range.
func ClampTier(v int) Tier {
	switch {
	case v < int(TierFoundation):
		return TierFoundation
	case v > int(TierAdvanced):
		return TierAdvanced
	default:
		return Tier(v)
	}
}

// Category groups skills for coverage tracking and reporting.
type Category struct {
	ID        string  `yaml:"id" json:"id"`
	Label     string  `yaml:"label" json:"label"`
	Mandatory bool    `yaml:"mandatory" json:"mandatory"`
	Weight    float64 `yaml:"weight" json:"weight"`
}

// Skill is a single competency area. Skills are immutable once loaded.
type Skill struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category" json:"category"`
	Tier     Tier   `yaml:"tier" json:"tier"`
	Label    string `yaml:"label" json:"label"`
}

type document struct {
	Categories []Category `yaml:"categories"`
	Skills     []Skill    `yaml:"skills"`
}

// Taxonomy is a read-only registry shared by every session.
type Taxonomy struct {
	skills     map[string]Skill
	skillOrder []string

	categories    map[string]Category
	categoryOrder []string
	byCategory    map[string][]string
}

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Default returns the built-in spreadsheet skills taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// LoadFile reads a taxonomy from a YAML file.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	return New(doc.Categories, doc.Skills)
}

// New validates the given categories and skills and builds a Taxonomy.
func New(categories []Category, skills []Skill) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, errors.New("taxonomy has no categories")
	}
	if len(skills) == 0 {
		return nil, errors.New("taxonomy has no skills")
	}

	t := &Taxonomy{
		skills:     make(map[string]Skill, len(skills)),
		categories: make(map[string]Category, len(categories)),
		byCategory: make(map[string][]string, len(categories)),
	}

	for _, c := range categories {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, errors.New("category id must not be empty")
		}
		if _, dup := t.categories[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.ID)
		}
		if c.Weight < 0 {
			return nil, fmt.Errorf("category %q has negative weight", c.ID)
		}
		if c.Label == "" {
			c.Label = c.ID
		}
		t.categories[c.ID] = c
		t.categoryOrder = append(t.categoryOrder, c.ID)
	}

	for _, s := range skills {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, errors.New("skill id must not be empty")
		}
		if _, dup := t.skills[s.ID]; dup {
			return nil, fmt.Errorf("duplicate skill %q", s.ID)
		}
		if _, ok := t.categories[s.Category]; !ok {
			return nil, fmt.Errorf("skill %q references unknown category %q", s.ID, s.Category)
		}
		if !s.Tier.Valid() {
			return nil, fmt.Errorf("skill %q has invalid tier %d", s.ID, s.Tier)
		}
		if s.Label == "" {
			s.Label = s.ID
		}
		t.skills[s.ID] = s
		t.skillOrder = append(t.skillOrder, s.ID)
		t.byCategory[s.Category] = append(t.byCategory[s.Category], s.ID)
	}

	sort.Strings(t.skillOrder)
	for id := range t.byCategory {
		sort.Strings(t.byCategory[id])
	}

	if len(t.MandatoryCategories()) == 0 {
		return nil, errors.New("taxonomy has no mandatory categories")
	}

	return t, nil
}

// Skill looks up a skill by id.
func (t *Taxonomy) Skill(id string) (Skill, bool) {
	s, ok := t.skills[id]
	return s, ok
}

// Has reports whether the skill id exists.
func (t *Taxonomy) Has(id string) bool {
	_, ok := t.skills[id]
	return ok
}

// Skills returns every skill ordered by id.
func (t *Taxonomy) Skills() []Skill {
	out := make([]Skill, 0, len(t.skillOrder))
	for _, id := range t.skillOrder {
		out = append(out, t.skills[id])
	}
	return out
}

// Category looks up a category by id.
func (t *Taxonomy) Category(id string) (Category, bool) {
	c, ok := t.categories[id]
	return c, ok
}

// Categories returns categories in declaration order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, 0, len(t.categoryOrder))
	for _, id := range t.categoryOrder {
		out = append(out, t.categories[id])
	}
	return out
}

// SkillsIn returns the skill ids of a category ordered by id.
func (t *Taxonomy) SkillsIn(category string) []string {
	return append([]string(nil), t.byCategory[category]...)
}

// MandatoryCategories returns mandatory category ids in declaration order.
func (t *Taxonomy) MandatoryCategories() []string {
	var out []string
	for _, id := range t.categoryOrder {
		if t.categories[id].Mandatory {
			out = append(out, id)
		}
	}
	return out
}

// MandatorySkills returns every skill id that belongs to a mandatory category.
func (t *Taxonomy) MandatorySkills() []string {
	var out []string
	for _, id := range t.skillOrder {
		if t.categories[t.skills[id].Category].Mandatory {
			out = append(out, id)
		}
	}
	return out
}
