package coverage

import (
	"fmt"
	"sort"

	"github.com/spigell/interviewer/internal/taxonomy"
)

// Entry is the per-skill accumulator.
type Entry struct {
	Attempts  int     `json:"attempts"`
	BestScore float64 `json:"best_score"`
}

// Vector maps skill ids to their accumulated results.
type Vector map[string]Entry

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, e := range v {
		out[k] = e
	}
	return out
}

// Tracker records attempts against a vector. Keys are restricted to taxonomy skills.
type Tracker struct {
	tax *taxonomy.Taxonomy
	vec Vector
}

// NewTracker wraps vec. A nil vector is replaced by an empty one.
func NewTracker(tax *taxonomy.Taxonomy, vec Vector) *Tracker {
	if vec == nil {
		vec = Vector{}
	}
	return &Tracker{tax: tax, vec: vec}
}

// Vector exposes the underlying vector.
func (t *Tracker) Vector() Vector {
	return t.vec
}

// Record adds an attempt for skill and keeps the best score.
func (t *Tracker) Record(skill string, score float64) error {
	if !t.tax.Has(skill) {
		return fmt.Errorf("record %q: %w", skill, taxonomy.ErrUnknownSkill)
	}
	e := t.vec[skill]
	if e.Attempts == 0 || score > e.BestScore {
		e.BestScore = score
	}
	e.Attempts++
	t.vec[skill] = e
	return nil
}

// Attempts returns the number of attempts on skill.
func (t *Tracker) Attempts(skill string) int {
	return t.vec[skill].Attempts
}

// Ratio is the fraction of the category's skills with at least one attempt.
func (t *Tracker) Ratio(category string) float64 {
	return t.ratio(t.tax.SkillsIn(category))
}

// MandatoryRatio is the fraction of skills in mandatory categories with at least one attempt.
func (t *Tracker) MandatoryRatio() float64 {
	return t.ratio(t.tax.MandatorySkills())
}

func (t *Tracker) ratio(skills []string) float64 {
	if len(skills) == 0 {
		return 0
	}
	covered := 0
	for _, id := range skills {
		if t.vec[id].Attempts > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(skills))
}

// WeakSkills returns attempted skills whose best score is below threshold, sorted by id.
func (t *Tracker) WeakSkills(threshold float64) []string {
	var out []string
	for id, e := range t.vec {
		if e.Attempts > 0 && e.BestScore < threshold {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot is a presentation-friendly view of coverage.
type Snapshot struct {
	Mandatory  float64            `json:"mandatory"`
	Categories map[string]float64 `json:"categories"`
	Skills     Vector             `json:"skills"`
}

// Snapshot captures the current coverage state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		Mandatory:  t.MandatoryRatio(),
		Categories: make(map[string]float64),
		Skills:     t.vec.Clone(),
	}
	for _, c := range t.tax.Categories() {
		s.Categories[c.ID] = t.Ratio(c.ID)
	}
	return s
}
