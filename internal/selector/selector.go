// Package selector picks the next bank question for a session.
package selector

import (
	"sort"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/taxonomy"
)

// Level reports how far constraints had to be relaxed to find a question.
type Level int

const (
	LevelExact Level = iota
	LevelAnyDifficulty
	LevelAnyCategory
)

func (l Level) String() string {
	switch l {
	case LevelAnyDifficulty:
		return "any_difficulty"
	case LevelAnyCategory:
		return "any_category"
	default:
		return "exact"
	}
}

// Constraints narrow the candidate set. Empty Categories means any category and
// zero tiers mean any difficulty.
type Constraints struct {
	Categories []string
	MinTier    taxonomy.Tier
	MaxTier    taxonomy.Tier
	Kinds      []questionbank.Kind
	// Rotates is set when the category came from the round-robin cursor.
	Rotates bool
}

type Config struct {
	CoverageThreshold  float64
	WeakSkillThreshold float64
}

// Selector is stateless; the rotation cursor lives on the session.
type Selector struct {
	tax  *taxonomy.Taxonomy
	bank *questionbank.Bank
	cfg  Config
}

func New(tax *taxonomy.Taxonomy, bank *questionbank.Bank, cfg Config) *Selector {
	return &Selector{tax: tax, bank: bank, cfg: cfg}
}

var questionKinds = []questionbank.Kind{questionbank.KindFormula, questionbank.KindExplanation}

// For returns the constraints of the session's current phase.
func (s *Selector) For(sess *session.Session) Constraints {
	switch sess.Phase {
	case session.PhaseCalibrate:
		return Constraints{
			Categories: s.rotate(sess),
			MinTier:    taxonomy.TierFoundation,
			MaxTier:    taxonomy.TierFoundation,
			Kinds:      questionKinds,
			Rotates:    true,
		}
	case session.PhaseCore:
		tier := int(sess.Difficulty.Tier)
		return Constraints{
			Categories: s.rotate(sess),
			MinTier:    taxonomy.ClampTier(tier - 1),
			MaxTier:    taxonomy.ClampTier(tier + 1),
			Kinds:      questionKinds,
			Rotates:    true,
		}
	case session.PhaseDeepDive:
		return Constraints{
			MinTier: taxonomy.TierAdvanced,
			MaxTier: taxonomy.TierAdvanced,
			Kinds:   questionKinds,
		}
	case session.PhaseCase:
		return Constraints{Kinds: []questionbank.Kind{questionbank.KindScenario}}
	default:
		return Constraints{}
	}
}

// rotate picks the target category from mandatory categories still below the
// coverage threshold, or from all mandatory categories once each is covered.
func (s *Selector) rotate(sess *session.Session) []string {
	tracker := coverage.NewTracker(s.tax, sess.Coverage)
	mandatory := s.tax.MandatoryCategories()

	var open []string
	for _, c := range mandatory {
		if tracker.Ratio(c) < s.cfg.CoverageThreshold {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		open = mandatory
	}
	if len(open) == 0 {
		return nil
	}
	idx := sess.Rotation % len(open)
	if idx < 0 {
		idx = 0
	}
	return []string{open[idx]}
}

// Select returns the best-ranked question satisfying c.
func (s *Selector) Select(sess *session.Session, c Constraints) (*questionbank.Question, bool) {
	candidates := s.bank.Candidates(questionbank.Query{
		Categories: c.Categories,
		MinTier:    c.MinTier,
		MaxTier:    c.MaxTier,
		Kinds:      c.Kinds,
		Exclude:    sess.Excluded(),
	})
	if len(candidates) == 0 {
		return nil, false
	}

	tracker := coverage.NewTracker(s.tax, sess.Coverage)
	weak := make(map[string]bool)
	for _, id := range tracker.WeakSkills(s.cfg.WeakSkillThreshold) {
		weak[id] = true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if weak[a.SkillID] != weak[b.SkillID] {
			return weak[a.SkillID]
		}
		if aa, ba := tracker.Attempts(a.SkillID), tracker.Attempts(b.SkillID); aa != ba {
			return aa < ba
		}
		return a.ID < b.ID
	})
	return candidates[0], true
}

// SelectBroadening tries c, then c without the difficulty band, then without
// the category.
func (s *Selector) SelectBroadening(sess *session.Session, c Constraints) (*questionbank.Question, Level, bool) {
	if q, ok := s.Select(sess, c); ok {
		return q, LevelExact, true
	}

	c.MinTier, c.MaxTier = 0, 0
	if q, ok := s.Select(sess, c); ok {
		return q, LevelAnyDifficulty, true
	}

	c.Categories = nil
	if q, ok := s.Select(sess, c); ok {
		return q, LevelAnyCategory, true
	}
	return nil, LevelAnyCategory, false
}
