// Package report aggregates a finished session into a scored summary.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/taxonomy"
)

// Level is a performance band of the weighted total.
type Level string

const (
	LevelExpert       Level = "Expert"
	LevelAdvanced     Level = "Advanced"
	LevelIntermediate Level = "Intermediate"
	LevelBasic        Level = "Basic"
	LevelNovice       Level = "Novice"
)

// LevelFor maps a 0–100 total to its band.
func LevelFor(total float64) Level {
	switch {
	case total >= 90:
		return LevelExpert
	case total >= 80:
		return LevelAdvanced
	case total >= 70:
		return LevelIntermediate
	case total >= 60:
		return LevelBasic
	default:
		return LevelNovice
	}
}

const maxRecommendations = 6

// categoryAdvice is offered when a category scores below adviceThreshold,
// including when it was never assessed.
var categoryAdvice = []struct {
	category string
	advice   []string
}{
	{"functions", []string{
		"Practice lookups with VLOOKUP and INDEX/MATCH, and nested IF formulas.",
		"Work through conditional aggregates such as COUNTIF and SUMIF.",
	}},
	{"data_ops", []string{
		"Build pivot tables to summarize and report on raw data.",
		"Practice data validation and conditional formatting rules.",
	}},
	{"analysis", []string{
		"Try what-if analysis and Goal Seek on a small model.",
	}},
}

const adviceThreshold = 70

type Config struct {
	// StrengthThreshold is the best score a skill needs to be listed as a strength.
	StrengthThreshold float64 `mapstructure:"strength-threshold"`
	// WeakSkillThreshold marks attempted skills below it as gaps.
	WeakSkillThreshold float64 `mapstructure:"weak-skill-threshold"`
}

func DefaultConfig() Config {
	return Config{StrengthThreshold: 80, WeakSkillThreshold: 60}
}

type CategoryScore struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Weight    float64 `json:"weight"`
	Mandatory bool    `json:"mandatory"`
	// Score is the mean best score of the attempted skills, 0 when none were.
	Score     float64 `json:"score"`
	Coverage  float64 `json:"coverage"`
	Attempted bool    `json:"attempted"`
}

type SkillScore struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Category string  `json:"category"`
	Attempts int     `json:"attempts"`
	Best     float64 `json:"best"`
}

// Report is the summary of one session.
type Report struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id,omitempty"`

	Total float64 `json:"total"`
	Level Level   `json:"level"`

	Categories []CategoryScore `json:"categories"`
	Skills     []SkillScore    `json:"skills"`
	Strengths  []string        `json:"strengths"`
	Gaps       []string        `json:"gaps"`

	Recommendations []string `json:"recommendations"`

	Coverage       float64 `json:"coverage"`
	MeanConfidence float64 `json:"mean_confidence"`
	Questions      int     `json:"questions"`
	Deferred       int     `json:"deferred"`
	Escalated      int     `json:"escalated"`
	Cost           float64 `json:"cost"`

	Partial   bool              `json:"partial"`
	EndReason session.EndReason `json:"end_reason,omitempty"`
	Duration  time.Duration     `json:"duration"`

	Context []session.Exchange `json:"context,omitempty"`
	Review  []session.Exchange `json:"review,omitempty"`
	Turns   []session.Turn     `json:"turns"`
}

// Builder computes reports against a taxonomy. It holds no per-session state.
type Builder struct {
	tax *taxonomy.Taxonomy
	cfg Config
}

func NewBuilder(tax *taxonomy.Taxonomy, cfg Config) *Builder {
	return &Builder{tax: tax, cfg: cfg}
}

// Build aggregates the session's turn log. Deferred turns count as questions
// but contribute neither score nor confidence.
func (b *Builder) Build(s *session.Session) *Report {
	tracker := coverage.NewTracker(b.tax, s.Coverage)

	r := &Report{
		SessionID:   s.ID,
		CandidateID: s.CandidateID,
		Coverage:    tracker.MandatoryRatio(),
		Questions:   len(s.Responses),
		Partial:     s.Partial,
		EndReason:   s.EndReason,
		Duration:    s.UpdatedAt.Sub(s.StartedAt),
		Context:     append([]session.Exchange(nil), s.Context...),
		Review:      append([]session.Exchange(nil), s.Review...),
		Turns:       append([]session.Turn(nil), s.Responses...),
		Strengths:   []string{},
		Gaps:        []string{},
	}

	var confSum float64
	var graded int
	for _, t := range s.Responses {
		r.Cost += t.Cost
		if t.Escalated {
			r.Escalated++
		}
		if t.Deferred() {
			r.Deferred++
			continue
		}
		confSum += t.Confidence
		graded++
	}
	if graded > 0 {
		r.MeanConfidence = confSum / float64(graded)
	}

	for _, sk := range b.tax.Skills() {
		e, ok := s.Coverage[sk.ID]
		if !ok || e.Attempts == 0 {
			continue
		}
		r.Skills = append(r.Skills, SkillScore{
			ID:       sk.ID,
			Label:    sk.Label,
			Category: sk.Category,
			Attempts: e.Attempts,
			Best:     e.BestScore,
		})
		if e.BestScore >= b.cfg.StrengthThreshold {
			r.Strengths = append(r.Strengths, sk.ID)
		}
	}

	var weighted, weights float64
	for _, c := range b.tax.Categories() {
		cs := CategoryScore{
			ID:        c.ID,
			Label:     c.Label,
			Weight:    c.Weight,
			Mandatory: c.Mandatory,
			Coverage:  tracker.Ratio(c.ID),
		}
		var sum float64
		var n int
		for _, id := range b.tax.SkillsIn(c.ID) {
			if e := s.Coverage[id]; e.Attempts > 0 {
				sum += e.BestScore
				n++
			}
		}
		if n > 0 {
			cs.Attempted = true
			cs.Score = sum / float64(n)
			weighted += cs.Score * c.Weight
			weights += c.Weight
		}
		r.Categories = append(r.Categories, cs)
	}
	// Weights are renormalized over the categories the candidate actually saw.
	if weights > 0 {
		r.Total = math.Round(weighted/weights*10) / 10
	}
	r.Level = LevelFor(r.Total)

	sort.Strings(r.Strengths)
	r.Gaps = append(r.Gaps, tracker.WeakSkills(b.cfg.WeakSkillThreshold)...)
	for _, id := range b.tax.MandatorySkills() {
		if tracker.Attempts(id) == 0 {
			r.Gaps = append(r.Gaps, id)
		}
	}

	r.Recommendations = b.recommend(r, graded)

	return r
}

func (b *Builder) recommend(r *Report, graded int) []string {
	var out []string

	switch {
	case r.Total < 60:
		out = append(out,
			"Revisit the fundamentals: cell references, basic formulas and simple functions.",
			"Take a structured spreadsheet basics course.",
		)
	case r.Total < 80:
		out = append(out,
			"Practice intermediate skills on real data sets.",
			"Start with the lowest scoring categories below.",
		)
	}

	scores := make(map[string]float64, len(r.Categories))
	for _, c := range r.Categories {
		scores[c.ID] = c.Score
	}
	for _, a := range categoryAdvice {
		if score, ok := scores[a.category]; ok && score < adviceThreshold {
			out = append(out, a.advice...)
		}
	}

	if graded > 0 && r.MeanConfidence < 0.7 {
		out = append(out, "Answer a wider range of practice scenarios to make responses more decisive.")
	}

	out = append(out,
		"Keep a personal reference sheet of the formulas you use most.",
		"Practice on data sets from your own line of work.",
	)

	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}

// WriteText renders a plain-text summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Session %s\n", r.SessionID)
	if r.CandidateID != "" {
		fmt.Fprintf(&b, "Candidate: %s\n", r.CandidateID)
	}
	fmt.Fprintf(&b, "Overall: %.1f/100 (%s)\n", r.Total, r.Level)
	if r.Partial {
		fmt.Fprintf(&b, "Interview ended early: %s\n", r.EndReason)
	}
	fmt.Fprintf(&b, "Questions: %d, deferred: %d, escalated: %d\n", r.Questions, r.Deferred, r.Escalated)
	fmt.Fprintf(&b, "Mandatory coverage: %.0f%%, mean confidence: %.2f\n", r.Coverage*100, r.MeanConfidence)

	b.WriteString("\nCategories:\n")
	for _, c := range r.Categories {
		if !c.Attempted {
			fmt.Fprintf(&b, "  %-24s not assessed\n", c.Label)
			continue
		}
		fmt.Fprintf(&b, "  %-24s %5.1f  (coverage %.0f%%)\n", c.Label, c.Score, c.Coverage*100)
	}

	if len(r.Strengths) > 0 {
		fmt.Fprintf(&b, "\nStrengths: %s\n", strings.Join(r.Strengths, ", "))
	}
	if len(r.Gaps) > 0 {
		fmt.Fprintf(&b, "Gaps: %s\n", strings.Join(r.Gaps, ", "))
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	b.WriteString("\nTurns:\n")
	for _, t := range r.Turns {
		fmt.Fprintf(&b, "  #%d %-10s %-9s %-8s %5.1f  conf %.2f\n", t.Number, t.QuestionID, t.Phase, t.Method, t.Score, t.Confidence)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
