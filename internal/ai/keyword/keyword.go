// Package keyword provides an offline evaluation capability that scores an
// answer by the rubric key concepts it mentions.
package keyword

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/interviewer/internal/ai"
)

const (
	shortAnswerRunes = 20
	noConceptScore   = 50
	noConceptConf    = 0.3
	matchConfidence  = 0.6
	emptyConfidence  = 0.9
)

// Evaluator matches key concepts case-insensitively. It never calls out to a
// network service, so it is used when no model backend is configured.
type Evaluator struct {
	name string
}

func New(name string) *Evaluator {
	if name = strings.TrimSpace(name); name == "" {
		name = "keyword"
	}
	return &Evaluator{name: name}
}

func (e *Evaluator) Name() string {
	return e.name
}

func (e *Evaluator) Evaluate(ctx context.Context, prompt string, rubric ai.Rubric, _ time.Duration) (*ai.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, ai.ClassifyContextError(err)
	}

	answer := strings.ToLower(ai.CandidateAnswer(prompt))
	if answer == "" {
		return &ai.Evaluation{Score: 0, Confidence: emptyConfidence, Rationale: "No answer given."}, nil
	}

	if len(rubric.KeyConcepts) == 0 {
		return &ai.Evaluation{
			Score:      noConceptScore,
			Confidence: noConceptConf,
			Ambiguous:  true,
			Rationale:  "No key concepts to compare against.",
		}, nil
	}

	var hits, missing []string
	for _, c := range rubric.KeyConcepts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.Contains(answer, strings.ToLower(c)) {
			hits = append(hits, c)
		} else {
			missing = append(missing, c)
		}
	}

	total := len(hits) + len(missing)
	if total == 0 {
		return &ai.Evaluation{Score: noConceptScore, Confidence: noConceptConf, Ambiguous: true}, nil
	}

	eval := &ai.Evaluation{
		Score:      100 * float64(len(hits)) / float64(total),
		Confidence: matchConfidence,
		Ambiguous:  utf8.RuneCountInString(answer) < shortAnswerRunes,
	}

	switch {
	case len(missing) == 0:
		eval.Rationale = fmt.Sprintf("Covers all key concepts: %s.", strings.Join(hits, ", "))
	case len(hits) == 0:
		eval.Rationale = fmt.Sprintf("Misses the key concepts: %s.", strings.Join(missing, ", "))
	default:
		eval.Rationale = fmt.Sprintf("Mentions %s; misses %s.", strings.Join(hits, ", "), strings.Join(missing, ", "))
	}
	eval.Raw = eval.Rationale
	return eval, nil
}
