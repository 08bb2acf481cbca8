package model

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/questionbank"

	"go.uber.org/zap"
)

//go:embed prompt.md
var promptTemplate string

// defaultConfidence is used when the capability does not report one.
const defaultConfidence = 0.7

var sanitizer = strings.NewReplacer("[", "(", "]", ")")

// Input is everything the model grader needs for one answer.
type Input struct {
	Question *questionbank.Question
	Answer   string
	// Rule is the structural analysis, when the rule grader ran first.
	Rule    *grading.Result
	Timeout time.Duration
}

// Graded is a normalized model verdict plus the token usage of the call.
type Graded struct {
	grading.Result
	Tokens int
}

// Grader turns a capability evaluation into a grading result.
type Grader struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Grader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grader{logger: logger}
}

// Grade builds the prompt for in and normalizes the capability output. Errors are
// the capability errors from the ai package.
func (g *Grader) Grade(ctx context.Context, capability ai.Capability, in Input) (Graded, error) {
	if capability == nil {
		return Graded{}, fmt.Errorf("no capability: %w", ai.ErrUnavailable)
	}
	if in.Question == nil {
		return Graded{}, errors.New("question is required")
	}

	prompt := BuildPrompt(in.Question, in.Answer, in.Rule)
	eval, err := capability.Evaluate(ctx, prompt, RubricFor(in.Question), in.Timeout)
	if err != nil {
		return Graded{}, err
	}
	if eval == nil {
		return Graded{}, fmt.Errorf("%s returned no evaluation: %w", capability.Name(), ai.ErrMalformedResponse)
	}

	res, err := normalize(eval)
	if err != nil {
		g.logger.Warn("capability returned an unusable score",
			zap.String("capability", capability.Name()),
			zap.String("question_id", in.Question.ID),
			zap.Float64("score", eval.Score),
		)
		return Graded{}, err
	}
	return Graded{Result: res, Tokens: eval.Tokens}, nil
}

func normalize(eval *ai.Evaluation) (grading.Result, error) {
	if math.IsNaN(eval.Score) || math.IsInf(eval.Score, 0) {
		return grading.Result{}, fmt.Errorf("score %v: %w", eval.Score, ai.ErrMalformedResponse)
	}

	confidence := eval.Confidence
	if math.IsNaN(confidence) {
		confidence = defaultConfidence
	}

	res := grading.Result{
		Score:      eval.Score,
		Confidence: grading.ClampConfidence(confidence),
		Feedback:   strings.TrimSpace(eval.Rationale),
	}
	if confidence < 0 || confidence > 1 {
		res = res.WithFlag(grading.FlagAmbiguous)
	}
	if eval.Score < 0 || eval.Score > 100 {
		res.Score = grading.ClampScore(eval.Score)
		res.Confidence /= 2
		res = res.WithFlag(grading.FlagAmbiguous)
	}
	if eval.Ambiguous {
		res = res.WithFlag(grading.FlagAmbiguous)
	}
	return res, nil
}

// RubricFor collects the rubric the capability grades against.
func RubricFor(q *questionbank.Question) ai.Rubric {
	r := ai.Rubric{KeyConcepts: append([]string(nil), q.KeyConcepts...)}
	if len(q.Rubric) > 0 {
		r.Criteria = make(map[string]string, len(q.Rubric))
		for k, v := range q.Rubric {
			r.Criteria[k] = v
		}
	}
	return r
}

// BuildPrompt fills the grading template. The answer is sanitized and wrapped in
// the answer markers so it cannot close them or inject bracketed directives.
func BuildPrompt(q *questionbank.Question, answer string, rule *grading.Result) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Question:\n{{QUESTION}}\n\nCandidate answer:\n{{ANSWER}}\n\nJSON Response:"
	}

	expected := strings.TrimSpace(q.ExpectedAnswer)
	if expected == "" {
		expected = "Not provided."
	}

	r := strings.NewReplacer(
		"{{QUESTION}}", strings.TrimSpace(q.Prompt),
		"{{SKILL}}", q.SkillID,
		"{{RUBRIC}}", formatRubric(q),
		"{{EXPECTED}}", expected,
		"{{RULE_ANALYSIS}}", formatRule(rule),
		"{{ANSWER}}", ai.AnswerOpen+"\n"+Sanitize(answer)+"\n"+ai.AnswerClose,
	)
	return r.Replace(template)
}

// Sanitize strips forged answer markers and turns square brackets into parentheses.
func Sanitize(answer string) string {
	answer = strings.ReplaceAll(answer, ai.AnswerClose, "")
	answer = strings.ReplaceAll(answer, ai.AnswerOpen, "")
	return strings.TrimSpace(sanitizer.Replace(answer))
}

func formatRubric(q *questionbank.Question) string {
	if len(q.Rubric) == 0 && len(q.KeyConcepts) == 0 {
		return "- correctness: The answer solves the question as asked."
	}
	keys := make([]string, 0, len(q.Rubric))
	for k := range q.Rubric {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, q.Rubric[k])
	}
	if len(q.KeyConcepts) > 0 {
		fmt.Fprintf(&b, "- key concepts: %s\n", strings.Join(q.KeyConcepts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRule(rule *grading.Result) string {
	if rule == nil {
		return "None."
	}
	return fmt.Sprintf("structural score %.0f/100; %s", rule.Score, rule.Feedback)
}
