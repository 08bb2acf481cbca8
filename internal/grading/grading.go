package grading

import (
	"math"
	"strings"
)

// Method records which grader(s) produced a stored score.
type Method string

const (
	MethodRule     Method = "rule"
	MethodModel    Method = "model"
	MethodHybrid   Method = "hybrid"
	MethodDeferred Method = "deferred"
)

// Flag annotates a grade.
type Flag string

const (
	FlagNeedsEscalation   Flag = "needs_escalation"
	FlagAmbiguous         Flag = "ambiguous"
	FlagReducedConfidence Flag = "reduced_confidence"
	FlagGradingDeferred   Flag = "grading_deferred"
	FlagEscalationFailed  Flag = "escalation_failed"
)

// Result is produced by a single grader invocation.
type Result struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`
	Flags      []Flag  `json:"flags,omitempty"`
}

// Has reports whether flag is set.
func (r Result) Has(flag Flag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// WithFlag returns r with flag added once.
func (r Result) WithFlag(flag Flag) Result {
	if r.Has(flag) {
		return r
	}
	r.Flags = append(append([]Flag(nil), r.Flags...), flag)
	return r
}

// ClampScore bounds v into [0,100]. NaN becomes 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// ClampConfidence bounds v into [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Merge combines a rule and a model result with ruleWeight applied to the rule side.
func Merge(rule, model Result, ruleWeight float64) Result {
	w := ClampConfidence(ruleWeight)
	out := Result{
		Score:      ClampScore(w*rule.Score + (1-w)*model.Score),
		Confidence: ClampConfidence(w*rule.Confidence + (1-w)*model.Confidence),
		Feedback:   joinFeedback(rule.Feedback, model.Feedback),
	}
	for _, f := range rule.Flags {
		out = out.WithFlag(f)
	}
	for _, f := range model.Flags {
		out = out.WithFlag(f)
	}
	return out
}

func joinFeedback(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
