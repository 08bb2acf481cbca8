package ai

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when an evaluation does not finish within its timeout.
	ErrTimeout = errors.New("evaluation capability timed out")
	// ErrUnavailable is returned when the backend cannot be reached or refused the call.
	ErrUnavailable = errors.New("evaluation capability unavailable")
	// ErrMalformedResponse is returned when the backend output cannot be normalized.
	ErrMalformedResponse = errors.New("malformed evaluation response")
)

// Markers delimiting the candidate answer inside a grading prompt.
const (
	AnswerOpen  = "<candidate_answer>"
	AnswerClose = "</candidate_answer>"
)

// Rubric carries the criteria an answer is graded against.
type Rubric struct {
	Criteria    map[string]string
	KeyConcepts []string
}

// Evaluation is the normalized result of a capability call.
// Score is on the 0–100 scale; Confidence is NaN when the backend did not report one.
type Evaluation struct {
	Score      float64
	Rationale  string
	Raw        string
	Confidence float64
	Ambiguous  bool
	Tokens     int
}

// Capability evaluates a rubric-bound prompt.
type Capability interface {
	Name() string
	Evaluate(ctx context.Context, prompt string, rubric Rubric, timeout time.Duration) (*Evaluation, error)
}

// CandidateAnswer returns the text between the answer markers of a prompt.
func CandidateAnswer(prompt string) string {
	start := strings.Index(prompt, AnswerOpen)
	if start < 0 {
		return ""
	}
	rest := prompt[start+len(AnswerOpen):]
	end := strings.Index(rest, AnswerClose)
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// ClassifyContextError maps context errors to the capability taxonomy.
func ClassifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnavailable
}
