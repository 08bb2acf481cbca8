package gemini

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spigell/interviewer/internal/ai"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGenerator struct {
	response   string
	tokens     int
	err        error
	delay      time.Duration
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, system, prompt string) (*Reply, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Reply{Text: s.response, Tokens: s.tokens}, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func TestEvaluatorEvaluate(t *testing.T) {
	stub := &stubGenerator{response: `{"score": 85, "rationale": "Correct lookup", "confidence": 0.8, "ambiguous": false}`, tokens: 120}
	ev := NewEvaluator("standard", stub, 0, zap.NewNop())

	rubric := ai.Rubric{
		Criteria:    map[string]string{"accuracy": "Uses exact match", "clarity": "Explains the steps"},
		KeyConcepts: []string{"exact", "false"},
	}

	eval, err := ev.Evaluate(context.Background(), "grade this", rubric, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if eval.Score != 85 || eval.Confidence != 0.8 || eval.Tokens != 120 {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Rationale != "Correct lookup" || eval.Raw == "" {
		t.Fatalf("unexpected rationale/raw: %+v", eval)
	}
	if ev.Name() != "standard" {
		t.Fatalf("unexpected name %q", ev.Name())
	}

	if !strings.Contains(stub.lastSystem, "- accuracy: Uses exact match\n- clarity: Explains the steps") {
		t.Fatalf("expected sorted rubric criteria in system instruction: %s", stub.lastSystem)
	}
	if !strings.Contains(stub.lastSystem, "Key concepts a strong answer mentions: exact, false.") {
		t.Fatalf("expected key concepts in system instruction: %s", stub.lastSystem)
	}
}

func TestEvaluatorErrorMapping(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		ev := NewEvaluator("", &stubGenerator{err: errors.New("connection refused")}, 0, zap.NewNop())
		_, err := ev.Evaluate(context.Background(), "p", ai.Rubric{}, time.Second)
		if !errors.Is(err, ai.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		ev := NewEvaluator("", &stubGenerator{delay: time.Second}, 0, zap.NewNop())
		_, err := ev.Evaluate(context.Background(), "p", ai.Rubric{}, 10*time.Millisecond)
		if !errors.Is(err, ai.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		ev := NewEvaluator("", &stubGenerator{response: "I think it deserves an 80"}, 0, zap.NewNop())
		_, err := ev.Evaluate(context.Background(), "p", ai.Rubric{}, time.Second)
		if !errors.Is(err, ai.ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		ev := NewEvaluator("", &stubGenerator{response: `{"rationale": "no score"}`}, 0, zap.NewNop())
		_, err := ev.Evaluate(context.Background(), "p", ai.Rubric{}, time.Second)
		if !errors.Is(err, ai.ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestEvaluatorLogsPreview(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	stub := &stubGenerator{response: `{"score": 10}`}
	ev := NewEvaluator("economy", stub, 5, zap.New(core))

	if _, err := ev.Evaluate(context.Background(), "a very long prompt", ai.Rubric{}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := observed.FilterMessage("gemini evaluation request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["prompt_preview"] != "a ver..." {
		t.Fatalf("unexpected preview %q", ctx["prompt_preview"])
	}
	if ctx["ai_model"] != "stub-model" {
		t.Fatalf("expected model field, got %v", ctx["ai_model"])
	}
}

func TestParseEvaluationHandlesCodeBlockAndStrings(t *testing.T) {
	raw := "```json\n{\"score\": \"72.5\", \"confidence\": \"0.4\", \"ambiguous\": \"true\", \"error_tags\": [\"missing_false\"]}\n```"
	eval, err := parseEvaluation(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if eval.Score != 72.5 || eval.Confidence != 0.4 || !eval.Ambiguous {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Rationale != "Issues: missing_false." {
		t.Fatalf("unexpected rationale %q", eval.Rationale)
	}
}

func TestParseEvaluationWithoutConfidence(t *testing.T) {
	eval, err := parseEvaluation(`Here you go: {"score": 50, "rationale": "ok"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(eval.Confidence) {
		t.Fatalf("expected NaN confidence when absent, got %v", eval.Confidence)
	}
}
