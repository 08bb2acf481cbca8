package ai

import (
	"context"
	"errors"
	"testing"
)

func TestCandidateAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		expect string
	}{
		{name: "markers", prompt: "Question\n" + AnswerOpen + "\n  use VLOOKUP \n" + AnswerClose + "\nJSON:", expect: "use VLOOKUP"},
		{name: "missing close", prompt: AnswerOpen + " partial", expect: "partial"},
		{name: "no markers", prompt: "plain prompt", expect: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CandidateAnswer(tt.prompt); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestClassifyContextError(t *testing.T) {
	if !errors.Is(ClassifyContextError(context.DeadlineExceeded), ErrTimeout) {
		t.Fatalf("deadline should map to timeout")
	}
	if !errors.Is(ClassifyContextError(context.Canceled), ErrUnavailable) {
		t.Fatalf("cancel should map to unavailable")
	}
}
