package grading

import (
	"math"
	"testing"
)

func TestClampScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{in: -5, want: 0},
		{in: 42.5, want: 42.5},
		{in: 180, want: 100},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 100},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Fatalf("ClampScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMergeWeightsAndFlags(t *testing.T) {
	rule := Result{Score: 100, Confidence: 0.9, Feedback: "Structure ok.", Flags: []Flag{FlagAmbiguous}}
	model := Result{Score: 50, Confidence: 0.5, Feedback: " Missing explanation. ", Flags: []Flag{FlagAmbiguous, FlagNeedsEscalation}}

	got := Merge(rule, model, 0.7)
	if math.Abs(got.Score-85) > 1e-9 {
		t.Fatalf("expected 85, got %v", got.Score)
	}
	if math.Abs(got.Confidence-0.78) > 1e-9 {
		t.Fatalf("expected 0.78, got %v", got.Confidence)
	}
	if got.Feedback != "Structure ok. Missing explanation." {
		t.Fatalf("unexpected feedback %q", got.Feedback)
	}
	if len(got.Flags) != 2 || !got.Has(FlagNeedsEscalation) {
		t.Fatalf("unexpected flags %v", got.Flags)
	}
}

func TestWithFlagDoesNotAlias(t *testing.T) {
	base := Result{Flags: make([]Flag, 0, 4)}
	a := base.WithFlag(FlagAmbiguous)
	b := base.WithFlag(FlagGradingDeferred)

	if a.Has(FlagGradingDeferred) || b.Has(FlagAmbiguous) {
		t.Fatalf("flags leaked between results: %v %v", a.Flags, b.Flags)
	}
}
