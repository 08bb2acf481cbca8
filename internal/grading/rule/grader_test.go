package rule

import (
	"strings"
	"testing"

	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/taxonomy"
)

func TestGradeBands(t *testing.T) {
	t.Parallel()

	vlookup := &questionbank.Question{
		ID:    "vlk",
		Kind:  questionbank.KindFormula,
		Rules: &questionbank.Rules{AnyOf: []string{"VLOOKUP", "XLOOKUP"}, RequireAbsolute: true, RequireRange: true},
	}

	tests := []struct {
		name      string
		answer    string
		score     float64
		ambiguous bool
		feedback  string
	}{
		{name: "correct", answer: "=VLOOKUP(G2,$A$2:$C$500,3,FALSE)", score: BandFull},
		{name: "formula inside prose", answer: "I would use =VLOOKUP(G2,$A$2:$C$500,3,FALSE) and copy it down.", score: BandFull},
		{name: "missing absolute", answer: "=VLOOKUP(G2,A2:C500,3,FALSE)", score: BandPartial, ambiguous: true, feedback: "absolute"},
		{name: "wrong arity and no anchor", answer: "=VLOOKUP(G2,A2:C500)", score: BandWeak, ambiguous: true, feedback: "VLOOKUP expects 3 to 4 arguments, got 2."},
		{name: "unbalanced", answer: "=VLOOKUP(G2,$A$2:$C$500,3,FALSE", score: BandPartial, ambiguous: true, feedback: "not balanced"},
		{name: "many faults", answer: "=LOOKITUP(G2) + #REF!", score: BandNone},
		{name: "not a formula", answer: "I would look it up manually.", score: BandNone},
	}

	g := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := g.Grade(tt.answer, vlookup)
			if got.Score != tt.score {
				t.Fatalf("expected score %v, got %v (%s)", tt.score, got.Score, got.Feedback)
			}
			if got.Has(grading.FlagAmbiguous) != tt.ambiguous {
				t.Fatalf("unexpected ambiguous flag: %v", got.Flags)
			}
			if tt.feedback != "" && !strings.Contains(got.Feedback, tt.feedback) {
				t.Fatalf("expected feedback to contain %q, got %q", tt.feedback, got.Feedback)
			}
		})
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	q := &questionbank.Question{Rules: &questionbank.Rules{Functions: []string{"SUMIFS"}, RequireRange: true}}
	answers := []string{
		`=SUMIFS(E2:E200,C2:C200,"IT",D2:D200,">"&DATE(2020,1,1))`,
		`=SUMIF(C2:C200,"IT")`,
		"no idea",
		`=SUMIFS(E2:E200,"IT"`,
	}

	g := New()
	for _, a := range answers {
		first := g.Grade(a, q)
		for i := 0; i < 20; i++ {
			if again := g.Grade(a, q); again.Score != first.Score || again.Feedback != first.Feedback {
				t.Fatalf("grade changed for %q: %+v vs %+v", a, first, again)
			}
		}
	}
}

func TestExpectedAnswersScoreFull(t *testing.T) {
	tax := taxonomy.Default()
	bank, err := questionbank.New(tax, questionbank.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := New()
	for _, q := range bank.All() {
		if !q.HasRules() || q.ExpectedAnswer == "" {
			continue
		}
		got := g.Grade(q.ExpectedAnswer, q)
		if got.Score != BandFull {
			t.Fatalf("expected answer of %s scored %v: %s", q.ID, got.Score, got.Feedback)
		}
	}
}

func TestResembles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer string
		want   bool
	}{
		{answer: "=A1*B1", want: true},
		{answer: "Use `=SUM(A2:A50)` for the total", want: true},
		{answer: "A1 = relative reference, $A$1 = absolute", want: false},
		{answer: "x = relative, y = fixed", want: false},
		{answer: "Pivot tables summarize data", want: false},
		{answer: "", want: false},
	}
	for _, tt := range tests {
		if got := Resembles(tt.answer); got != tt.want {
			t.Fatalf("Resembles(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestAnchoring(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref      string
		abs, rel bool
	}{
		{ref: "A1", abs: false, rel: true},
		{ref: "$A$1", abs: true, rel: false},
		{ref: "$A1", abs: true, rel: true},
		{ref: "A$1", abs: true, rel: true},
		{ref: "$D", abs: true, rel: false},
	}
	for _, tt := range tests {
		abs, rel := anchoring(tt.ref)
		if abs != tt.abs || rel != tt.rel {
			t.Fatalf("anchoring(%q) = %v,%v want %v,%v", tt.ref, abs, rel, tt.abs, tt.rel)
		}
	}
}
