package session

import (
	"testing"
	"time"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/taxonomy"
)

func TestPhaseOrder(t *testing.T) {
	t.Parallel()

	sequence := []Phase{PhaseIntro, PhaseCalibrate, PhaseCore, PhaseDeepDive, PhaseCase, PhaseReview, PhaseSummary, PhaseDone}
	for i, p := range sequence {
		if p.Order() != i {
			t.Fatalf("%s: expected order %d, got %d", p, i, p.Order())
		}
	}
	if Phase("BOGUS").Valid() {
		t.Fatalf("unknown phase must be invalid")
	}

	graded := map[Phase]bool{PhaseCalibrate: true, PhaseCore: true, PhaseDeepDive: true, PhaseCase: true}
	for _, p := range sequence {
		if p.Graded() != graded[p] {
			t.Fatalf("%s: unexpected graded=%v", p, p.Graded())
		}
	}
	if !PhaseIntro.Scripted() || !PhaseReview.Scripted() || PhaseCore.Scripted() {
		t.Fatalf("unexpected scripted phases")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New("s-1", "cand", start, 45*time.Minute)
	s.Coverage["lookup"] = coverage.Entry{Attempts: 1, BestScore: 40}
	s.Asked = []string{"lk-001"}
	s.Current = &Prompt{Kind: PromptQuestion, QuestionID: "lk-002"}
	s.Responses = []Turn{{Number: 1, Flags: []grading.Flag{grading.FlagAmbiguous}}}

	c := s.Clone()
	c.Coverage["lookup"] = coverage.Entry{Attempts: 2, BestScore: 90}
	c.Asked = append(c.Asked, "lk-002")
	c.Current.QuestionID = "changed"
	c.Responses[0].Flags[0] = grading.FlagGradingDeferred
	c.Difficulty.Tier = taxonomy.TierAdvanced

	if s.Coverage["lookup"].Attempts != 1 || len(s.Asked) != 1 || s.Current.QuestionID != "lk-002" {
		t.Fatalf("clone mutation leaked into original: %+v", s)
	}
	if s.Responses[0].Flags[0] != grading.FlagAmbiguous {
		t.Fatalf("turn flags alias the original")
	}
	if s.Difficulty.Tier != taxonomy.TierFoundation {
		t.Fatalf("difficulty leaked into original")
	}
}

func TestRemainingAndPending(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New("s-1", "", start, 10*time.Minute)

	if got := s.Remaining(start.Add(4 * time.Minute)); got != 6*time.Minute {
		t.Fatalf("expected 6m remaining, got %v", got)
	}
	if got := s.Remaining(start.Add(time.Hour)); got != 0 {
		t.Fatalf("expected remaining to floor at zero, got %v", got)
	}

	s.Responses = []Turn{{Number: 1}, {Number: 2}, {Number: 3}}
	s.Persisted = 1
	pending := s.Pending()
	if len(pending) != 2 || pending[0].Number != 2 {
		t.Fatalf("unexpected pending turns: %+v", pending)
	}
	s.Persisted = 3
	if s.Pending() != nil {
		t.Fatalf("expected nothing pending")
	}
}

func TestExcluded(t *testing.T) {
	s := New("s", "", time.Now(), 0)
	s.Asked = []string{"a", "b"}
	if !s.HasAsked("a") || s.HasAsked("c") {
		t.Fatalf("unexpected HasAsked result")
	}
	if ex := s.Excluded(); len(ex) != 2 {
		t.Fatalf("expected 2 excluded ids, got %d", len(ex))
	}
}
