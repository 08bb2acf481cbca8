package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/session"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := New(questionbank.Default())

	s := session.New("s-1", "cand", time.Now(), time.Hour)
	s.Phase = session.PhaseCalibrate
	s.Asked = []string{"fmt-001"}
	if err := repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	turn := session.Turn{Number: 1, QuestionID: "fmt-001", Method: grading.MethodRule, Score: 100, Flags: []grading.Flag{grading.FlagAmbiguous}}
	for i := 0; i < 2; i++ {
		if err := repo.AppendResponse(ctx, "s-1", turn); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s.Asked[0] = "mutated"
	turn.Flags[0] = grading.FlagGradingDeferred

	loaded, err := repo.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Phase != session.PhaseCalibrate || loaded.Asked[0] != "fmt-001" {
		t.Fatalf("stored session must be a copy: %+v", loaded)
	}
	if len(loaded.Responses) != 1 || loaded.Persisted != 1 {
		t.Fatalf("expected one idempotent response, got %d (persisted %d)", len(loaded.Responses), loaded.Persisted)
	}
	if loaded.Responses[0].Flags[0] != grading.FlagAmbiguous {
		t.Fatalf("stored flags must be a copy, got %v", loaded.Responses[0].Flags)
	}

	qs, err := repo.LoadQuestionBank(ctx)
	if err != nil || len(qs) != len(questionbank.Default()) {
		t.Fatalf("unexpected question bank: %d, %v", len(qs), err)
	}
}

func TestErrors(t *testing.T) {
	repo := New(nil)

	if _, err := repo.LoadSession(context.Background(), "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.SaveSession(ctx, session.New("s", "", time.Now(), time.Hour)); !errors.Is(err, session.ErrRepositoryUnavailable) {
		t.Fatalf("expected ErrRepositoryUnavailable, got %v", err)
	}
	if err := repo.AppendResponse(ctx, "s", session.Turn{Number: 1}); !errors.Is(err, session.ErrRepositoryUnavailable) {
		t.Fatalf("expected ErrRepositoryUnavailable, got %v", err)
	}
}
