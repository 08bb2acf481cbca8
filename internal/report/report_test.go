package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/taxonomy"
)

func finishedSession() *session.Session {
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := session.New("s-1", "cand-1", started, 45*time.Minute)
	s.UpdatedAt = started.Add(31 * time.Minute)
	s.Coverage = coverage.Vector{
		"references":    {Attempts: 1, BestScore: 80},
		"countif":       {Attempts: 2, BestScore: 100},
		"vlookup":       {Attempts: 1, BestScore: 50},
		"sorting":       {Attempts: 1, BestScore: 70},
		"case_analysis": {Attempts: 1, BestScore: 90},
	}
	s.Responses = []session.Turn{
		{Number: 1, QuestionID: "ref-001", Method: grading.MethodRule, Score: 80, Confidence: 0.8, Cost: 0},
		{Number: 2, QuestionID: "cnt-001", Method: grading.MethodHybrid, Score: 60, Confidence: 0.9, Cost: 0.01},
		{Number: 3, QuestionID: "cnt-002", Method: grading.MethodModel, Score: 100, Confidence: 0.7, Cost: 0.01},
		{Number: 4, QuestionID: "vlk-001", Method: grading.MethodDeferred, Flags: []grading.Flag{grading.FlagGradingDeferred}},
		{Number: 5, QuestionID: "vlk-002", Method: grading.MethodHybrid, Score: 50, Confidence: 0.6, Cost: 0.02},
		{Number: 6, QuestionID: "srt-001", Method: grading.MethodRule, Score: 70, Confidence: 1.0},
		{Number: 7, QuestionID: "case-001", Method: grading.MethodHybrid, Score: 90, Confidence: 0.8, Cost: 0.12, Escalated: true},
	}
	s.TurnCounter = len(s.Responses)
	s.Terminal = true
	s.Partial = true
	s.EndReason = session.EndMaxDuration
	return s
}

func TestBuild(t *testing.T) {
	r := NewBuilder(taxonomy.Default(), DefaultConfig()).Build(finishedSession())

	// (0.15*80 + 0.35*75 + 0.25*70 + 0.10*90) / 0.85
	if r.Total != 76.2 {
		t.Fatalf("expected total 76.2, got %v", r.Total)
	}
	if r.Level != LevelIntermediate {
		t.Fatalf("expected Intermediate, got %s", r.Level)
	}
	if r.Questions != 7 || r.Deferred != 1 || r.Escalated != 1 {
		t.Fatalf("unexpected counters: questions=%d deferred=%d escalated=%d", r.Questions, r.Deferred, r.Escalated)
	}
	if diff := r.MeanConfidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected mean confidence 0.8, got %v", r.MeanConfidence)
	}
	if diff := r.Cost - 0.16; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost 0.16, got %v", r.Cost)
	}
	if diff := r.Coverage - 4.0/15.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected coverage 4/15, got %v", r.Coverage)
	}
	if r.Duration != 31*time.Minute || !r.Partial || r.EndReason != session.EndMaxDuration {
		t.Fatalf("unexpected session facts: %+v", r)
	}

	if got := strings.Join(r.Strengths, ","); got != "case_analysis,countif,references" {
		t.Fatalf("unexpected strengths %q", got)
	}
	if len(r.Gaps) != 12 || r.Gaps[0] != "vlookup" || r.Gaps[1] != "conditional_formatting" {
		t.Fatalf("unexpected gaps %v", r.Gaps)
	}

	var charts, functions CategoryScore
	for _, c := range r.Categories {
		switch c.ID {
		case "charts":
			charts = c
		case "functions":
			functions = c
		}
	}
	if charts.Attempted || charts.Score != 0 {
		t.Fatalf("charts should not be assessed: %+v", charts)
	}
	if !functions.Attempted || functions.Score != 75 {
		t.Fatalf("unexpected functions score: %+v", functions)
	}

	if len(r.Skills) != 5 || r.Skills[0].ID != "case_analysis" || r.Skills[1].Attempts != 2 {
		t.Fatalf("unexpected skills %+v", r.Skills)
	}
	if len(r.Turns) != 7 {
		t.Fatalf("expected full turn log, got %d", len(r.Turns))
	}
}

func TestBuildEmptySession(t *testing.T) {
	s := session.New("s-2", "", time.Now(), time.Hour)
	r := NewBuilder(taxonomy.Default(), DefaultConfig()).Build(s)

	if r.Total != 0 || r.Level != LevelNovice {
		t.Fatalf("expected empty report to be Novice with 0, got %v %s", r.Total, r.Level)
	}
	if len(r.Gaps) != 15 {
		t.Fatalf("expected every mandatory skill to be a gap, got %d", len(r.Gaps))
	}
	if r.Strengths == nil || r.MeanConfidence != 0 {
		t.Fatalf("unexpected empty report: %+v", r)
	}
}

func TestRecommendations(t *testing.T) {
	builder := NewBuilder(taxonomy.Default(), DefaultConfig())

	r := builder.Build(finishedSession())
	// intermediate total, analysis never assessed, then the general advice
	want := []string{
		"Practice intermediate skills on real data sets.",
		"Start with the lowest scoring categories below.",
		"Try what-if analysis and Goal Seek on a small model.",
		"Keep a personal reference sheet of the formulas you use most.",
		"Practice on data sets from your own line of work.",
	}
	if strings.Join(r.Recommendations, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected recommendations:\n%s", strings.Join(r.Recommendations, "\n"))
	}

	empty := builder.Build(session.New("s-2", "", time.Now(), time.Hour))
	if len(empty.Recommendations) != maxRecommendations {
		t.Fatalf("expected recommendations capped at %d, got %d", maxRecommendations, len(empty.Recommendations))
	}
	if !strings.HasPrefix(empty.Recommendations[0], "Revisit the fundamentals") {
		t.Fatalf("expected fundamentals first for a low total, got %q", empty.Recommendations[0])
	}
	for _, rec := range empty.Recommendations {
		if strings.Contains(rec, "decisive") {
			t.Fatalf("confidence advice needs graded turns, got %q", rec)
		}
	}

	unsure := finishedSession()
	for i := range unsure.Responses {
		unsure.Responses[i].Confidence = 0.5
	}
	r = builder.Build(unsure)
	found := false
	for _, rec := range r.Recommendations {
		found = found || strings.Contains(rec, "decisive")
	}
	if !found {
		t.Fatalf("expected confidence advice below 0.7, got %v", r.Recommendations)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		total float64
		want  Level
	}{
		{total: 95, want: LevelExpert},
		{total: 90, want: LevelExpert},
		{total: 89.9, want: LevelAdvanced},
		{total: 70, want: LevelIntermediate},
		{total: 60, want: LevelBasic},
		{total: 59.9, want: LevelNovice},
		{total: 0, want: LevelNovice},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.total); got != tt.want {
			t.Fatalf("LevelFor(%v) = %s, want %s", tt.total, got, tt.want)
		}
	}
}

func TestWriteText(t *testing.T) {
	r := NewBuilder(taxonomy.Default(), DefaultConfig()).Build(finishedSession())

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Overall: 76.2/100 (Intermediate)",
		"Interview ended early: max_duration",
		"Charts & Visualization",
		"not assessed",
		"Strengths: case_analysis, countif, references",
		"Recommendations:",
		"  - Try what-if analysis and Goal Seek on a small model.",
		"#7 case-001",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
