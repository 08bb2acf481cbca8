// Package session holds the interview session data model and the repository
// contract used to persist it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/difficulty"
	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/taxonomy"
)

var (
	// ErrInvalidState rejects an operation the session's phase does not allow.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSessionNotFound is returned by repositories and the engine for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRepositoryUnavailable wraps every persistence failure.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

// Phase is a state of the interview state machine.
type Phase string

const (
	PhaseIntro     Phase = "INTRO"
	PhaseCalibrate Phase = "CALIBRATE"
	PhaseCore      Phase = "CORE_Q"
	PhaseDeepDive  Phase = "DEEP_DIVE"
	PhaseCase      Phase = "CASE"
	PhaseReview    Phase = "REVIEW"
	PhaseSummary   Phase = "SUMMARY"
	PhaseDone      Phase = "DONE"
)

var phaseOrder = map[Phase]int{
	PhaseIntro:     0,
	PhaseCalibrate: 1,
	PhaseCore:      2,
	PhaseDeepDive:  3,
	PhaseCase:      4,
	PhaseReview:    5,
	PhaseSummary:   6,
	PhaseDone:      7,
}

// Order is the position of the phase in the forward sequence, or -1.
func (p Phase) Order() int {
	if o, ok := phaseOrder[p]; ok {
		return o
	}
	return -1
}

func (p Phase) Valid() bool {
	return p.Order() >= 0
}

// Graded reports whether answers given in the phase are graded questions.
func (p Phase) Graded() bool {
	switch p {
	case PhaseCalibrate, PhaseCore, PhaseDeepDive, PhaseCase:
		return true
	}
	return false
}

// Scripted reports whether the phase asks fixed, ungraded prompts.
func (p Phase) Scripted() bool {
	return p == PhaseIntro || p == PhaseReview
}

func (p Phase) String() string {
	return string(p)
}

// EndReason records why a session reached SUMMARY.
type EndReason string

const (
	EndCompleted     EndReason = "completed"
	EndMaxQuestions  EndReason = "max_questions"
	EndMaxDuration   EndReason = "max_duration"
	EndBankExhausted EndReason = "question_bank_exhausted"
	EndCancelled     EndReason = "cancelled"
)

// PromptKind distinguishes scripted prompts from bank questions.
type PromptKind string

const (
	PromptScripted PromptKind = "scripted"
	PromptQuestion PromptKind = "question"
)

// Prompt is what the candidate is currently asked to answer.
type Prompt struct {
	Kind       PromptKind        `json:"kind"`
	Phase      Phase             `json:"phase"`
	Text       string            `json:"text"`
	QuestionID string            `json:"question_id,omitempty"`
	SkillID    string            `json:"skill_id,omitempty"`
	Tier       taxonomy.Tier     `json:"tier,omitempty"`
	QKind      questionbank.Kind `json:"question_kind,omitempty"`
}

// Exchange is an ungraded scripted prompt and its verbatim answer.
type Exchange struct {
	Prompt     string    `json:"prompt"`
	Answer     string    `json:"answer"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Turn is one graded response. Turns are append-only.
type Turn struct {
	Number     int            `json:"number"`
	QuestionID string         `json:"question_id"`
	SkillID    string         `json:"skill_id"`
	Category   string         `json:"category"`
	Phase      Phase          `json:"phase"`
	Tier       taxonomy.Tier  `json:"tier"`
	Answer     string         `json:"answer"`
	Method     grading.Method `json:"method"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Feedback   string         `json:"feedback"`
	Flags      []grading.Flag `json:"flags,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Cost       float64        `json:"cost"`
	Escalated  bool           `json:"escalated"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Deferred reports whether grading of the turn was postponed.
func (t Turn) Deferred() bool {
	return t.Method == grading.MethodDeferred
}

// Session is the full state of one interview. It is owned by the engine; callers
// receive clones.
type Session struct {
	ID          string `json:"id"`
	CandidateID string `json:"candidate_id,omitempty"`

	Phase Phase `json:"phase"`
	// PhaseCount is the number of prompts answered in the current phase visit.
	PhaseCount int `json:"phase_count"`
	// CoreAsked is the number of CORE_Q questions answered across all visits.
	CoreAsked     int `json:"core_asked"`
	CoreReentries int `json:"core_reentries"`
	TurnCounter   int `json:"turn_counter"`

	Coverage   coverage.Vector  `json:"coverage"`
	Difficulty difficulty.State `json:"difficulty"`
	Asked      []string         `json:"asked"`
	Rotation   int              `json:"rotation"`
	Current    *Prompt          `json:"current,omitempty"`

	CalibrationScores []float64  `json:"calibration_scores,omitempty"`
	Context           []Exchange `json:"context,omitempty"`
	Review            []Exchange `json:"review,omitempty"`
	Responses         []Turn     `json:"responses,omitempty"`
	// Persisted counts responses already appended to the repository.
	Persisted int `json:"persisted"`

	StartedAt   time.Time     `json:"started_at"`
	MaxDuration time.Duration `json:"max_duration"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Terminal     bool      `json:"terminal"`
	Partial      bool      `json:"partial"`
	EndReason    EndReason `json:"end_reason,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
}

// New creates a session in INTRO.
func New(id, candidateID string, startedAt time.Time, maxDuration time.Duration) *Session {
	return &Session{
		ID:          id,
		CandidateID: candidateID,
		Phase:       PhaseIntro,
		Coverage:    coverage.Vector{},
		Difficulty:  difficulty.Initial(),
		StartedAt:   startedAt,
		MaxDuration: maxDuration,
		UpdatedAt:   startedAt,
	}
}

// HasAsked reports whether the question id is in the exclusion set.
func (s *Session) HasAsked(id string) bool {
	for _, a := range s.Asked {
		if a == id {
			return true
		}
	}
	return false
}

// Excluded returns the asked ids as a set.
func (s *Session) Excluded() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Asked))
	for _, id := range s.Asked {
		out[id] = struct{}{}
	}
	return out
}

// Remaining is the time left in the budget at now. It never goes below zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.MaxDuration <= 0 {
		return 0
	}
	left := s.MaxDuration - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Pending returns responses not yet appended to the repository.
func (s *Session) Pending() []Turn {
	if s.Persisted >= len(s.Responses) {
		return nil
	}
	return s.Responses[s.Persisted:]
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Coverage = s.Coverage.Clone()
	c.Asked = append([]string(nil), s.Asked...)
	c.CalibrationScores = append([]float64(nil), s.CalibrationScores...)
	c.Context = append([]Exchange(nil), s.Context...)
	c.Review = append([]Exchange(nil), s.Review...)
	if s.Responses != nil {
		c.Responses = make([]Turn, len(s.Responses))
		for i, t := range s.Responses {
			t.Flags = append([]grading.Flag(nil), t.Flags...)
			c.Responses[i] = t
		}
	}
	if s.Current != nil {
		p := *s.Current
		c.Current = &p
	}
	return &c
}

// Repository persists sessions and their append-only responses.
// Implementations wrap failures in ErrRepositoryUnavailable and report unknown
// sessions with ErrSessionNotFound.
type Repository interface {
	LoadSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	AppendResponse(ctx context.Context, sessionID string, turn Turn) error
	LoadQuestionBank(ctx context.Context) ([]questionbank.Question, error)
}
