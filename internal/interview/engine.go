// Package interview runs the interview state machine: it asks scripted and bank
// questions, hands answers to the grader and decides where the session goes next.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/difficulty"
	"github.com/spigell/interviewer/internal/grading/hybrid"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/metrics"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/report"
	"github.com/spigell/interviewer/internal/selector"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/taxonomy"
	"github.com/spigell/interviewer/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidAnswer rejects answers that are not valid text.
var ErrInvalidAnswer = errors.New("invalid answer")

const maxAnswerLength = 8000

// Grader grades one answer. It must always return an outcome.
type Grader interface {
	Grade(ctx context.Context, req hybrid.Request) hybrid.Outcome
}

// Status describes how a turn ended.
type Status string

const (
	StatusOK            Status = "ok"
	StatusCompleted     Status = "completed"
	StatusBankExhausted Status = "question_bank_exhausted"
	StatusCeiling       Status = "ceiling_reached"
	StatusCancelled     Status = "cancelled"
)

// TurnResult is returned by every engine call that moves a session.
type TurnResult struct {
	SessionID string          `json:"session_id"`
	Prompt    *session.Prompt `json:"prompt,omitempty"`
	Phase     session.Phase   `json:"phase"`
	// TurnNumber is the number of graded turns recorded so far.
	TurnNumber    int               `json:"turn_number"`
	Coverage      coverage.Snapshot `json:"coverage"`
	TimeRemaining time.Duration     `json:"time_remaining"`
	Terminal      bool              `json:"terminal"`
	Partial       bool              `json:"partial"`
	Status        Status            `json:"status"`
	// LastTurn is the graded turn this call recorded, if any.
	LastTurn *session.Turn `json:"last_turn,omitempty"`
}

// Engine drives sessions. Calls for one session are serialized; different
// sessions proceed independently.
type Engine struct {
	cfg     Config
	tax     *taxonomy.Taxonomy
	bank    *questionbank.Bank
	sel     *selector.Selector
	adapter *difficulty.Adapter
	grader  Grader
	repo    session.Repository
	reports *report.Builder
	metrics *metrics.Collectors
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	sessionsMutex sync.RWMutex
	sessions      map[string]*session.Session
	locks         *keyedMutex
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(cfg Config, tax *taxonomy.Taxonomy, bank *questionbank.Bank, grader Grader, repo session.Repository, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("interview config: %w", err)
	}
	if tax == nil || bank == nil {
		return nil, errors.New("taxonomy and question bank are required")
	}
	if grader == nil {
		return nil, errors.New("grader is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	adapter, err := difficulty.NewAdapter(cfg.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("difficulty adapter: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		tax:     tax,
		bank:    bank,
		adapter: adapter,
		grader:  grader,
		repo:    repo,
		sel: selector.New(tax, bank, selector.Config{
			CoverageThreshold:  cfg.CoverageThreshold,
			WeakSkillThreshold: cfg.WeakSkillThreshold,
		}),
		reports: report.NewBuilder(tax, report.Config{
			StrengthThreshold:  cfg.StrengthThreshold,
			WeakSkillThreshold: cfg.WeakSkillThreshold,
		}),
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*session.Session),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start opens a session and returns its first prompt.
func (e *Engine) Start(ctx context.Context, candidateID string) (TurnResult, error) {
	s := session.New(e.newID(), strings.TrimSpace(candidateID), e.now(), e.cfg.MaxDuration)

	unlock := e.locks.Lock(s.ID)
	defer unlock()

	status := e.next(s)
	e.metrics.SessionStarted()
	e.commit(s, e.persist(ctx, s))

	e.sessionLogger(s).Info("interview started")
	return e.result(s, status, nil), nil
}

// Advance records the answer to the current prompt and moves the session on.
// The grade of the answer is always recorded, even if ctx is cancelled while
// grading is in flight.
func (e *Engine) Advance(ctx context.Context, id, answer string) (TurnResult, error) {
	if !utf8.ValidString(answer) {
		return TurnResult{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidAnswer)
	}
	if utf8.RuneCountInString(answer) > maxAnswerLength {
		return TurnResult{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidAnswer, maxAnswerLength)
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	cur, err := e.load(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	if cur.Terminal || cur.Current == nil {
		return TurnResult{}, fmt.Errorf("advance session %q in phase %s: %w", id, cur.Phase, session.ErrInvalidState)
	}

	// Work on a copy so a failure leaves the committed state untouched.
	s := cur.Clone()
	var last *session.Turn

	switch s.Current.Kind {
	case session.PromptScripted:
		e.recordExchange(s, answer)
	case session.PromptQuestion:
		turn, err := e.gradeTurn(ctx, s, answer)
		if err != nil {
			return TurnResult{}, err
		}
		last = &turn
	default:
		return TurnResult{}, fmt.Errorf("advance session %q: unknown prompt kind %q: %w", id, s.Current.Kind, session.ErrInvalidState)
	}
	s.PhaseCount++
	s.Current = nil

	status := e.next(s)
	e.commit(s, e.persist(ctx, s))

	return e.result(s, status, last), nil
}

// Cancel ends a session early. Recorded turns are kept; an in-flight Advance
// finishes first.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (TurnResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	cur, err := e.load(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	if cur.Terminal {
		return TurnResult{}, fmt.Errorf("cancel session %q: already finished: %w", id, session.ErrInvalidState)
	}

	s := cur.Clone()
	s.CancelReason = strings.TrimSpace(reason)
	s.UpdatedAt = e.now()
	e.finish(s, session.EndCancelled, true)
	e.commit(s, e.persist(ctx, s))

	return e.result(s, StatusCancelled, nil), nil
}

// Get returns a copy of the session.
func (e *Engine) Get(ctx context.Context, id string) (*session.Session, error) {
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Summary aggregates a finished session.
func (e *Engine) Summary(ctx context.Context, id string) (*report.Report, error) {
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Terminal {
		return nil, fmt.Errorf("summary of session %q in phase %s: %w", id, s.Phase, session.ErrInvalidState)
	}
	return e.reports.Build(s.Clone()), nil
}

func (e *Engine) recordExchange(s *session.Session, answer string) {
	ex := session.Exchange{Prompt: s.Current.Text, Answer: answer, RecordedAt: e.now()}
	if s.Phase == session.PhaseReview {
		s.Review = append(s.Review, ex)
		return
	}
	s.Context = append(s.Context, ex)
}

func (e *Engine) gradeTurn(ctx context.Context, s *session.Session, answer string) (session.Turn, error) {
	q, ok := e.bank.Get(s.Current.QuestionID)
	if !ok {
		return session.Turn{}, fmt.Errorf("session %q asks unknown question %q: %w", s.ID, s.Current.QuestionID, session.ErrInvalidState)
	}

	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.GradeTimeout)
	out := e.grader.Grade(gctx, hybrid.Request{
		Question: q,
		Answer:   answer,
		Phase:    s.Phase,
		Tier:     s.Difficulty.Tier,
	})
	cancel()

	s.TurnCounter++
	turn := session.Turn{
		Number:     s.TurnCounter,
		QuestionID: q.ID,
		SkillID:    q.SkillID,
		Category:   q.Category,
		Phase:      s.Phase,
		Tier:       q.Tier,
		Answer:     answer,
		Method:     out.Method,
		Score:      out.Score,
		Confidence: out.Confidence,
		Feedback:   out.Feedback,
		Flags:      out.Flags,
		Provider:   out.Provider,
		Cost:       out.Cost,
		Escalated:  out.Escalated,
		RecordedAt: e.now(),
	}
	s.Responses = append(s.Responses, turn)

	log := e.sessionLogger(s).With(zap.String(logger.FieldQuestion, q.ID))

	// A deferred grade carries no information about the candidate.
	if !turn.Deferred() {
		if err := coverage.NewTracker(e.tax, s.Coverage).Record(q.SkillID, out.Score); err != nil {
			log.Warn("failed to record coverage", zap.Error(err))
		}
		switch s.Phase {
		case session.PhaseCalibrate:
			s.CalibrationScores = append(s.CalibrationScores, out.Score)
		case session.PhaseCore, session.PhaseDeepDive:
			s.Difficulty = e.adapter.Observe(s.Difficulty, out.Score)
		}
	}
	if s.Phase == session.PhaseCore {
		s.CoreAsked++
	}

	e.metrics.Turn(s.Phase.String(), string(out.Method))
	log.Info("turn graded",
		zap.Int("turn", turn.Number),
		zap.String("method", string(turn.Method)),
		zap.Float64("score", turn.Score),
		zap.Float64("confidence", turn.Confidence),
		zap.Bool("escalated", turn.Escalated),
	)
	return turn, nil
}

// next applies ceilings and transitions and picks the next prompt.
func (e *Engine) next(s *session.Session) Status {
	now := e.now()
	s.UpdatedAt = now

	if s.TurnCounter >= e.cfg.MaxQuestions {
		e.finish(s, session.EndMaxQuestions, true)
		return StatusCeiling
	}
	if now.Sub(s.StartedAt) >= e.cfg.MaxDuration {
		e.finish(s, session.EndMaxDuration, true)
		return StatusCeiling
	}

	if e.phaseDone(s) {
		e.leave(s)
	}
	if s.Terminal {
		return StatusCompleted
	}

	p, ok := e.prompt(s)
	if !ok {
		e.sessionLogger(s).Warn("question bank exhausted, ending interview")
		e.finish(s, session.EndBankExhausted, true)
		return StatusBankExhausted
	}
	s.Current = p
	return StatusOK
}

func (e *Engine) prompt(s *session.Session) (*session.Prompt, bool) {
	switch s.Phase {
	case session.PhaseIntro:
		return &session.Prompt{Kind: session.PromptScripted, Phase: s.Phase, Text: introPrompts[s.PhaseCount]}, true
	case session.PhaseReview:
		return &session.Prompt{Kind: session.PromptScripted, Phase: s.Phase, Text: reviewPrompts[s.PhaseCount]}, true
	}

	c := e.sel.For(s)
	q, level, ok := e.sel.SelectBroadening(s, c)
	if !ok {
		return nil, false
	}
	if c.Rotates {
		s.Rotation++
	}
	if level != selector.LevelExact {
		e.sessionLogger(s).Debug("question constraints broadened",
			zap.String("level", level.String()),
			zap.String(logger.FieldQuestion, q.ID),
		)
	}
	s.Asked = append(s.Asked, q.ID)

	return &session.Prompt{
		Kind:       session.PromptQuestion,
		Phase:      s.Phase,
		Text:       q.Prompt,
		QuestionID: q.ID,
		SkillID:    q.SkillID,
		Tier:       q.Tier,
		QKind:      q.Kind,
	}, true
}

// finish routes the session through SUMMARY into DONE.
func (e *Engine) finish(s *session.Session, reason session.EndReason, partial bool) {
	s.EndReason = reason
	s.Partial = partial
	s.Current = nil
	e.enter(s, session.PhaseSummary)
}

func (e *Engine) summarize(s *session.Session) {
	if s.EndReason == "" {
		s.EndReason = session.EndCompleted
	}
	s.Terminal = true
	s.Current = nil

	r := e.reports.Build(s)
	e.metrics.SessionEnded(string(s.EndReason))
	e.sessionLogger(s).Info("interview finished",
		zap.String("reason", string(s.EndReason)),
		zap.Bool("partial", s.Partial),
		zap.Int("questions", s.TurnCounter),
		zap.Float64("total", r.Total),
		zap.String("level", string(r.Level)),
	)
}

// persist appends unsaved responses and then saves the session. Failures are
// logged and retried on the next call; the session keeps working in memory.
// It reports whether the repository holds the whole session.
func (e *Engine) persist(ctx context.Context, s *session.Session) bool {
	ctx = context.WithoutCancel(ctx)
	log := e.sessionLogger(s)

	for _, t := range s.Pending() {
		err := e.retry(ctx, func(ctx context.Context) error {
			return e.repo.AppendResponse(ctx, s.ID, t)
		})
		if err != nil {
			e.metrics.RepositoryFailure()
			log.Warn("failed to persist response, keeping it for the next save",
				zap.Int("turn", t.Number),
				zap.Int("pending", len(s.Pending())),
				zap.Error(err),
			)
			// The session row must never claim more turns than the response log holds.
			return false
		}
		s.Persisted++
	}

	if err := e.retry(ctx, func(ctx context.Context) error { return e.repo.SaveSession(ctx, s) }); err != nil {
		e.metrics.RepositoryFailure()
		log.Warn("failed to save session", zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.RepositoryRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt < e.cfg.RepositoryRetries {
			if werr := utils.WaitFor(ctx, time.Duration(attempt)*e.cfg.RepositoryBackoff); werr != nil {
				return err
			}
		}
	}
	return err
}

func (e *Engine) load(ctx context.Context, id string) (*session.Session, error) {
	e.sessionsMutex.RLock()
	s, ok := e.sessions[id]
	e.sessionsMutex.RUnlock()
	if ok {
		return s, nil
	}

	s, err := e.repo.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	e.commit(s, true)
	return s, nil
}

// commit caches s for the next call. A finished session is dropped from the
// cache once the repository holds all of it; later reads load it from there.
func (e *Engine) commit(s *session.Session, durable bool) {
	e.sessionsMutex.Lock()
	defer e.sessionsMutex.Unlock()

	if s.Terminal && durable {
		delete(e.sessions, s.ID)
		return
	}
	e.sessions[s.ID] = s
}

func (e *Engine) result(s *session.Session, status Status, last *session.Turn) TurnResult {
	r := TurnResult{
		SessionID:     s.ID,
		Phase:         s.Phase,
		TurnNumber:    s.TurnCounter,
		Coverage:      coverage.NewTracker(e.tax, s.Coverage.Clone()).Snapshot(),
		TimeRemaining: s.Remaining(e.now()),
		Terminal:      s.Terminal,
		Partial:       s.Partial,
		Status:        status,
		LastTurn:      last,
	}
	if s.Current != nil {
		p := *s.Current
		r.Prompt = &p
	}
	return r
}

func (e *Engine) sessionLogger(s *session.Session) *zap.Logger {
	return logger.WithSession(e.logger, s.ID, s.CandidateID, s.Phase.String())
}
