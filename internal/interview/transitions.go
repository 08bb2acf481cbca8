package interview

import (
	"github.com/spigell/interviewer/internal/coverage"
	"github.com/spigell/interviewer/internal/session"

	"go.uber.org/zap"
)

// trigger says when an edge is considered.
type trigger int

const (
	// onExit edges are taken when the current phase has finished its work.
	onExit trigger = iota
	// onEntry edges are evaluated right after a phase is entered and may
	// redirect the session before it asks anything.
	onEntry
)

type transition struct {
	name   string
	from   session.Phase
	to     session.Phase
	when   trigger
	guard  func(e *Engine, s *session.Session) bool
	effect func(e *Engine, s *session.Session)
}

// transitions is the whole phase graph. Edges of one phase and trigger are
// tried in order; the first whose guard passes wins.
var transitions = []transition{
	{name: "intro_done", from: session.PhaseIntro, to: session.PhaseCalibrate, when: onExit},
	{name: "calibrated", from: session.PhaseCalibrate, to: session.PhaseCore, when: onExit, effect: (*Engine).applyCalibration},
	{name: "core_done", from: session.PhaseCore, to: session.PhaseDeepDive, when: onExit},
	{name: "coverage_short", from: session.PhaseDeepDive, to: session.PhaseCore, when: onEntry, guard: (*Engine).coverageShort, effect: reenterCore},
	{name: "below_proficiency", from: session.PhaseDeepDive, to: session.PhaseCase, when: onEntry, guard: (*Engine).belowProficiency},
	{name: "deep_dive_done", from: session.PhaseDeepDive, to: session.PhaseCase, when: onExit},
	{name: "case_done", from: session.PhaseCase, to: session.PhaseReview, when: onExit},
	{name: "review_done", from: session.PhaseReview, to: session.PhaseSummary, when: onExit},
	{name: "summarized", from: session.PhaseSummary, to: session.PhaseDone, when: onEntry, effect: (*Engine).summarize},
}

func edgesFrom(p session.Phase, when trigger) []transition {
	var out []transition
	for _, t := range transitions {
		if t.from == p && t.when == when {
			out = append(out, t)
		}
	}
	return out
}

// phaseDone reports whether the current phase has asked everything it should.
func (e *Engine) phaseDone(s *session.Session) bool {
	switch s.Phase {
	case session.PhaseIntro:
		return s.PhaseCount >= e.cfg.IntroExchanges
	case session.PhaseCalibrate:
		return s.PhaseCount >= e.cfg.CalibrationQuestions
	case session.PhaseCore:
		covered := s.CoreAsked >= e.cfg.MinQuestions && e.mandatoryCoverage(s) >= e.cfg.CoverageThreshold
		return covered || s.PhaseCount >= e.cfg.CoreMaxQuestions
	case session.PhaseDeepDive:
		return s.PhaseCount >= e.cfg.DeepDiveQuestions
	case session.PhaseCase:
		return s.PhaseCount >= e.cfg.CaseQuestions
	case session.PhaseReview:
		return s.PhaseCount >= e.cfg.ReviewPrompts
	case session.PhaseSummary:
		return true
	}
	return false
}

// leave takes the first passing exit edge of the current phase.
func (e *Engine) leave(s *session.Session) {
	for _, t := range edgesFrom(s.Phase, onExit) {
		if t.guard != nil && !t.guard(e, s) {
			continue
		}
		e.take(s, t)
		return
	}
}

// enter moves the session into p and follows entry edges.
func (e *Engine) enter(s *session.Session, p session.Phase) {
	s.Phase = p
	s.PhaseCount = 0
	for _, t := range edgesFrom(p, onEntry) {
		if t.guard != nil && !t.guard(e, s) {
			continue
		}
		e.take(s, t)
		return
	}
}

func (e *Engine) take(s *session.Session, t transition) {
	e.sessionLogger(s).Debug("phase transition",
		zap.String("edge", t.name),
		zap.String("to", t.to.String()),
	)
	if t.effect != nil {
		t.effect(e, s)
	}
	e.enter(s, t.to)
}

func (e *Engine) mandatoryCoverage(s *session.Session) float64 {
	return coverage.NewTracker(e.tax, s.Coverage).MandatoryRatio()
}

func (e *Engine) coverageShort(s *session.Session) bool {
	return e.mandatoryCoverage(s) < e.cfg.CoverageThreshold
}

func (e *Engine) belowProficiency(s *session.Session) bool {
	return s.Difficulty.Rolling < e.cfg.ProficiencyThreshold
}

func (e *Engine) applyCalibration(s *session.Session) {
	s.Difficulty = e.adapter.Calibrate(s.CalibrationScores)
}

func reenterCore(_ *Engine, s *session.Session) {
	s.CoreReentries++
}
