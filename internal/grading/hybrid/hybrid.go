// Package hybrid decides which graders run for an answer, merges their
// results, and degrades through provider tiers when backends fail.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/grading/model"
	"github.com/spigell/interviewer/internal/grading/rule"
	"github.com/spigell/interviewer/internal/metrics"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/router"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/taxonomy"

	"go.uber.org/zap"
)

// Config tunes merging and escalation.
type Config struct {
	// RuleWeight is the share of the rule score when both graders run.
	RuleWeight float64 `mapstructure:"rule-weight"`
	// CaseRuleWeight replaces RuleWeight for case-study answers, where the
	// structural check says little about the analysis itself.
	CaseRuleWeight float64 `mapstructure:"case-rule-weight"`
	// EscalationThreshold triggers a premium re-grade when confidence falls below it.
	EscalationThreshold float64 `mapstructure:"escalation-threshold"`
	// LowRuleConfidence makes the model grader run as well.
	LowRuleConfidence float64 `mapstructure:"low-rule-confidence"`
	// ReducedConfidence scales the confidence of rule-only fallbacks.
	ReducedConfidence float64       `mapstructure:"reduced-confidence"`
	CapabilityTimeout time.Duration `mapstructure:"capability-timeout"`
}

func DefaultConfig() Config {
	return Config{
		RuleWeight:          0.7,
		CaseRuleWeight:      0.3,
		EscalationThreshold: 0.6,
		LowRuleConfidence:   0.6,
		ReducedConfidence:   0.5,
		CapabilityTimeout:   8 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.RuleWeight < 0 || c.RuleWeight > 1 {
		return fmt.Errorf("rule weight must be within [0,1], got %v", c.RuleWeight)
	}
	if c.CaseRuleWeight < 0 || c.CaseRuleWeight > 1 {
		return fmt.Errorf("case rule weight must be within [0,1], got %v", c.CaseRuleWeight)
	}
	if c.EscalationThreshold < 0 || c.EscalationThreshold > 1 {
		return fmt.Errorf("escalation threshold must be within [0,1], got %v", c.EscalationThreshold)
	}
	if c.LowRuleConfidence < 0 || c.LowRuleConfidence > 1 {
		return fmt.Errorf("low rule confidence must be within [0,1], got %v", c.LowRuleConfidence)
	}
	if c.ReducedConfidence < 0 || c.ReducedConfidence > 1 {
		return fmt.Errorf("reduced confidence factor must be within [0,1], got %v", c.ReducedConfidence)
	}
	if c.CapabilityTimeout <= 0 {
		return fmt.Errorf("capability timeout must be positive, got %v", c.CapabilityTimeout)
	}
	return nil
}

// Request is one answer to grade.
type Request struct {
	Question *questionbank.Question
	Answer   string
	Phase    session.Phase
	// Tier is the session difficulty tier at the time of the question.
	Tier taxonomy.Tier
	// Escalated marks a request that has already been re-graded on a premium tier.
	Escalated bool
}

// Outcome is the final grade of a turn.
type Outcome struct {
	grading.Result
	Method    grading.Method
	Provider  string
	Tier      string
	Cost      float64
	Escalated bool
}

const deferredFeedback = "Grading is temporarily unavailable; this answer was recorded without a score."

// Coordinator grades answers. It is safe for concurrent use.
type Coordinator struct {
	cfg     Config
	rules   *rule.Grader
	model   *model.Grader
	router  *router.Router
	metrics *metrics.Collectors
	logger  *zap.Logger
}

// New builds a coordinator. A nil router means no model grading is available.
func New(cfg Config, r *router.Router, m *metrics.Collectors, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		rules:   rule.New(),
		model:   model.New(logger),
		router:  r,
		metrics: m,
		logger:  logger,
	}, nil
}

// Grade never fails: backend problems degrade the outcome instead.
func (c *Coordinator) Grade(ctx context.Context, req Request) Outcome {
	started := time.Now()
	defer func() { c.metrics.GradeTook(time.Since(started)) }()

	q := req.Question
	log := c.logger.With(zap.String("question_id", q.ID), zap.String("phase", req.Phase.String()))

	isCase := req.Phase == session.PhaseCase

	// Case answers always get a model opinion, even when blank.
	if strings.TrimSpace(req.Answer) == "" && !isCase {
		return Outcome{
			Result: grading.Result{Score: 0, Confidence: 1, Feedback: "No answer given."},
			Method: grading.MethodRule,
		}
	}

	var ruleRes *grading.Result
	switch {
	case isCase:
		r := c.rules.GradeCase(req.Answer)
		ruleRes = &r
	case q.HasRules() && rule.Resembles(req.Answer):
		r := c.rules.Grade(req.Answer, q)
		ruleRes = &r
	}

	needModel := ruleRes == nil ||
		ruleRes.Confidence < c.cfg.LowRuleConfidence ||
		q.Kind == questionbank.KindExplanation ||
		rule.MidBand(ruleRes.Score) ||
		isCase

	out := Outcome{Method: grading.MethodRule}
	if ruleRes != nil {
		out.Result = *ruleRes
	}

	var failed []string
	var modelRes *grading.Result
	usedIndex := -1

	if needModel {
		call := c.callModel(ctx, req, ruleRes, false, nil)
		out.Cost += call.cost
		failed = call.failed
		if call.err == nil {
			modelRes = &call.graded.Result
			usedIndex = call.handle.Index
			out.Provider = call.handle.Capability.Name()
			out.Tier = call.handle.Name
			out.Result, out.Method = c.combine(req, ruleRes, modelRes)
		} else {
			out = c.degrade(out, ruleRes)
			log.Warn("model grading unavailable, degrading",
				zap.String("method", string(out.Method)),
				zap.Strings("failed_tiers", failed),
				zap.Error(call.err),
			)
		}
	}

	// Every tier already failed this turn.
	if out.Method == grading.MethodDeferred {
		return out
	}
	if !c.shouldEscalate(req, out, modelRes) {
		return out
	}
	if req.Escalated {
		out.Result = out.WithFlag(grading.FlagNeedsEscalation)
		return out
	}

	tiers := c.router.Tiers()
	if usedIndex == len(tiers)-1 {
		return out
	}

	// Re-grade once on a stronger tier than any that already answered.
	exclude := append([]string(nil), failed...)
	for i := 0; i <= usedIndex; i++ {
		exclude = append(exclude, tiers[i])
	}

	escalated := req
	escalated.Escalated = true
	call := c.callModel(ctx, escalated, ruleRes, true, exclude)
	out.Cost += call.cost
	if call.err != nil {
		c.metrics.Escalation("failed")
		log.Warn("escalation failed, keeping first grade", zap.Error(call.err))
		out.Result = out.WithFlag(grading.FlagEscalationFailed)
		return out
	}

	c.metrics.Escalation("ok")
	out.Result, out.Method = c.combine(req, ruleRes, &call.graded.Result)
	out.Provider = call.handle.Capability.Name()
	out.Tier = call.handle.Name
	out.Escalated = true
	log.Info("answer escalated", zap.String("tier", call.handle.Name), zap.Float64("score", out.Score))
	return out
}

func (c *Coordinator) combine(req Request, ruleRes, modelRes *grading.Result) (grading.Result, grading.Method) {
	if ruleRes == nil {
		return *modelRes, grading.MethodModel
	}
	w := c.cfg.RuleWeight
	if req.Phase == session.PhaseCase {
		w = c.cfg.CaseRuleWeight
	}
	return grading.Merge(*ruleRes, *modelRes, w), grading.MethodHybrid
}

// degrade produces the rule-only or deferred outcome used when no tier answered.
func (c *Coordinator) degrade(out Outcome, ruleRes *grading.Result) Outcome {
	if ruleRes != nil {
		res := *ruleRes
		res.Confidence = grading.ClampConfidence(res.Confidence * c.cfg.ReducedConfidence)
		out.Result = res.WithFlag(grading.FlagReducedConfidence)
		out.Method = grading.MethodRule
		return out
	}
	out.Result = grading.Result{Score: 0, Confidence: 0, Feedback: deferredFeedback}.WithFlag(grading.FlagGradingDeferred)
	out.Method = grading.MethodDeferred
	return out
}

func (c *Coordinator) shouldEscalate(req Request, out Outcome, modelRes *grading.Result) bool {
	if c.router == nil {
		return false
	}
	if req.Phase == session.PhaseCase {
		return true
	}
	if modelRes != nil && modelRes.Has(grading.FlagAmbiguous) {
		return true
	}
	return out.Confidence < c.cfg.EscalationThreshold
}

type modelCall struct {
	graded model.Graded
	handle router.Handle
	cost   float64
	failed []string
	err    error
}

// callModel walks the tiers the router offers until one returns a usable grade.
// A malformed response is retried once on the same tier; any other failure
// excludes the tier for the rest of the turn.
func (c *Coordinator) callModel(ctx context.Context, req Request, ruleRes *grading.Result, escalate bool, exclude []string) modelCall {
	call := modelCall{failed: append([]string(nil), exclude...)}
	if c.router == nil {
		call.err = router.ErrTiersExhausted
		return call
	}

	complexity := complexityFor(req)
	in := model.Input{Question: req.Question, Answer: req.Answer, Rule: ruleRes, Timeout: c.cfg.CapabilityTimeout}

	for {
		h, err := c.router.Select(ctx, complexity, escalate, call.failed...)
		if err != nil {
			call.err = err
			return call
		}

		var lastErr error
		for attempt := 1; attempt <= 2; attempt++ {
			graded, err := c.model.Grade(ctx, h.Capability, in)
			if err == nil {
				cost := c.router.Charge(ctx, h, graded.Tokens)
				c.metrics.CapabilityCall(h.Name, "ok")
				c.metrics.Spend(h.Name, cost)
				call.cost += cost
				call.graded = graded
				call.handle = h
				return call
			}

			lastErr = err
			c.metrics.CapabilityCall(h.Name, outcomeLabel(err))
			if !errors.Is(err, ai.ErrMalformedResponse) {
				break
			}
			// The backend answered, so the call is charged without token usage.
			cost := c.router.Charge(ctx, h, 0)
			c.metrics.Spend(h.Name, cost)
			call.cost += cost
		}

		c.logger.Warn("provider tier failed, demoting",
			zap.String("tier", h.Name),
			zap.String("question_id", req.Question.ID),
			zap.Error(lastErr),
		)
		call.failed = append(call.failed, h.Name)
	}
}

func complexityFor(req Request) router.Complexity {
	switch {
	case req.Phase == session.PhaseCase || req.Tier == taxonomy.TierAdvanced:
		return router.ComplexityHigh
	case req.Tier == taxonomy.TierFoundation:
		return router.ComplexityLow
	default:
		return router.ComplexityNormal
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return "timeout"
	case errors.Is(err, ai.ErrMalformedResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}
