// Package router picks the evaluation backend tier for a grading call and
// keeps per-tier spend under its ceiling.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/interviewer/internal/ai"

	"go.uber.org/zap"
)

// ErrTiersExhausted is returned when every tier is excluded or over its ceiling.
var ErrTiersExhausted = errors.New("all provider tiers exhausted")

// Complexity is the expected difficulty of grading an answer.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityNormal
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Tier is one backend option. Tiers are configured cheapest first.
type Tier struct {
	Name       string
	Capability ai.Capability
	// Ceiling is the spend allowed per ledger period. Zero means unlimited.
	Ceiling     float64
	CostPerCall float64
	PricePer1K  float64
}

// Cost returns the charge for one completed call that used tokens.
func (t Tier) Cost(tokens int) float64 {
	if tokens < 0 {
		tokens = 0
	}
	return t.CostPerCall + float64(tokens)/1000*t.PricePer1K
}

// Handle is a selected tier.
type Handle struct {
	Tier
	Index   int
	Premium bool
}

type Router struct {
	tiers  []Tier
	ledger Ledger
	logger *zap.Logger
}

// New validates tiers and builds a router. A nil ledger becomes an unbounded memory ledger.
func New(tiers []Tier, ledger Ledger, logger *zap.Logger) (*Router, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one provider tier is required")
	}
	tiers = append([]Tier(nil), tiers...)
	seen := make(map[string]struct{}, len(tiers))
	for i, t := range tiers {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("tier #%d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate tier %q", name)
		}
		seen[name] = struct{}{}
		if t.Capability == nil {
			return nil, fmt.Errorf("tier %q has no capability", name)
		}
		if t.Ceiling < 0 || t.CostPerCall < 0 || t.PricePer1K < 0 {
			return nil, fmt.Errorf("tier %q: ceiling and prices must not be negative", name)
		}
		tiers[i].Name = name
	}
	if ledger == nil {
		ledger = NewMemoryLedger(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{tiers: tiers, ledger: ledger, logger: logger}, nil
}

// Tiers returns the configured tier names, cheapest first.
func (r *Router) Tiers() []string {
	out := make([]string, len(r.tiers))
	for i, t := range r.tiers {
		out[i] = t.Name
	}
	return out
}

// Select returns the tier for a call. escalate targets the premium tier, low
// complexity the cheapest one, anything else the standard tier. When the target
// is excluded or over its ceiling the next cheaper tier is tried.
func (r *Router) Select(ctx context.Context, complexity Complexity, escalate bool, exclude ...string) (Handle, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	last := len(r.tiers) - 1
	target := min(1, last)
	switch {
	case escalate:
		target = last
	case complexity == ComplexityLow:
		target = 0
	}

	for i := target; i >= 0; i-- {
		t := r.tiers[i]
		if _, excluded := skip[t.Name]; excluded {
			continue
		}
		if r.overCeiling(ctx, t) {
			continue
		}
		if i != target {
			r.logger.Debug("provider tier demoted",
				zap.String("requested", r.tiers[target].Name),
				zap.String("selected", t.Name),
			)
		}
		return Handle{Tier: t, Index: i, Premium: i == last}, nil
	}
	return Handle{}, ErrTiersExhausted
}

func (r *Router) overCeiling(ctx context.Context, t Tier) bool {
	if t.Ceiling <= 0 {
		return false
	}
	spent, err := r.ledger.Spent(ctx, t.Name)
	if err != nil {
		r.logger.Warn("cost ledger unavailable, allowing tier", zap.String("tier", t.Name), zap.Error(err))
		return false
	}
	if spent >= t.Ceiling {
		r.logger.Info("provider tier over cost ceiling",
			zap.String("tier", t.Name),
			zap.Float64("spent", spent),
			zap.Float64("ceiling", t.Ceiling),
		)
		return true
	}
	return false
}

// Charge records the cost of a completed call and returns it.
func (r *Router) Charge(ctx context.Context, h Handle, tokens int) float64 {
	cost := h.Cost(tokens)
	if cost <= 0 {
		return 0
	}
	if _, err := r.ledger.Add(ctx, h.Name, cost); err != nil {
		r.logger.Warn("failed to record spend", zap.String("tier", h.Name), zap.Float64("cost", cost), zap.Error(err))
	}
	return cost
}
