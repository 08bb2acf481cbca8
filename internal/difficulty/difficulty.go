package difficulty

import (
	"fmt"

	"github.com/spigell/interviewer/internal/taxonomy"
)

// Config tunes the adapter.
type Config struct {
	Alpha float64 `mapstructure:"alpha"`
	Lower float64 `mapstructure:"lower"`
	Upper float64 `mapstructure:"upper"`
}

func DefaultConfig() Config {
	return Config{Alpha: 0.3, Lower: 0.60, Upper: 0.80}
}

func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("difficulty alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.Lower < 0 || c.Upper > 1 || c.Lower >= c.Upper {
		return fmt.Errorf("difficulty bounds must satisfy 0 <= lower < upper <= 1, got %v/%v", c.Lower, c.Upper)
	}
	return nil
}

// State is the running difficulty estimate of one session.
type State struct {
	Tier    taxonomy.Tier `json:"tier"`
	Rolling float64       `json:"rolling"`
	Samples int           `json:"samples"`
}

// Initial is the state before calibration.
func Initial() State {
	return State{Tier: taxonomy.TierFoundation}
}

// Adapter maps rolling accuracy into a tier.
type Adapter struct {
	cfg Config
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

// Observe folds a 0–100 score into the rolling accuracy and moves the tier
// by at most one step: down below Lower, up above Upper.
func (a *Adapter) Observe(s State, score float64) State {
	x := clamp01(score / 100)
	if s.Samples == 0 {
		s.Rolling = x
	} else {
		s.Rolling = a.cfg.Alpha*x + (1-a.cfg.Alpha)*s.Rolling
	}
	s.Samples++

	tier := int(s.Tier)
	switch {
	case s.Rolling < a.cfg.Lower:
		tier--
	case s.Rolling > a.cfg.Upper:
		tier++
	}
	s.Tier = taxonomy.ClampTier(tier)
	return s
}

// Calibrate derives the starting state from calibration scores.
func (a *Adapter) Calibrate(scores []float64) State {
	if len(scores) == 0 {
		return Initial()
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	mean := clamp01(sum/float64(len(scores))/100) * 100

	s := State{Rolling: mean / 100, Samples: len(scores)}
	switch {
	case mean < 60:
		s.Tier = taxonomy.TierFoundation
	case mean <= 80:
		s.Tier = taxonomy.TierIntermediate
	default:
		s.Tier = taxonomy.TierAdvanced
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
