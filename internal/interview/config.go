package interview

import (
	"errors"
	"fmt"
	"time"

	"github.com/spigell/interviewer/internal/difficulty"
)

// Config holds the interview policy knobs.
type Config struct {
	IntroExchanges       int     `mapstructure:"intro-exchanges"`
	CalibrationQuestions int     `mapstructure:"calibration-questions"`
	MinQuestions         int     `mapstructure:"min-questions"`
	CoreMaxQuestions     int     `mapstructure:"core-max-questions"`
	CoverageThreshold    float64 `mapstructure:"coverage-threshold"`
	// ProficiencyThreshold gates DEEP_DIVE on the rolling accuracy (0..1).
	ProficiencyThreshold float64 `mapstructure:"proficiency-threshold"`
	DeepDiveQuestions    int     `mapstructure:"deep-dive-questions"`
	CaseQuestions        int     `mapstructure:"case-questions"`
	ReviewPrompts        int     `mapstructure:"review-prompts"`
	WeakSkillThreshold   float64 `mapstructure:"weak-skill-threshold"`
	StrengthThreshold    float64 `mapstructure:"strength-threshold"`

	MaxQuestions int           `mapstructure:"max-questions"`
	MaxDuration  time.Duration `mapstructure:"max-duration"`

	// GradeTimeout bounds all grading work of one turn, fallbacks included.
	GradeTimeout      time.Duration `mapstructure:"grade-timeout"`
	RepositoryRetries int           `mapstructure:"repository-retries"`
	RepositoryBackoff time.Duration `mapstructure:"repository-backoff"`

	Difficulty difficulty.Config `mapstructure:"difficulty"`
}

func DefaultConfig() Config {
	return Config{
		IntroExchanges:       3,
		CalibrationQuestions: 4,
		MinQuestions:         8,
		CoreMaxQuestions:     12,
		CoverageThreshold:    0.70,
		ProficiencyThreshold: 0.75,
		DeepDiveQuestions:    3,
		CaseQuestions:        2,
		ReviewPrompts:        2,
		WeakSkillThreshold:   60,
		StrengthThreshold:    80,
		MaxQuestions:         25,
		MaxDuration:          45 * time.Minute,
		GradeTimeout:         30 * time.Second,
		RepositoryRetries:    3,
		RepositoryBackoff:    200 * time.Millisecond,
		Difficulty:           difficulty.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.IntroExchanges < 2 || c.IntroExchanges > len(introPrompts) {
		errs = append(errs, fmt.Errorf("intro exchanges must be between 2 and %d, got %d", len(introPrompts), c.IntroExchanges))
	}
	if c.CalibrationQuestions < 3 || c.CalibrationQuestions > 4 {
		errs = append(errs, fmt.Errorf("calibration questions must be 3 or 4, got %d", c.CalibrationQuestions))
	}
	if c.MinQuestions < 1 {
		errs = append(errs, fmt.Errorf("min questions must be positive, got %d", c.MinQuestions))
	}
	if c.CoreMaxQuestions < c.MinQuestions {
		errs = append(errs, fmt.Errorf("core max questions (%d) must not be below min questions (%d)", c.CoreMaxQuestions, c.MinQuestions))
	}
	if c.CoverageThreshold <= 0 || c.CoverageThreshold > 1 {
		errs = append(errs, fmt.Errorf("coverage threshold must be in (0,1], got %v", c.CoverageThreshold))
	}
	if c.ProficiencyThreshold < 0 || c.ProficiencyThreshold > 1 {
		errs = append(errs, fmt.Errorf("proficiency threshold must be in [0,1], got %v", c.ProficiencyThreshold))
	}
	if c.DeepDiveQuestions < 1 {
		errs = append(errs, fmt.Errorf("deep dive questions must be positive, got %d", c.DeepDiveQuestions))
	}
	if c.CaseQuestions < 2 || c.CaseQuestions > 3 {
		errs = append(errs, fmt.Errorf("case questions must be 2 or 3, got %d", c.CaseQuestions))
	}
	if c.ReviewPrompts < 1 || c.ReviewPrompts > len(reviewPrompts) {
		errs = append(errs, fmt.Errorf("review prompts must be between 1 and %d, got %d", len(reviewPrompts), c.ReviewPrompts))
	}
	if c.WeakSkillThreshold < 0 || c.WeakSkillThreshold > 100 {
		errs = append(errs, fmt.Errorf("weak skill threshold must be within [0,100], got %v", c.WeakSkillThreshold))
	}
	if c.StrengthThreshold < 0 || c.StrengthThreshold > 100 {
		errs = append(errs, fmt.Errorf("strength threshold must be within [0,100], got %v", c.StrengthThreshold))
	}
	if c.MaxQuestions < 1 {
		errs = append(errs, fmt.Errorf("max questions must be positive, got %d", c.MaxQuestions))
	}
	if c.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max duration must be positive, got %v", c.MaxDuration))
	}
	if c.GradeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("grade timeout must be positive, got %v", c.GradeTimeout))
	}
	if c.RepositoryRetries < 1 {
		errs = append(errs, fmt.Errorf("repository retries must be at least 1, got %d", c.RepositoryRetries))
	}
	if c.RepositoryBackoff < 0 {
		errs = append(errs, fmt.Errorf("repository backoff must not be negative, got %v", c.RepositoryBackoff))
	}
	if err := c.Difficulty.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
