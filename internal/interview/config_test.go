package interview

import "testing"

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "one intro exchange", mutate: func(c *Config) { c.IntroExchanges = 1 }},
		{name: "five calibration questions", mutate: func(c *Config) { c.CalibrationQuestions = 5 }},
		{name: "core cap below minimum", mutate: func(c *Config) { c.CoreMaxQuestions = 4 }},
		{name: "coverage above one", mutate: func(c *Config) { c.CoverageThreshold = 1.5 }},
		{name: "one case question", mutate: func(c *Config) { c.CaseQuestions = 1 }},
		{name: "no review", mutate: func(c *Config) { c.ReviewPrompts = 0 }},
		{name: "no duration", mutate: func(c *Config) { c.MaxDuration = 0 }},
		{name: "no retries", mutate: func(c *Config) { c.RepositoryRetries = 0 }},
		{name: "bad alpha", mutate: func(c *Config) { c.Difficulty.Alpha = 0 }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.size() != 2 {
		t.Fatalf("expected two held keys, got %d", k.size())
	}

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
		close(released)
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock on the same key must wait")
	default:
	}

	unlockB()
	unlockA()
	<-acquired
	<-released

	if k.size() != 0 {
		t.Fatalf("expected all entries released, got %d", k.size())
	}
}
