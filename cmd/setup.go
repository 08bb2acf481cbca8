package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/ai/gemini"
	"github.com/spigell/interviewer/internal/ai/keyword"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/router"
	"github.com/spigell/interviewer/internal/secrets"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/storage/memory"
	"github.com/spigell/interviewer/internal/storage/sqlite"
	"github.com/spigell/interviewer/internal/taxonomy"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// commandSetup prepares what every config-driven command needs.
func commandSetup() (*zap.Logger, *Config, *taxonomy.Taxonomy) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	tax, err := loadTaxonomy(config)
	if err != nil {
		logger.Fatal("loading taxonomy", zap.Error(err))
	}

	return logger, config, tax
}

type closer func() error

func noopCloser() error { return nil }

func loadTaxonomy(config *Config) (*taxonomy.Taxonomy, error) {
	if config.Taxonomy.File == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.LoadFile(config.Taxonomy.File)
}

func loadQuestions(config *Config) ([]questionbank.Question, error) {
	if config.Bank.File == "" {
		return questionbank.Default(), nil
	}
	return questionbank.ParseFile(config.Bank.File)
}

// openRepository returns the configured repository with the question bank
// already available through LoadQuestionBank.
func openRepository(ctx context.Context, config *Config, log *zap.Logger) (session.Repository, closer, error) {
	questions, err := loadQuestions(config)
	if err != nil {
		return nil, nil, fmt.Errorf("loading question bank: %w", err)
	}

	switch strings.ToLower(config.Storage.Driver) {
	case "sqlite":
		repo, err := sqlite.Open(ctx, config.Storage.Path)
		if err != nil {
			return nil, nil, err
		}

		stored, err := repo.LoadQuestionBank(ctx)
		if err != nil {
			repo.Close()
			return nil, nil, err
		}

		// An explicit bank file adds its new questions to the stored bank.
		if len(stored) == 0 || config.Bank.File != "" {
			if err := seedBank(ctx, repo, questions, config.Storage.Path, log); err != nil {
				repo.Close()
				return nil, nil, err
			}
		}

		return repo, repo.Close, nil
	default:
		return memory.New(questions), noopCloser, nil
	}
}

// seedBank stores questions that are new to repo. Edited questions keep their
// stored version and are reported.
func seedBank(ctx context.Context, repo *sqlite.Repository, questions []questionbank.Question, path string, log *zap.Logger) error {
	changed, err := repo.SeedQuestions(ctx, questions)
	if err != nil {
		return err
	}
	for _, id := range changed {
		log.Warn("stored question differs from the bank, keeping the stored one",
			zap.String("question_id", id),
			zap.String("hint", "give an edited question a new id"),
		)
	}
	log.Info("seeded question bank",
		zap.String("path", path),
		zap.Int("count", len(questions)),
		zap.Int("kept", len(changed)),
	)
	return nil
}

func loadBank(ctx context.Context, tax *taxonomy.Taxonomy, repo session.Repository) (*questionbank.Bank, error) {
	questions, err := repo.LoadQuestionBank(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading question bank: %w", err)
	}
	return questionbank.New(tax, questions)
}

func newLedger(ctx context.Context, config *LedgerConfig) (router.Ledger, closer, error) {
	if strings.ToLower(config.Backend) != "redis" {
		return router.NewMemoryLedger(config.Period), noopCloser, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis %s: %w", config.Redis.Addr, err)
	}

	return router.NewRedisLedger(client, config.Redis.Prefix, config.Period), client.Close, nil
}

// newCapabilities builds one capability per configured tier. Without an API
// key, or when offline is set, every tier grades with the keyword matcher.
func newCapabilities(ctx context.Context, config *ProvidersConfig, offline bool, log *zap.Logger) ([]ai.Capability, error) {
	capabilities := make([]ai.Capability, 0, len(config.Tiers))

	apiKey := ""
	if !offline {
		var err error
		apiKey, err = secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  config.Gemini.APIKeyFile,
			Value: config.Gemini.APIKey,
			Env:   config.Gemini.Env,
		})
		if err != nil {
			log.Warn("grading with the offline keyword capability",
				zap.Error(err),
				zap.String("hint", "set providers.gemini.api-key-file or GEMINI_API_KEY_FILE"),
			)
			offline = true
		}
	}

	for _, tier := range config.Tiers {
		if offline {
			capabilities = append(capabilities, keyword.New(tier.Name))
			continue
		}

		tierLogger := logger.WithFields(log,
			logger.CommonFields("gemini", tier.Model)...,
		).With(zap.String("tier", tier.Name), zap.Int("ai_retry_attempts", config.Gemini.MaxRetries))

		generator, err := gemini.NewGenerator(ctx, apiKey, tier.Model, config.Gemini.MaxRetries, tierLogger)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier.Name, err)
		}

		capabilities = append(capabilities, gemini.NewEvaluator(tier.Name, generator, config.Gemini.MaxLogLength, log))
	}

	return capabilities, nil
}

func newRouter(ctx context.Context, config *Config, offline bool, log *zap.Logger) (*router.Router, closer, error) {
	capabilities, err := newCapabilities(ctx, config.Providers, offline, log)
	if err != nil {
		return nil, nil, err
	}

	ledger, closeLedger, err := newLedger(ctx, config.Ledger)
	if err != nil {
		return nil, nil, err
	}

	tiers := make([]router.Tier, 0, len(config.Providers.Tiers))
	for i, t := range config.Providers.Tiers {
		tiers = append(tiers, router.Tier{
			Name:        t.Name,
			Capability:  capabilities[i],
			Ceiling:     t.Ceiling,
			CostPerCall: t.CostPerCall,
			PricePer1K:  t.PricePer1K,
		})
	}

	r, err := router.New(tiers, ledger, log)
	if err != nil {
		closeLedger()
		return nil, nil, err
	}

	return r, closeLedger, nil
}
