package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/storage/sqlite"
	"github.com/spigell/interviewer/internal/taxonomy"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Inspect and manage the question bank",
}

var bankValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the question bank against the taxonomy",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config, tax := commandSetup()

		questions, err := loadQuestions(config)
		if err != nil {
			logger.Fatal("loading question bank", zap.Error(err))
		}

		bank, err := questionbank.New(tax, questions)
		if err != nil {
			logger.Fatal("question bank is invalid", zap.Error(err))
		}

		gaps := bankGaps(tax, bank)
		for _, gap := range gaps {
			logger.Warn("mandatory skill has no question at tier", zap.String("gap", gap))
		}

		writeBankSummary(cmd.OutOrStdout(), tax, bank)

		if len(gaps) != 0 {
			logger.Fatal("question bank cannot serve every mandatory skill", zap.Int("gaps", len(gaps)))
		}
		logger.Info("question bank is valid", zap.Int("questions", bank.Len()))
	},
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List questions, optionally filtered by category and tier",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config, tax := commandSetup()

		questions, err := loadQuestions(config)
		if err != nil {
			logger.Fatal("loading question bank", zap.Error(err))
		}

		bank, err := questionbank.New(tax, questions)
		if err != nil {
			logger.Fatal("question bank is invalid", zap.Error(err))
		}

		query := questionbank.Query{}
		if category := viper.GetString("bank-category"); category != "" {
			query.Categories = []string{category}
		}
		if tier := viper.GetInt("bank-tier"); tier != 0 {
			query.MinTier = taxonomy.ClampTier(tier)
			query.MaxTier = query.MinTier
		}

		out := cmd.OutOrStdout()
		for _, q := range bank.Candidates(query) {
			fmt.Fprintf(out, "%-10s %-24s tier %d  %-11s %s\n", q.ID, q.SkillID, q.Tier, q.Kind, firstLine(q.Prompt))
		}
	},
}

var bankSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add new questions from the bank to the sqlite storage",
	Run: func(_ *cobra.Command, _ []string) {
		logger, config, tax := commandSetup()
		ctx := context.Background()

		questions, err := loadQuestions(config)
		if err != nil {
			logger.Fatal("loading question bank", zap.Error(err))
		}

		// Refuse to store a bank the engine would reject on load.
		if _, err := questionbank.New(tax, questions); err != nil {
			logger.Fatal("question bank is invalid", zap.Error(err))
		}

		repo, err := sqlite.Open(ctx, config.Storage.Path)
		if err != nil {
			logger.Fatal("opening storage", zap.Error(err))
		}
		defer repo.Close()

		if err := seedBank(ctx, repo, questions, config.Storage.Path, logger); err != nil {
			logger.Fatal("seeding question bank", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(bankCmd)
	bankCmd.AddCommand(bankValidateCmd, bankListCmd, bankSeedCmd)

	bankListCmd.Flags().String("category", "", "only list questions of this category")
	bankListCmd.Flags().Int("tier", 0, "only list questions of this tier (1-3)")

	viper.BindPFlag("bank-category", bankListCmd.Flags().Lookup("category"))
	viper.BindPFlag("bank-tier", bankListCmd.Flags().Lookup("tier"))
}

// bankGaps lists mandatory skill and tier pairs with no question, formatted as
// skill@tier.
func bankGaps(tax *taxonomy.Taxonomy, bank *questionbank.Bank) []string {
	have := make(map[string]bool)
	for _, q := range bank.All() {
		have[fmt.Sprintf("%s@%d", q.SkillID, q.Tier)] = true
	}

	var gaps []string
	for _, skill := range tax.MandatorySkills() {
		for tier := taxonomy.TierFoundation; tier <= taxonomy.TierAdvanced; tier++ {
			key := fmt.Sprintf("%s@%d", skill, tier)
			if !have[key] {
				gaps = append(gaps, key)
			}
		}
	}
	return gaps
}

func writeBankSummary(w io.Writer, tax *taxonomy.Taxonomy, bank *questionbank.Bank) {
	perCategory := make(map[string][3]int)
	for _, q := range bank.All() {
		counts := perCategory[q.Category]
		if q.Tier.Valid() {
			counts[q.Tier-1]++
		}
		perCategory[q.Category] = counts
	}

	ids := make([]string, 0, len(perCategory))
	for id := range perCategory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "%-16s %6s %6s %6s\n", "category", "tier1", "tier2", "tier3")
	for _, id := range ids {
		label := id
		if c, ok := tax.Category(id); ok && c.Mandatory {
			label += "*"
		}
		counts := perCategory[id]
		fmt.Fprintf(w, "%-16s %6d %6d %6d\n", label, counts[0], counts[1], counts[2])
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
