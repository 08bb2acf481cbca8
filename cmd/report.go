package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spigell/interviewer/internal/report"
	"github.com/spigell/interviewer/internal/session"
	"github.com/spigell/interviewer/internal/storage/sqlite"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report SESSION_ID",
	Short: "Print the report of a session stored in sqlite",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, config, tax := commandSetup()
		ctx := context.Background()

		repo, err := sqlite.Open(ctx, config.Storage.Path)
		if err != nil {
			logger.Fatal("opening storage", zap.Error(err), zap.String("path", config.Storage.Path))
		}
		defer repo.Close()

		s, err := repo.LoadSession(ctx, args[0])
		if errors.Is(err, session.ErrSessionNotFound) {
			logger.Fatal("no such session", zap.String("session_id", args[0]))
		}
		if err != nil {
			logger.Fatal("loading session", zap.Error(err))
		}

		if !s.Terminal {
			logger.Warn("session is still in progress, the report is partial",
				zap.String("phase", string(s.Phase)),
			)
		}

		summary := report.NewBuilder(tax, report.Config{
			StrengthThreshold:  config.Interview.StrengthThreshold,
			WeakSkillThreshold: config.Interview.WeakSkillThreshold,
		}).Build(s)

		if err := writeReport(cmd.OutOrStdout(), summary, viper.GetString("report-format")); err != nil {
			logger.Fatal("writing report", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("format", "f", "text", "output format: text or json")
	viper.BindPFlag("report-format", reportCmd.Flags().Lookup("format"))
}

func writeReport(w io.Writer, summary *report.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case "text", "":
		return summary.WriteText(w)
	default:
		return errors.New("unknown report format " + format)
	}
}
