package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spigell/interviewer/internal/grading/hybrid"
	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/metrics"
	"github.com/spigell/interviewer/internal/report"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptShowReport   = "Show report"
	PromptReportToFile = "Dump report to file"
	PromptShowTurns    = "Show graded turns"
	PromptExit         = "Exit"
	quitCommand        = "/quit"
)

var errExit = errors.New("exit requested")

var endPrompt = promptui.Select{
	Label: "Interview finished. What next?",
	Items: []string{PromptShowReport, PromptShowTurns, PromptReportToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("candidate", "c", "", "candidate identifier stored with the session")
	runCmd.Flags().Bool("offline", false, "grade with the offline keyword capability instead of gemini")
	runCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090. Default is unset.")

	viper.BindPFlag("candidate", runCmd.Flags().Lookup("candidate"))
	viper.BindPFlag("offline", runCmd.Flags().Lookup("offline"))
	viper.BindPFlag("metrics-addr", runCmd.Flags().Lookup("metrics-addr"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	tax, err := loadTaxonomy(config)
	if err != nil {
		logger.Fatal("loading taxonomy", zap.Error(err))
	}

	repo, closeRepo, err := openRepository(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err), zap.String("driver", config.Storage.Driver))
	}
	defer closeRepo()

	bank, err := loadBank(ctx, tax, repo)
	if err != nil {
		logger.Fatal("building question bank", zap.Error(err))
	}

	logger.Info("question bank ready",
		zap.Int("questions", bank.Len()),
		zap.Int("skills", len(tax.Skills())),
	)

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)
	if addr := viper.GetString("metrics-addr"); addr != "" {
		go serveMetrics(addr, registry, logger)
	}

	rt, closeLedger, err := newRouter(ctx, config, viper.GetBool("offline"), logger)
	if err != nil {
		logger.Fatal("building provider router", zap.Error(err))
	}
	defer closeLedger()

	coordinator, err := hybrid.New(config.Grading, rt, collectors, logger)
	if err != nil {
		logger.Fatal("building grading coordinator", zap.Error(err))
	}

	engine, err := interview.New(config.Interview, tax, bank, coordinator, repo,
		interview.WithMetrics(collectors),
		interview.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("building interview engine", zap.Error(err))
	}

	result, err := engine.Start(ctx, viper.GetString("candidate"))
	if err != nil {
		logger.Fatal("starting interview", zap.Error(err))
	}

	fmt.Fprintf(out, "Type %s to end the interview early.\n", quitCommand)

	result, err = interviewLoop(ctx, engine, result, out, logger)
	if err != nil {
		logger.Fatal("interview stopped", zap.Error(err), zap.String("session_id", result.SessionID))
	}

	summary, err := engine.Summary(ctx, result.SessionID)
	if err != nil {
		logger.Fatal("building report", zap.Error(err))
	}

	for {
		_, action, err := endPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, summary, out, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// interviewLoop asks prompts until the session reaches a terminal state.
func interviewLoop(ctx context.Context, engine *interview.Engine, result interview.TurnResult, out io.Writer, logger *zap.Logger) (interview.TurnResult, error) {
	for !result.Terminal {
		printPrompt(out, result)

		answerPrompt := promptui.Prompt{Label: "Answer"}
		answer, err := answerPrompt.Run()

		interrupted := errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF)
		if err != nil && !interrupted {
			return result, err
		}

		if interrupted || strings.TrimSpace(answer) == quitCommand {
			logger.Info("ending interview early", zap.String("session_id", result.SessionID))
			return engine.Cancel(ctx, result.SessionID, "candidate ended the interview")
		}

		next, err := engine.Advance(ctx, result.SessionID, answer)
		if errors.Is(err, interview.ErrInvalidAnswer) {
			logger.Warn("answer rejected, try again", zap.Error(err))
			continue
		}
		if err != nil {
			return result, err
		}

		if next.LastTurn != nil {
			fmt.Fprintf(out, "\n  %s\n\n", next.LastTurn.Feedback)
		}

		logger.Debug("turn done",
			zap.String("status", string(next.Status)),
			zap.String("phase", string(next.Phase)),
			zap.Int("turn", next.TurnNumber),
			zap.Float64("coverage", next.Coverage.Mandatory),
			zap.Duration("time_remaining", next.TimeRemaining),
		)

		result = next
	}

	if result.Status != interview.StatusCompleted {
		logger.Info("interview ended early", zap.String("status", string(result.Status)))
	}

	return result, nil
}

func printPrompt(out io.Writer, result interview.TurnResult) {
	if result.Prompt == nil {
		return
	}

	header := string(result.Phase)
	if result.Prompt.QuestionID != "" {
		header = fmt.Sprintf("%s / %s / tier %d", result.Phase, result.Prompt.SkillID, result.Prompt.Tier)
	}

	fmt.Fprintf(out, "[%s] %s\n", header, result.Prompt.Text)
}

func handleAction(action string, summary *report.Report, out io.Writer, logger *zap.Logger) error {
	switch action {
	case PromptShowReport:
		return summary.WriteText(out)
	case PromptShowTurns:
		for _, t := range summary.Turns {
			fmt.Fprintf(out, "#%d %-10s %-14s %5.1f  %-8s %s\n",
				t.Number, t.Phase, t.QuestionID, t.Score, t.Method, t.Feedback)
		}
		return nil
	case PromptReportToFile:
		filename, err := dumpReport(summary)
		if err != nil {
			return fmt.Errorf("dump report to file: %w", err)
		}
		logger.Info("dumping report to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func dumpReport(summary *report.Report) (string, error) {
	f, err := os.CreateTemp("", app+"-report-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return "", err
	}

	return f.Name(), nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener stopped", zap.Error(err))
	}
}
