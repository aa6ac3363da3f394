package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/cypherplan/cmd/cypherplan/config"
	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/export"
	"github.com/TFMV/cypherplan/pkg/infrastructure/memory"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/schema"
	"github.com/TFMV/cypherplan/pkg/services"
)

// loadConfig builds the configuration and a logger writing to stderr.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// readInput joins args, or reads stdin when args are empty or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAskCmd(v *viper.Viper) *cobra.Command {
	var arrowOut string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a natural language question",
		Long: `Answer a question with a single generated query or a planned set of queries.
The full pipeline result is printed as JSON.

Example:
  cypherplan ask "Compare U-Bahn and S-Bahn development in East and West Berlin between 1961 and 1971"
  echo "How many stations were there in 1964?" | cypherplan ask --arrow-out rows.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, logger, needs{graph: true, llm: true, history: true})
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.pipeline.Answer(ctx, question)
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}

			if arrowOut != "" {
				alloc := memory.NewTrackedAllocator(nil)
				exporter := export.NewExporter(alloc, logger)
				n, err := exporter.WriteFile(arrowOut, result.CombinedRecords)
				exporter.Close()
				if err != nil {
					return err
				}
				logger.Info().
					Str("path", arrowOut).
					Int("rows", n).
					Int64("peak_bytes", alloc.PeakBytes()).
					Msg("Combined records exported")
			}

			if !result.Success {
				return fmt.Errorf("question failed at %s: %s", result.ErrorStage, result.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&arrowOut, "arrow-out", "", "write combined records to this file as an Arrow IPC stream")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var maxComplexity int

	cmd := &cobra.Command{
		Use:   "validate [query]",
		Short: "Statically vet a Cypher query",
		Long: `Run the pattern-based validator on a query without touching the database.
The command fails when the query is invalid or exceeds --max-complexity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			result := services.ValidateQuery(query)
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return errors.Newf(errors.CodeInvalidRequest, "query rejected: %s", strings.Join(result.Issues, "; "))
			}
			if result.EstimatedComplexity > maxComplexity {
				return errors.Newf(errors.CodeComplexityExceeded,
					"Query complexity (%d) exceeds maximum (%d)", result.EstimatedComplexity, maxComplexity)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxComplexity, "max-complexity", services.DefaultMaxComplexity, "maximum accepted complexity")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "rewrite [query]",
		Short: "Bound a Cypher query with a safety LIMIT",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), services.AddSafetyLimit(query, limit))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", services.DefaultQueryLimit, "limit appended to unbounded queries")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [query]",
		Short: "Describe a Cypher statement as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			info, err := services.ClassifyStatement(query)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
}

// planReport is the output of run-plan.
type planReport struct {
	Plan       *models.QueryPlan         `json:"plan"`
	Succeeded  int                       `json:"succeeded"`
	Failed     int                       `json:"failed"`
	Skipped    int                       `json:"skipped"`
	PerQuery   []models.QueryMetadata    `json:"per_query"`
	Integrated *models.IntegratedContext `json:"integrated"`
}

func newRunPlanCmd(v *viper.Viper) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run-plan",
		Short: "Execute a JSON query plan against the graph",
		Long: `Execute a query plan in the planner's JSON format and print the per-query
outcomes with the integrated result.

Example:
  cypherplan run-plan --file plan.json
  cat plan.json | cypherplan run-plan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				text string
				err  error
			)
			if file == "" || file == "-" {
				text, err = readInput(cmd, nil)
			} else {
				var data []byte
				data, err = os.ReadFile(file)
				text = string(data)
			}
			if err != nil {
				return err
			}

			plan, err := models.ParseQueryPlan(text)
			if err != nil {
				return errors.Wrap(err, errors.CodeInvalidRequest, "invalid plan")
			}

			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, logger, needs{graph: true})
			if err != nil {
				return err
			}
			defer a.Close()

			exec, execErr := a.planExecutor.ExecutePlan(ctx, plan)
			if exec == nil {
				return execErr
			}
			report := planReport{
				Plan:       plan,
				Succeeded:  exec.Succeeded,
				Failed:     exec.Failed,
				Skipped:    exec.Skipped,
				PerQuery:   services.QueryMetadataFrom(exec.Records),
				Integrated: services.Integrate(plan, exec.Records, cfg.Execution.SampleSize),
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return execErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (default stdin)")
	return cmd
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var (
		limit int
		id    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New(errors.CodeFailedPrecondition, "run history is disabled")
			}

			a, err := newApp(cmd.Context(), cfg, logger, needs{history: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if id != "" {
				run, err := a.history.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), run)
			}

			runs, err := a.history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVar(&id, "id", "", "show a single run")
	return cmd
}

func newSchemaCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema summary used for query generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			if cfg.Schema.StaticFile != "" {
				static, err := schema.LoadStaticFile(cfg.Schema.StaticFile)
				if err != nil {
					return err
				}
				summary, _ := static.Summary(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, logger, needs{graph: true})
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.schema.Summary(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}
