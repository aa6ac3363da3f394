// Package main provides the cypherplan command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/cypherplan/cmd/cypherplan/config"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	root := &cobra.Command{
		Use:   "cypherplan",
		Short: "Answer questions about a transport graph with vetted Cypher queries",
		Long: `cypherplan answers natural language questions about a historical transport
graph. Questions are answered with a single generated Cypher query or a planned
set of queries; every query is statically vetted before it reaches Neo4j.

Example:
  cypherplan ask "How many U-Bahn stations were there in 1971?"
  cypherplan validate "MATCH (n) DETACH DELETE n"`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, pretty)")
	flags.String("neo4j-uri", "", "Neo4j connection URI")
	flags.String("neo4j-database", "", "Neo4j database name")
	flags.String("llm-provider", "", "language model provider (openai, anthropic, google, ollama)")
	flags.String("llm-model", "", "language model name")
	flags.Int("max-complexity", 0, "maximum estimated query complexity (1-5)")
	flags.Duration("query-timeout", 0, "per-query timeout")
	flags.Duration("plan-deadline", 0, "deadline for a whole query plan")
	flags.String("schedule-mode", "", "plan schedule mode (list, dependency)")
	flags.Bool("metrics", false, "serve Prometheus metrics while the command runs")
	flags.String("metrics-address", "", "metrics server address")

	bindings := map[string]string{
		"config":                   "config",
		"log_level":                "log-level",
		"log_format":               "log-format",
		"neo4j.uri":                "neo4j-uri",
		"neo4j.database":           "neo4j-database",
		"llm.provider":             "llm-provider",
		"llm.model":                "llm-model",
		"execution.max_complexity": "max-complexity",
		"execution.query_timeout":  "query-timeout",
		"execution.plan_deadline":  "plan-deadline",
		"execution.schedule_mode":  "schedule-mode",
		"metrics.enabled":          "metrics",
		"metrics.address":          "metrics-address",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Errorf("failed to bind flag %s: %w", flag, err))
		}
	}

	root.AddCommand(
		newAskCmd(v),
		newValidateCmd(),
		newRewriteCmd(),
		newClassifyCmd(),
		newRunPlanCmd(v),
		newHistoryCmd(v),
		newSchemaCmd(v),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cypherplan\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
