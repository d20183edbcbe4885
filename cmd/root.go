// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for precinct. The root
// command runs one interactive optimization session against a PostgreSQL
// database; subcommands manage stored credentials and show local history.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"precinct/cli/internal/config"
	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/logging"
)

// v holds the settings of the current invocation. Flags are bound into it
// in init and config.Load layers env and the config file underneath.
var v = viper.New()

var (
	uriFlag         string
	serviceFlag     string
	serviceFileFlag string
	fileFlag        string
	outputFileFlag  string
	configFileFlag  string
	jsonFlag        bool
	verboseFlag     bool
	noHistoryFlag   bool
	showVersion     bool
)

// rootCmd represents the base command. Given a query it starts an
// optimization session.
var rootCmd = &cobra.Command{
	Use:   "precinct [query]",
	Short: "Interactive PostgreSQL query optimizer",
	Long: `precinct inspects the tables a query touches, runs EXPLAIN ANALYZE inside a
rolled-back transaction, agrees on the query's intent with you and then asks a
language model for a faster equivalent rewrite.

The query is given as the only argument, or read from a file with --file.
With --json the dialogue is carried as JSON lines on stdin/stdout so an editor
or script can drive it.

Examples:
  precinct "SELECT * FROM orders o JOIN customers c ON c.id = o.customer_id"
  precinct --file slow.sql --output-file fast.sql
  precinct --service reporting --json < replies.jsonl`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion(cmd)
			return nil
		}
		if len(args) == 0 && fileFlag == "" {
			return cmd.Help()
		}
		return runOptimize(cmd, args)
	},
}

// reportedError marks a failure the driver was already told about.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// Execute runs the CLI application and exits with the code of the error
// kind that ended it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var r *reportedError
	if !errors.As(err, &r) {
		// stdout may carry JSON lines, so failures outside a session go to stderr
		logging.PresentFailure(os.Stderr, err)
	}
	os.Exit(apperrors.ExitCodeOf(err))
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperrors.Wrap(apperrors.Config, err.Error(), err)
	})

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFileFlag, "config", "", "Config file (default $XDG_CONFIG_HOME/precinct/config.yaml)")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Mirror log output to stderr")
	pf.String(config.KeyLogLevel, "info", "Log level: debug, info, warn or error")
	pf.String(config.KeyModel, "gpt-4o", "Language model to use")
	pf.String(config.KeyProvider, "auto", "Model provider: auto, openai or anthropic")
	pf.String(config.KeyBaseURL, "", "Base URL of an OpenAI-compatible endpoint")

	f := rootCmd.Flags()
	f.StringVar(&uriFlag, "uri", "", "PostgreSQL connection URI")
	f.StringVar(&serviceFlag, "service", "", "Service name in the pg_service.conf file")
	f.StringVar(&serviceFileFlag, "service-file", "", "Path to pg_service.conf (default $PGSERVICEFILE or ~/.pg_service.conf)")
	rootCmd.MarkFlagsMutuallyExclusive("uri", "service")
	f.StringVarP(&fileFlag, "file", "f", "", "Read the query from this file")
	f.StringVarP(&outputFileFlag, "output-file", "o", "", "Offer to write the optimized query to this file")
	f.BoolVar(&jsonFlag, "json", false, "Speak JSON lines on stdin/stdout instead of prompting")
	f.BoolVar(&noHistoryFlag, "no-history", false, "Do not record this session in the local history")

	f.Int(config.KeyRowLimit, 20, "Rows to preview after running the optimized query")
	f.Int(config.KeyMaxClarifications, 10, "Intent corrections allowed before giving up")
	f.Int(config.KeyOptimizeAttempts, 3, "Rewrites requested before giving up on a valid one")
	f.Int(config.KeyModelRetries, 3, "Retries of a model call on transient failures")
	f.Duration(config.KeyModelTimeout, 60*time.Second, "Timeout of a single model call")
	f.Duration(config.KeyDiagnosticTimeout, 30*time.Second, "Statement timeout for EXPLAIN ANALYZE")
	f.String(config.KeyAPIKeyParam, "", "AWS SSM parameter holding the model API key")
	f.String(config.KeyAWSRegion, "", "AWS region for --api-key-param")
	f.String(config.KeyMetricsFile, "", "Write session metrics to this file in Prometheus text format")
	f.String(config.KeyPromptsFile, "", "YAML file overriding the built-in model prompts")

	bindFlags(pf)
	bindFlags(f)
}

// bindFlags binds every flag named after a config key into v. A flag only
// wins over env and the config file when it was set explicitly.
func bindFlags(fs *pflag.FlagSet) {
	for _, key := range []string{
		config.KeyModel, config.KeyProvider, config.KeyBaseURL, config.KeyLogLevel,
		config.KeyRowLimit, config.KeyMaxClarifications, config.KeyOptimizeAttempts,
		config.KeyModelRetries, config.KeyModelTimeout, config.KeyDiagnosticTimeout,
		config.KeyAPIKeyParam, config.KeyAWSRegion, config.KeyMetricsFile, config.KeyPromptsFile,
	} {
		if fl := fs.Lookup(key); fl != nil {
			_ = v.BindPFlag(key, fl)
		}
	}
}
