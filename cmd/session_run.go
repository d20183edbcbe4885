// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"precinct/cli/internal/config"
	"precinct/cli/internal/dsn"
	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/history"
	"precinct/cli/internal/intent"
	"precinct/cli/internal/keychain"
	"precinct/cli/internal/llm"
	"precinct/cli/internal/logging"
	"precinct/cli/internal/metrics"
	"precinct/cli/internal/optimizer"
	"precinct/cli/internal/paramstore"
	"precinct/cli/internal/session"
	"precinct/cli/internal/sqlexec"
	"precinct/cli/internal/sqltext"
	"precinct/cli/internal/terminal"
	"precinct/cli/internal/transport"
	"precinct/cli/internal/transport/message"
	"precinct/cli/internal/xdg"
)

// inputHistoryFile keeps readline history of interactive replies.
const inputHistoryFile = "input_history"

// runOptimize is the root command: config -> logging -> transport ->
// connection -> model -> session -> action -> history/metrics.
func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(v, configFileFlag)
	if err != nil {
		return err
	}
	if noHistoryFlag {
		cfg.History = false
	}

	log, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	tr, closeTr, err := openTransport()
	if err != nil {
		return err
	}
	defer closeTr()

	// Every failure from here on is told to the driver before returning.
	fail := func(err error) error {
		log.Error().Err(err).Str("kind", string(apperrors.KindOf(err))).Msg("session setup failed")
		_ = tr.Send(context.WithoutCancel(ctx), message.ErrorNotice{
			Kind:    string(apperrors.KindOf(err)),
			Message: apperrors.MessageOf(err),
		})
		return reported(err)
	}

	raw, err := readQuery(args)
	if err != nil {
		return fail(err)
	}
	q, err := sqltext.Parse(raw)
	if err != nil {
		return fail(apperrors.Wrap(apperrors.PlanExecution, "invalid query: "+err.Error(), err))
	}

	m := metrics.New()
	defer writeMetrics(cfg, m, log)

	client, err := modelClient(ctx, cfg, m, log)
	if err != nil {
		return fail(err)
	}

	resolved, err := resolveConnection()
	if err != nil {
		return fail(err)
	}
	h, err := sqlexec.Open(ctx, resolved.ConnString)
	if err != nil {
		return fail(err)
	}
	defer h.Close()
	log.Info().Str("target", h.Target()).Str("source", resolved.Describe()).Msg("connected")
	if ver, err := h.ServerVersion(ctx); err == nil {
		log.Debug().Str("server_version", ver).Msg("server")
	}

	prompts, err := llm.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return fail(err)
	}

	validator := sqlexec.NewValidator(h.Conn())
	opt := optimizer.New(client, prompts.Optimize, validator, cfg.OptimizeAttempts, log)
	opt.OnAttempt = m.ObserveOptimizeAttempt

	ctrl := session.NewController(session.Deps{
		Validator:   validator,
		Inspector:   sqlexec.NewSchemaInspector(h.Conn()),
		Diagnostics: sqlexec.NewDiagnostics(h.Conn(), cfg.DiagnosticTimeout, log),
		Drafter:     intent.NewResolver(client, prompts.Intent, log),
		Optimizer:   opt,
		Transport:   tr,
		Observer:    m,
	}, session.Options{
		MaxClarifications: cfg.MaxClarifications,
		AllowWrite:        outputFileFlag != "",
	}, log)

	s := session.New(q)
	sessionErr := ctrl.Run(ctx, s)

	actionErr := finish(ctx, s, h, tr, cfg, log)

	if cfg.History {
		record(ctx, s, h.Target(), cfg.Model, actionErr, log)
	}

	switch {
	case sessionErr != nil:
		return reported(sessionErr)
	case actionErr != nil:
		return fail(actionErr)
	case s.Outcome == session.OutcomeCancelled:
		return reported(apperrors.New(apperrors.Cancelled, "session cancelled"))
	}
	return nil
}

func setupLogging(cfg config.Config) (zerolog.Logger, io.Closer, error) {
	var console io.Writer
	if verboseFlag {
		console = os.Stderr
	}
	dir, err := xdg.StateDir()
	if err != nil {
		// Still log to the console when asked; the file sink is best effort.
		dir = ""
	}
	return logging.Setup(logging.Options{Level: cfg.LogLevel, Dir: dir, Console: console})
}

// openTransport picks JSON lines with --json, readline on a terminal and a
// plain line reader otherwise. The returned func releases it.
func openTransport() (transport.Transport, func(), error) {
	if jsonFlag {
		return transport.NewJSONLines(os.Stdin, os.Stdout), func() {}, nil
	}
	spinner := terminal.IsTerminal(os.Stdout)
	if terminal.IsTerminal(os.Stdin) {
		historyFile, _ := xdg.StatePath(inputHistoryFile)
		rl, err := transport.NewReadlineReader(historyFile)
		if err != nil {
			return nil, nil, err
		}
		t := transport.NewText(rl, os.Stdout, spinner)
		return t, func() { _ = t.Close(); _ = rl.Close() }, nil
	}
	t := transport.NewText(transport.NewBufferedReader(os.Stdin, os.Stdout), os.Stdout, spinner)
	return t, func() { _ = t.Close() }, nil
}

// readQuery returns the query argument or the contents of --file.
func readQuery(args []string) (string, error) {
	if fileFlag != "" {
		if len(args) > 0 {
			return "", apperrors.New(apperrors.Config, "give the query either as an argument or with --file, not both")
		}
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", apperrors.Wrap(apperrors.Config, "cannot read query file "+fileFlag, err)
		}
		return string(data), nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", apperrors.New(apperrors.Config, "no query given")
	}
	return args[0], nil
}

// resolveConnection applies the connection precedence to the flags.
func resolveConnection() (dsn.Resolved, error) {
	res, err := dsn.Resolve(dsn.Options{
		URI:         uriFlag,
		Service:     serviceFlag,
		ServiceFile: serviceFileFlag,
		Keychain: func() (string, error) {
			km, err := keychain.GetManager()
			if err != nil {
				return "", err
			}
			return km.LoadDBDSN()
		},
	})
	if errors.Is(err, dsn.ErrNotConfigured) {
		return res, apperrors.Wrap(apperrors.Connection,
			"no database connection configured; pass --uri or --service, or run 'precinct connect'", err)
	}
	if err != nil {
		return res, apperrors.Wrap(apperrors.Connection, "cannot resolve database connection: "+err.Error(), err)
	}
	return res, nil
}

// modelClient builds the retrying model client with metrics attached.
func modelClient(ctx context.Context, cfg config.Config, m *metrics.Metrics, log zerolog.Logger) (llm.Client, error) {
	provider := llm.ResolveProvider(cfg.Provider, cfg.Model)
	key, err := resolveAPIKey(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}
	base, err := llm.New(llm.Options{
		Provider: provider,
		Model:    cfg.Model,
		APIKey:   key,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("provider", base.Name()).Str("model", cfg.Model).Msg("model client ready")
	return llm.NewRetrying(base, cfg.ModelRetries, cfg.ModelTimeout,
		llm.WithObserver(m.ObserveModelCall),
		llm.WithLogger(log),
	), nil
}

// resolveAPIKey looks in PRECINCT_API_KEY, the provider's own variable, the
// configured SSM parameter and finally the OS keychain.
func resolveAPIKey(ctx context.Context, cfg config.Config, provider string) (string, error) {
	envs := []string{"PRECINCT_API_KEY", "OPENAI_API_KEY"}
	if provider == llm.ProviderAnthropic {
		envs[1] = "ANTHROPIC_API_KEY"
	}
	for _, name := range envs {
		if k := strings.TrimSpace(os.Getenv(name)); k != "" {
			return k, nil
		}
	}

	if cfg.APIKeyParam != "" {
		ps, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
		if err != nil {
			return "", apperrors.Wrap(apperrors.Config, "cannot reach AWS parameter store", err)
		}
		k, err := ps.GetParameter(ctx, cfg.APIKeyParam)
		if err != nil {
			return "", apperrors.Wrap(apperrors.Config, "cannot read API key parameter "+cfg.APIKeyParam, err)
		}
		return k, nil
	}

	if km, err := keychain.GetManager(); err == nil {
		if k, err := km.LoadAPIKey(); err == nil {
			return k, nil
		}
	}
	return "", apperrors.New(apperrors.Config, "no model API key; set PRECINCT_API_KEY or run 'precinct login'")
}

// finish carries out the outcome the session ended with.
func finish(ctx context.Context, s *session.Session, h *sqlexec.Handle, tr transport.Transport, cfg config.Config, log zerolog.Logger) error {
	query := s.OptimizedQuery()
	switch s.Outcome {
	case session.OutcomeRun:
		res, err := sqlexec.NewExecutor(h.Conn(), log).Run(ctx, query, cfg.RowLimit)
		if err != nil {
			return err
		}
		if err := tr.Send(ctx, message.ResultNotice{
			Columns:      res.Columns,
			Rows:         res.Rows,
			RowsAffected: res.RowsAffected,
			Truncated:    res.Truncated,
		}); err != nil {
			return err
		}
		return tr.Send(ctx, message.DoneNotice{Outcome: string(session.OutcomeRun)})

	case session.OutcomeCopy:
		if tr.Interactive() {
			if err := terminal.CopyOSC52(os.Stdout, query); err != nil {
				log.Warn().Err(err).Msg("clipboard copy failed")
			}
		}
		return tr.Send(ctx, message.DoneNotice{Outcome: string(session.OutcomeCopy), Query: query})

	case session.OutcomeWrite:
		if err := os.WriteFile(outputFileFlag, []byte(strings.TrimSpace(query)+"\n"), 0o644); err != nil {
			return apperrors.Wrap(apperrors.Config, "cannot write "+outputFileFlag, err)
		}
		log.Info().Str("path", outputFileFlag).Msg("optimized query written")
		return tr.Send(ctx, message.DoneNotice{Outcome: string(session.OutcomeWrite), Query: query})

	default:
		return tr.Send(context.WithoutCancel(ctx), message.DoneNotice{Outcome: string(s.Outcome)})
	}
}

// record stores the finished session in the local history. Failures are
// logged and otherwise ignored.
func record(ctx context.Context, s *session.Session, target, model string, actionErr error, log zerolog.Logger) {
	path, err := xdg.StatePath(history.FileName)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		return
	}
	ctx = context.WithoutCancel(ctx)
	store, err := history.Open(ctx, path)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		return
	}
	defer store.Close()

	e := history.Entry{
		ID:             s.ID.String(),
		StartedAt:      s.Started,
		FinishedAt:     s.Finished,
		Target:         target,
		Model:          model,
		Query:          s.Query.Raw,
		Intent:         s.Intent.Current,
		OptimizedQuery: s.OptimizedQuery(),
		Corrections:    s.Intent.Rounds(),
		Outcome:        string(s.Outcome),
		ErrorKind:      string(s.ErrorKind()),
		ErrorMessage:   apperrors.MessageOf(s.Err),
	}
	if s.Optimization != nil {
		e.Explanation = s.Optimization.Explanation
	}
	if s.Plan != nil {
		e.PlanCost = s.Plan.TotalCost
		e.PlanTimeMs = s.Plan.TotalTimeMs()
	}
	if actionErr != nil {
		e.ErrorKind = string(apperrors.KindOf(actionErr))
		e.ErrorMessage = apperrors.MessageOf(actionErr)
	}
	if err := store.Add(ctx, e); err != nil {
		log.Warn().Err(err).Msg("could not record session")
	}
}

func writeMetrics(cfg config.Config, m *metrics.Metrics, log zerolog.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteFile(cfg.MetricsFile); err != nil {
		log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("could not write metrics")
	}
}
