// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session runs the optimization dialogue. A Controller sequences
// schema inspection, diagnostics, intent drafting under user correction,
// optimization and the final action choice, moving one Session through a
// fixed transition table. It talks to the driver only through a Transport.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/intent"
	"precinct/cli/internal/optimizer"
	"precinct/cli/internal/plan"
	"precinct/cli/internal/sqlexec"
	"precinct/cli/internal/sqltext"
	"precinct/cli/internal/transport"
	"precinct/cli/internal/transport/message"
)

// DefaultMaxClarifications caps intent corrections when none is configured.
const DefaultMaxClarifications = 10

// Inspector resolves the tables a query references.
type Inspector interface {
	Inspect(ctx context.Context, q *sqltext.Query) (sqlexec.Schemas, error)
}

// Diagnostics executes a query under instrumentation.
type Diagnostics interface {
	Run(ctx context.Context, q *sqltext.Query) (*plan.ExecutionPlan, error)
}

// Drafter drafts intents.
type Drafter interface {
	Draft(ctx context.Context, query, schema string, rec *intent.Record) (string, error)
}

// Optimizer proposes rewrites.
type Optimizer interface {
	Optimize(ctx context.Context, in optimizer.Input) (optimizer.Result, error)
}

// Validator checks the input statement before anything runs it.
type Validator interface {
	Validate(ctx context.Context, sql string) error
}

// Observer is told about progress. Every method must be cheap.
type Observer interface {
	Transition(from, to State, ev Event)
	DiagnosticsDone(d time.Duration)
	Finished(s *Session)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	// Validator is optional.
	Validator   Validator
	Inspector   Inspector
	Diagnostics Diagnostics
	Drafter     Drafter
	Optimizer   Optimizer
	Transport   transport.Transport
	// Observer is optional.
	Observer Observer
}

// Options tune a Controller.
type Options struct {
	// MaxClarifications is the number of corrections accepted before the
	// session fails with clarification_limit.
	MaxClarifications int
	// AllowWrite offers the write action.
	AllowWrite bool
}

// Controller drives sessions. A Controller may run several sessions one
// after another; it keeps no state between them.
type Controller struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

// NewController creates a Controller.
func NewController(deps Deps, opts Options, log zerolog.Logger) *Controller {
	if opts.MaxClarifications < 0 {
		opts.MaxClarifications = DefaultMaxClarifications
	}
	return &Controller{deps: deps, opts: opts, log: log}
}

// Run drives s from Init to Done and returns the session error, nil for
// run, copy, write and cancel outcomes.
func (c *Controller) Run(ctx context.Context, s *Session) error {
	log := c.log.With().Str("session_id", s.ID.String()).Logger()
	defer func() {
		s.Finished = time.Now()
		if c.deps.Observer != nil {
			c.deps.Observer.Finished(s)
		}
		log.Info().Str("outcome", string(s.Outcome)).Str("kind", string(s.ErrorKind())).
			Dur("elapsed", s.Finished.Sub(s.Started)).Msg("session finished")
	}()

	if err := c.prepare(ctx, s, log); err != nil {
		return c.abort(ctx, s, err)
	}
	if err := c.fire(s, EventReady); err != nil {
		return c.abort(ctx, s, err)
	}

	if err := c.resolveIntent(ctx, s, log); err != nil || s.Done() {
		return c.abort(ctx, s, err)
	}

	if err := c.optimize(ctx, s); err != nil || s.Done() {
		return c.abort(ctx, s, err)
	}

	return c.abort(ctx, s, c.chooseAction(ctx, s))
}

// prepare is the Init state: validate, inspect, diagnose.
func (c *Controller) prepare(ctx context.Context, s *Session, log zerolog.Logger) error {
	c.status(ctx, "validate", "Checking the query")
	if c.deps.Validator != nil {
		if err := c.deps.Validator.Validate(ctx, s.Query.Normalized); err != nil {
			return err
		}
	}

	c.status(ctx, "schema", "Inspecting schema")
	schemas, err := c.deps.Inspector.Inspect(ctx, s.Query)
	if err != nil {
		return err
	}
	s.Schemas = schemas
	log.Debug().Strs("tables", schemas.Names()).Msg("schema captured")

	c.status(ctx, "diagnostics", "Running EXPLAIN ANALYZE")
	start := time.Now()
	p, err := c.deps.Diagnostics.Run(ctx, s.Query)
	if c.deps.Observer != nil {
		c.deps.Observer.DiagnosticsDone(time.Since(start))
	}
	if err != nil {
		return err
	}
	s.Plan = p
	return nil
}

// resolveIntent is the AwaitingIntentConfirmation state. It returns with
// the session either Optimizing or Done.
func (c *Controller) resolveIntent(ctx context.Context, s *Session, log zerolog.Logger) error {
	schema := s.Schemas.Summary()
	for {
		c.status(ctx, "intent", "Drafting intent")
		draft, err := c.deps.Drafter.Draft(ctx, s.Query.Normalized, schema, &s.Intent)
		if err != nil {
			return err
		}

		reply, err := c.deps.Transport.AskIntent(ctx, message.IntentRequest{Query: s.Query.Raw, Draft: draft})
		if err != nil {
			return err
		}
		switch {
		case reply.Cancelled:
			return c.fire(s, EventCancel)
		case reply.Accepted:
			s.Intent.Accept()
			return c.fire(s, EventAccept)
		}

		if s.Intent.Rounds() >= c.opts.MaxClarifications {
			return apperrors.Newf(apperrors.ClarificationLimit,
				"intent still not confirmed after %d corrections", s.Intent.Rounds())
		}
		s.Intent.Correct(reply.Correction)
		log.Debug().Int("round", s.Intent.Rounds()).Msg("intent corrected")
		if err := c.fire(s, EventCorrection); err != nil {
			return err
		}
	}
}

// optimize is the Optimizing state.
func (c *Controller) optimize(ctx context.Context, s *Session) error {
	c.status(ctx, "optimize", "Optimizing")
	res, err := c.deps.Optimizer.Optimize(ctx, optimizer.Input{
		Query:  s.Query.Normalized,
		Intent: s.Intent.Current,
		Schema: s.Schemas.Summary(),
		Plan:   s.Plan.Summary(),
	})
	if err != nil {
		if isCancel(ctx, err) {
			return err
		}
		s.Err = err
		return c.fire(s, EventOptimizeFailed)
	}
	s.Optimization = &res
	if err := c.deps.Transport.Send(ctx, message.OptimizationNotice{
		OptimizedQuery: res.Query,
		Explanation:    res.Explanation,
	}); err != nil {
		return err
	}
	return c.fire(s, EventOptimized)
}

// chooseAction is the AwaitingAction state.
func (c *Controller) chooseAction(ctx context.Context, s *Session) error {
	req := message.ActionRequest{Actions: []message.Action{message.ActionRun, message.ActionCopy}}
	if c.opts.AllowWrite {
		req.Actions = append(req.Actions, message.ActionWrite)
	}
	req.Actions = append(req.Actions, message.ActionCancel)

	reply, err := c.deps.Transport.AskAction(ctx, req)
	if err != nil {
		return err
	}
	switch reply.Action {
	case message.ActionRun:
		return c.fire(s, EventRun)
	case message.ActionCopy:
		return c.fire(s, EventCopy)
	case message.ActionWrite:
		return c.fire(s, EventWrite)
	case message.ActionCancel:
		return c.fire(s, EventCancel)
	}
	return apperrors.Newf(apperrors.Protocol, "unknown action %q", reply.Action)
}

func (c *Controller) fire(s *Session, ev Event) error {
	to, outcome, err := next(s.State, ev)
	if err != nil {
		return err
	}
	from := s.State
	s.State = to
	if to == StateDone {
		s.Outcome = outcome
	}
	if c.deps.Observer != nil {
		c.deps.Observer.Transition(from, to, ev)
	}
	return nil
}

// abort moves a session that hit err to Done. A cancellation becomes the
// cancelled outcome; anything else fails the session and is reported to
// the driver. It returns the session error.
func (c *Controller) abort(ctx context.Context, s *Session, err error) error {
	if err == nil {
		if s.Outcome == OutcomeFailed {
			c.report(ctx, s.Err)
			return s.Err
		}
		return nil
	}
	if s.Done() {
		return s.Err
	}

	if isCancel(ctx, err) {
		ev := EventInterrupted
		if s.State == StateAwaitingIntentConfirmation || s.State == StateAwaitingAction {
			ev = EventCancel
		}
		if fireErr := c.fire(s, ev); fireErr == nil {
			return nil
		}
	}
	s.Err = err
	if fireErr := c.fire(s, EventFailed); fireErr != nil {
		c.log.Error().Err(fireErr).Msg("session left in a live state")
	}
	c.report(ctx, err)
	return err
}

func (c *Controller) report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	kind := apperrors.KindOf(err)
	sendErr := c.deps.Transport.Send(context.WithoutCancel(ctx), message.ErrorNotice{
		Kind:    string(kind),
		Message: apperrors.MessageOf(err),
	})
	if sendErr != nil {
		c.log.Debug().Err(sendErr).Msg("could not report error to driver")
	}
}

func (c *Controller) status(ctx context.Context, stage, text string) {
	_ = c.deps.Transport.Send(ctx, message.StatusNotice{Stage: stage, Text: text})
}

// isCancel reports a user cancel: Ctrl-C, EOF on a terminal, or the
// session context being cancelled.
func isCancel(ctx context.Context, err error) bool {
	if apperrors.KindOf(err) == apperrors.Cancelled {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
