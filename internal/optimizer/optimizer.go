// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package optimizer asks the model for a faster rewrite of a query and
// checks that the rewrite is a well-formed statement. A rejected rewrite is
// requested again with the rejection reason, a bounded number of times.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/llm"
	"precinct/cli/internal/sqltext"
)

// DefaultAttempts is the number of model calls made before giving up.
const DefaultAttempts = 3

// Validator checks a statement without running it.
type Validator interface {
	Validate(ctx context.Context, sql string) error
}

// Input is everything the model sees.
type Input struct {
	Query  string
	Intent string
	Schema string
	Plan   string
}

// Result is an accepted rewrite.
type Result struct {
	Query       string
	Explanation string
	// Attempts is the number of model calls it took.
	Attempts int
	Valid    bool
}

type proposal struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

func (p *proposal) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Query) == "" {
		problems = append(problems, `field "query" is empty`)
	}
	if strings.TrimSpace(p.Explanation) == "" {
		problems = append(problems, `field "explanation" is empty`)
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Optimizer runs the validate-and-retry loop.
type Optimizer struct {
	client    llm.Client
	system    string
	validator Validator
	attempts  int
	log       zerolog.Logger
	// OnAttempt, when set, is called after each attempt with whether it
	// produced a valid rewrite.
	OnAttempt func(valid bool)
}

// New creates an Optimizer. validator may be nil, in which case only the
// local syntax check applies. attempts below 1 selects DefaultAttempts.
func New(client llm.Client, system string, validator Validator, attempts int, log zerolog.Logger) *Optimizer {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	return &Optimizer{
		client:    client,
		system:    system,
		validator: validator,
		attempts:  attempts,
		log:       log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize returns the first rewrite that passes validation. Malformed or
// empty model output uses up an attempt; other model failures end the loop
// at once.
func (o *Optimizer) Optimize(ctx context.Context, in Input) (Result, error) {
	var (
		previous string
		lastErr  error
	)
	for attempt := 1; attempt <= o.attempts; attempt++ {
		text, err := o.client.Complete(ctx, llm.Prompt{
			Component: "optimize",
			System:    o.system,
			User:      buildPrompt(in, previous, lastErr),
			JSON:      true,
		})
		if err != nil {
			if apperrors.KindOf(err) != apperrors.ModelOutput {
				return Result{}, err
			}
			if o.OnAttempt != nil {
				o.OnAttempt(false)
			}
			o.log.Warn().Err(err).Int("attempt", attempt).Msg("unusable model reply")
			previous, lastErr = "", err
			continue
		}

		res := o.check(ctx, text)
		if o.OnAttempt != nil {
			o.OnAttempt(res.IsOk())
		}
		if res.IsOk() {
			r := res.Value
			r.Attempts = attempt
			o.log.Debug().Int("attempt", attempt).Msg("rewrite accepted")
			return r, nil
		}
		switch apperrors.KindOf(res.Err) {
		case apperrors.Connection, apperrors.Cancelled:
			return Result{}, res.Err
		}
		o.log.Warn().Err(res.Err).Int("attempt", attempt).Msg("rewrite rejected")
		previous, lastErr = text, res.Err
	}
	return Result{}, apperrors.Wrap(apperrors.ModelOutput,
		fmt.Sprintf("model produced no valid rewrite in %d attempts", o.attempts), lastErr)
}

// check turns model text into a validated Result.
func (o *Optimizer) check(ctx context.Context, text string) llm.Result[Result] {
	decoded := llm.Decode[proposal](text)
	p, err := decoded.Unwrap()
	if err != nil {
		return llm.Fail[Result](err)
	}
	query := strings.TrimSpace(p.Query)
	if err := sqltext.CheckSyntax(query); err != nil {
		return llm.Fail[Result](apperrors.Wrap(apperrors.ModelOutput, "rewrite is not a well-formed statement", err))
	}
	if o.validator != nil {
		if err := o.validator.Validate(ctx, query); err != nil {
			return llm.Fail[Result](err)
		}
	}
	return llm.Ok(Result{Query: query, Explanation: strings.TrimSpace(p.Explanation), Valid: true})
}

func buildPrompt(in Input, previous string, rejection error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<query>%s</query>\n", in.Query)
	fmt.Fprintf(&b, "<intent>%s</intent>\n", in.Intent)
	fmt.Fprintf(&b, "<schema>\n%s</schema>\n", in.Schema)
	fmt.Fprintf(&b, "<plan>\n%s\n</plan>\n", in.Plan)
	if rejection != nil {
		if previous != "" {
			fmt.Fprintf(&b, "<previous_attempt>%s</previous_attempt>\n", previous)
		}
		fmt.Fprintf(&b, "<validation_error>%s</validation_error>\n", rejection.Error())
	}
	return b.String()
}
