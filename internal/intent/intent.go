// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package intent drafts a plain-language statement of what a query is for.
// Drafts are repeated under user correction; every rejected draft and every
// correction is kept and fed back into the next prompt.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/llm"
)

// DefaultAttempts bounds how often a malformed draft is requested again.
const DefaultAttempts = 2

// Record is the intent state of one session.
type Record struct {
	// Current is the latest draft, or the accepted intent once Final is set.
	Current   string
	Structure string
	// History holds superseded drafts, oldest first.
	History []string
	// Clarifications holds the user's corrections, oldest first. Entry i
	// was given in reply to History[i].
	Clarifications []string
	Final          bool
}

// Correct supersedes the current draft with a user correction.
func (r *Record) Correct(correction string) {
	r.History = append(r.History, r.Current)
	r.Clarifications = append(r.Clarifications, correction)
	r.Current = ""
	r.Structure = ""
}

// Accept finalizes the current draft. It is not undone.
func (r *Record) Accept() { r.Final = true }

// Rounds is the number of corrections so far.
func (r *Record) Rounds() int { return len(r.Clarifications) }

type draft struct {
	Structure string `json:"structure"`
	Intent    string `json:"intent"`
}

func (d *draft) Validate() error {
	if strings.TrimSpace(d.Intent) == "" {
		return errors.New(`field "intent" is empty`)
	}
	return nil
}

// Resolver drafts intents with a language model.
type Resolver struct {
	client   llm.Client
	system   string
	attempts int
	log      zerolog.Logger
}

// NewResolver creates a Resolver. system is the system prompt.
func NewResolver(client llm.Client, system string, log zerolog.Logger) *Resolver {
	return &Resolver{
		client:   client,
		system:   system,
		attempts: DefaultAttempts,
		log:      log.With().Str("component", "intent").Logger(),
	}
}

// Draft asks the model for a new draft of rec and stores it as rec.Current.
// query is the statement; schema is a compact summary of its tables.
func (r *Resolver) Draft(ctx context.Context, query, schema string, rec *Record) (string, error) {
	if rec.Final {
		return "", apperrors.New(apperrors.Unknown, "intent already accepted")
	}
	prompt := llm.Prompt{
		Component: "intent",
		System:    r.system,
		User:      buildPrompt(query, schema, rec),
		JSON:      true,
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		text, err := r.client.Complete(ctx, prompt)
		if err != nil {
			if apperrors.KindOf(err) != apperrors.ModelOutput {
				return "", err
			}
			lastErr = err
			r.log.Warn().Err(err).Int("attempt", attempt).Msg("unusable model reply")
			continue
		}
		res := llm.Decode[draft](text)
		if res.IsOk() {
			rec.Current = strings.TrimSpace(res.Value.Intent)
			rec.Structure = strings.TrimSpace(res.Value.Structure)
			r.log.Debug().Int("round", rec.Rounds()).Msg("intent drafted")
			return rec.Current, nil
		}
		lastErr = res.Err
		r.log.Warn().Err(res.Err).Int("attempt", attempt).Msg("malformed intent draft")
	}
	return "", apperrors.Wrap(apperrors.ModelOutput,
		fmt.Sprintf("model returned no usable intent after %d attempts", r.attempts), lastErr)
}

func buildPrompt(query, schema string, rec *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<query>%s</query>\n", query)
	fmt.Fprintf(&b, "<schema>\n%s</schema>\n", schema)
	for i, rejected := range rec.History {
		fmt.Fprintf(&b, "<rejected>%s</rejected>\n", rejected)
		if i < len(rec.Clarifications) {
			fmt.Fprintf(&b, "<clarification>%s</clarification>\n", rec.Clarifications[i])
		}
	}
	return b.String()
}
