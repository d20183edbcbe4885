// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package optimizer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/llm"
)

type scriptedClient struct {
	replies []string
	prompts []string
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Complete(_ context.Context, p llm.Prompt) (string, error) {
	s.prompts = append(s.prompts, p.User)
	out := s.replies[0]
	s.replies = s.replies[1:]
	return out, nil
}

type validatorFunc func(ctx context.Context, sql string) error

func (f validatorFunc) Validate(ctx context.Context, sql string) error { return f(ctx, sql) }

var input = Input{Query: "SELECT * FROM a WHERE lower(name) = 'x'", Intent: "find x", Schema: "a\n", Plan: "-> Seq Scan on a"}

func TestOptimizeFirstAttempt(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"query":"SELECT * FROM a WHERE name = 'x';","explanation":"sargable"}`}}
	res, err := New(client, "sys", nil, 3, zerolog.Nop()).Optimize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM a WHERE name = 'x';", res.Query)
	assert.Equal(t, "sargable", res.Explanation)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Valid)
	assert.Contains(t, client.prompts[0], "<intent>find x</intent>")
	assert.NotContains(t, client.prompts[0], "<validation_error>")
}

func TestOptimizeRetriesUnparsableQuery(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"query":"SELECT * FROM a WHERE","explanation":"oops"}`,
		`{"query":"SELECT * FROM a WHERE name = 'x'","explanation":"fixed"}`,
	}}
	var attempts []bool
	o := New(client, "sys", nil, 2, zerolog.Nop())
	o.OnAttempt = func(valid bool) { attempts = append(attempts, valid) }

	res, err := o.Optimize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []bool{false, true}, attempts)
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "<previous_attempt>")
	assert.Contains(t, client.prompts[1], "<validation_error>")
}

func TestOptimizeExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"query":"SELEC oops","explanation":"a"}`,
		`not even json`,
	}}
	_, err := New(client, "sys", nil, 2, zerolog.Nop()).Optimize(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(err))
	assert.Len(t, client.prompts, 2)
}

func TestOptimizeServerValidation(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"query":"SELECT * FROM nope","explanation":"a"}`,
		`{"query":"SELECT * FROM a","explanation":"b"}`,
	}}
	v := validatorFunc(func(_ context.Context, sql string) error {
		if sql == "SELECT * FROM nope" {
			return apperrors.New(apperrors.PlanExecution, `relation "nope" does not exist`)
		}
		return nil
	})
	res, err := New(client, "sys", v, 3, zerolog.Nop()).Optimize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM a", res.Query)
	assert.Contains(t, client.prompts[1], `relation "nope" does not exist`)
}

func TestOptimizeStopsOnConnectionLoss(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"query":"SELECT 1","explanation":"a"}`}}
	v := validatorFunc(func(context.Context, string) error {
		return apperrors.New(apperrors.Connection, "conn closed")
	})
	_, err := New(client, "sys", v, 3, zerolog.Nop()).Optimize(context.Background(), input)
	assert.Equal(t, apperrors.Connection, apperrors.KindOf(err))
	assert.Len(t, client.prompts, 1)
}

func TestOptimizeStopsOnModelError(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		return "", apperrors.New(apperrors.ModelTransient, "still rate limited")
	})
	_, err := New(client, "sys", nil, 3, zerolog.Nop()).Optimize(context.Background(), input)
	assert.Equal(t, apperrors.ModelTransient, apperrors.KindOf(err))
}

func TestOptimizeRetriesEmptyModelReply(t *testing.T) {
	calls := 0
	var prompts []string
	client := llm.ClientFunc(func(_ context.Context, p llm.Prompt) (string, error) {
		calls++
		prompts = append(prompts, p.User)
		if calls == 1 {
			return "", apperrors.New(apperrors.ModelOutput, "openai returned an empty message")
		}
		return `{"query":"SELECT * FROM a WHERE name = 'x'","explanation":"sargable"}`, nil
	})
	var attempts []bool
	o := New(client, "sys", nil, 3, zerolog.Nop())
	o.OnAttempt = func(valid bool) { attempts = append(attempts, valid) }

	res, err := o.Optimize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []bool{false, true}, attempts)
	assert.Contains(t, prompts[1], "<validation_error>openai returned an empty message</validation_error>")
	assert.NotContains(t, prompts[1], "<previous_attempt>")
}

func TestOptimizeEmptyRepliesExhaustAttempts(t *testing.T) {
	calls := 0
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		calls++
		return "", apperrors.New(apperrors.ModelOutput, "anthropic returned no text")
	})
	_, err := New(client, "sys", nil, 3, zerolog.Nop()).Optimize(context.Background(), input)
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(err))
	assert.Equal(t, 3, calls)
}
