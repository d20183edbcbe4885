// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package intent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/llm"
)

func TestDraftFeedsCorrectionsBack(t *testing.T) {
	var prompts []string
	replies := []string{
		`{"structure":"scan of orders","intent":"list all orders"}`,
		`{"structure":"scan of orders","intent":"list open orders"}`,
	}
	client := llm.ClientFunc(func(_ context.Context, p llm.Prompt) (string, error) {
		prompts = append(prompts, p.User)
		assert.True(t, p.JSON)
		assert.Equal(t, "intent", p.Component)
		out := replies[0]
		replies = replies[1:]
		return out, nil
	})
	r := NewResolver(client, "system", zerolog.Nop())
	rec := &Record{}

	got, err := r.Draft(context.Background(), "SELECT * FROM orders", "orders (public.orders, table)\n", rec)
	require.NoError(t, err)
	assert.Equal(t, "list all orders", got)
	assert.NotContains(t, prompts[0], "<rejected>")

	rec.Correct("only the open ones")
	assert.Equal(t, 1, rec.Rounds())
	got, err = r.Draft(context.Background(), "SELECT * FROM orders", "orders (public.orders, table)\n", rec)
	require.NoError(t, err)
	assert.Equal(t, "list open orders", got)
	assert.Equal(t, []string{"list all orders"}, rec.History)
	assert.Contains(t, prompts[1], "<rejected>list all orders</rejected>\n<clarification>only the open ones</clarification>")
}

func TestDraftRetriesMalformedOutput(t *testing.T) {
	calls := 0
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		calls++
		if calls == 1 {
			return "I think it lists orders", nil
		}
		return `{"intent":"list orders"}`, nil
	})
	got, err := NewResolver(client, "", zerolog.Nop()).Draft(context.Background(), "q", "", &Record{})
	require.NoError(t, err)
	assert.Equal(t, "list orders", got)
	assert.Equal(t, 2, calls)
}

func TestDraftGivesUpOnMalformedOutput(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		return `{"intent":""}`, nil
	})
	_, err := NewResolver(client, "", zerolog.Nop()).Draft(context.Background(), "q", "", &Record{})
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(err))
}

func TestDraftPassesModelErrorsThrough(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		return "", apperrors.New(apperrors.ModelTransient, "rate limited")
	})
	_, err := NewResolver(client, "", zerolog.Nop()).Draft(context.Background(), "q", "", &Record{})
	assert.Equal(t, apperrors.ModelTransient, apperrors.KindOf(err))
}

func TestAcceptedRecordIsNotRedrafted(t *testing.T) {
	rec := &Record{Current: "x"}
	rec.Accept()
	_, err := NewResolver(llm.ClientFunc(nil), "", zerolog.Nop()).Draft(context.Background(), "q", "", rec)
	require.Error(t, err)
	assert.Equal(t, "x", rec.Current)
}

func TestDraftRetriesEmptyModelReply(t *testing.T) {
	calls := 0
	client := llm.ClientFunc(func(context.Context, llm.Prompt) (string, error) {
		calls++
		if calls == 1 {
			return "", apperrors.New(apperrors.ModelOutput, "openai returned no choices")
		}
		return `{"structure":"select","intent":"list orders"}`, nil
	})
	got, err := NewResolver(client, "", zerolog.Nop()).Draft(context.Background(), "q", "", &Record{})
	require.NoError(t, err)
	assert.Equal(t, "list orders", got)
	assert.Equal(t, 2, calls)
}
