// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
)

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeMessages struct {
	req  anthropic.MessagesRequest
	resp anthropic.MessagesResponse
	err  error
}

func (f *fakeMessages) CreateMessages(_ context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestResolveProvider(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ResolveProvider("auto", "gpt-4o"))
	assert.Equal(t, ProviderAnthropic, ResolveProvider("auto", "claude-sonnet-4-5"))
	assert.Equal(t, ProviderOpenAI, ResolveProvider("openai", "claude-compatible-proxy"))
	assert.Equal(t, ProviderAnthropic, ResolveProvider("anthropic", "whatever"))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{Model: "gpt-4o"})
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))

	c, err := New(Options{Model: "claude-3-5-haiku", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, c.Name())
}

func TestOpenAIComplete(t *testing.T) {
	api := &fakeChat{resp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: "  {\"intent\":\"x\"}\n"}},
	}}}
	c := &OpenAI{api: api, model: "gpt-4o"}

	text, err := c.Complete(context.Background(), Prompt{System: "sys", User: "usr", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"x"}`, text)
	assert.Equal(t, "gpt-4o", api.req.Model)
	require.Len(t, api.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.req.Messages[0].Role)
	assert.Equal(t, "usr", api.req.Messages[1].Content)
	require.NotNil(t, api.req.ResponseFormat)

	api.resp = openai.ChatCompletionResponse{}
	_, err = c.Complete(context.Background(), Prompt{})
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(err))
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, apperrors.ModelTransient},
		{"server", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, apperrors.ModelTransient},
		{"auth", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, apperrors.Config},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "no such model"}, apperrors.Optimization},
		{"network", errors.New("dial tcp 1.2.3.4:443: connect: connection refused"), apperrors.ModelTransient},
		{"deadline", context.DeadlineExceeded, apperrors.ModelTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &OpenAI{api: &fakeChat{err: tt.err}, model: "gpt-4o"}
			_, err := c.Complete(context.Background(), Prompt{})
			assert.Equal(t, tt.want, apperrors.KindOf(err))
		})
	}
}

func TestAnthropicComplete(t *testing.T) {
	text := `Here you go: {"query":"SELECT 1","explanation":"trivial"}`
	api := &fakeMessages{resp: anthropic.MessagesResponse{Content: []anthropic.MessageContent{
		{Type: "text", Text: &text},
	}}}
	c := &Anthropic{api: api, model: "claude-3-5-haiku"}

	got, err := c.Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, text, got)
	assert.Equal(t, "sys", api.req.System)
	assert.Equal(t, anthropic.Model("claude-3-5-haiku"), api.req.Model)

	api.err = &anthropic.RequestError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
	_, err = c.Complete(context.Background(), Prompt{})
	assert.Equal(t, apperrors.ModelTransient, apperrors.KindOf(err))
}

func TestRetryingClientRetriesTransient(t *testing.T) {
	calls := 0
	inner := ClientFunc(func(context.Context, Prompt) (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.New(apperrors.ModelTransient, "rate limited")
		}
		return "ok", nil
	})
	var observed []apperrors.Kind
	c := NewRetrying(inner, 3, time.Second, WithObserver(func(_ string, k apperrors.Kind) { observed = append(observed, k) }))
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error { delays = append(delays, d); return nil }

	text, err := c.Complete(context.Background(), Prompt{Component: "intent"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, delays)
	assert.Equal(t, []apperrors.Kind{apperrors.ModelTransient, apperrors.ModelTransient, ""}, observed)
}

func TestRetryingClientGivesUp(t *testing.T) {
	calls := 0
	inner := ClientFunc(func(context.Context, Prompt) (string, error) {
		calls++
		return "", apperrors.New(apperrors.ModelTransient, "down")
	})
	c := NewRetrying(inner, 2, 0)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	_, err := c.Complete(context.Background(), Prompt{})
	assert.Equal(t, apperrors.ModelTransient, apperrors.KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestRetryingClientDoesNotRetryOthers(t *testing.T) {
	calls := 0
	inner := ClientFunc(func(context.Context, Prompt) (string, error) {
		calls++
		return "", apperrors.New(apperrors.Config, "bad key")
	})
	_, err := NewRetrying(inner, 5, 0).Complete(context.Background(), Prompt{})
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestRetryingClientAttemptTimeout(t *testing.T) {
	inner := ClientFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewRetrying(inner, 0, 10*time.Millisecond)
	_, err := c.Complete(context.Background(), Prompt{})
	assert.Equal(t, apperrors.ModelTransient, apperrors.KindOf(err))
}

type draft struct {
	Intent string `json:"intent"`
}

func (d *draft) Validate() error {
	if d.Intent == "" {
		return errors.New("intent is empty")
	}
	return nil
}

func TestDecode(t *testing.T) {
	r := Decode[draft]("```json\n{\"intent\": \"count orders\"}\n```")
	require.True(t, r.IsOk())
	assert.Equal(t, "count orders", r.Value.Intent)

	r = Decode[draft](`{"intent": ""}`)
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(r.Err))

	r = Decode[draft]("not json at all")
	assert.False(t, r.IsOk())
	assert.Equal(t, apperrors.ModelOutput, apperrors.KindOf(r.Err))
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Contains(t, p.Intent, "<query>")
	assert.Contains(t, p.Optimize, "<validation_error>")

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimize: custom\n"), 0o600))
	o, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", o.Optimize)
	assert.Equal(t, p.Intent, o.Intent)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))
}
