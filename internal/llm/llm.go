// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm is the language-model collaborator. A Client takes a system
// and user prompt and returns the model's text. Provider failures are
// classified into model_transient (rate limits, network, 5xx), which the
// RetryingClient retries with backoff, and everything else, which is not.
package llm

import (
	"context"
	"fmt"
	"strings"

	apperrors "precinct/cli/internal/errors"
)

// Prompt is one model request.
type Prompt struct {
	// Component names the caller for logs and metrics, e.g. "intent".
	Component string
	System    string
	User      string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Client is a language-model backend.
type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, p Prompt) (string, error)

func (f ClientFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }
func (f ClientFunc) Name() string                                            { return "func" }

const (
	ProviderAuto      = "auto"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Options selects and configures a provider.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// ResolveProvider returns the provider for model. With "auto", claude-*
// models go to Anthropic and everything else to OpenAI.
func ResolveProvider(provider, model string) string {
	switch provider {
	case ProviderOpenAI, ProviderAnthropic:
		return provider
	}
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// New builds the client for opts.
func New(opts Options) (Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, apperrors.New(apperrors.Config, "no API key for the language model")
	}
	switch p := ResolveProvider(opts.Provider, opts.Model); p {
	case ProviderAnthropic:
		return NewAnthropic(opts), nil
	case ProviderOpenAI:
		return NewOpenAI(opts), nil
	default:
		return nil, apperrors.New(apperrors.Config, fmt.Sprintf("unknown provider %q", p))
	}
}

// extractJSON returns the outermost JSON object in s. Models sometimes wrap
// their answer in prose or a code fence.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
