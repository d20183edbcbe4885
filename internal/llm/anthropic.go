// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	apperrors "precinct/cli/internal/errors"
)

const anthropicMaxTokens = 2000

type messagesAPI interface {
	CreateMessages(ctx context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	api   messagesAPI
	model string
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(opts Options) *Anthropic {
	var copts []anthropic.ClientOption
	if opts.BaseURL != "" {
		copts = append(copts, anthropic.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	return &Anthropic{api: anthropic.NewClient(opts.APIKey, copts...), model: opts.Model}
}

func (c *Anthropic) Name() string { return ProviderAnthropic }

// Complete sends p and returns the first text block of the reply. The
// Messages API has no JSON mode, so JSON prompts must ask for it in text.
func (c *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	temperature := float32(0.1)
	resp, err := c.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      p.System,
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(p.User),
		},
	})
	if err != nil {
		return "", classify(ctx, ProviderAnthropic, err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			if text := strings.TrimSpace(*block.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", apperrors.New(apperrors.ModelOutput, "anthropic returned no text")
}
