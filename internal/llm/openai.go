// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "precinct/cli/internal/errors"
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI talks to the Chat Completions API or a compatible endpoint.
type OpenAI struct {
	api   chatAPI
	model string
}

// NewOpenAI creates an OpenAI client. A BaseURL selects an
// OpenAI-compatible endpoint.
func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	return &OpenAI{api: openai.NewClientWithConfig(cfg), model: opts.Model}
}

func (c *OpenAI) Name() string { return ProviderOpenAI }

// Complete sends p as a system and a user message.
func (c *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	}
	if p.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ModelOutput, "openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", apperrors.New(apperrors.ModelOutput, "openai returned an empty message")
	}
	return text, nil
}
