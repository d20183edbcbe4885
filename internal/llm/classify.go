// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/httperrors"
)

// classify maps a provider error onto the error taxonomy.
func classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.Cancelled, "model call cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ModelTransient, provider+" did not answer in time", err)
	}

	if status := statusOf(err); status != 0 {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return apperrors.Wrap(apperrors.Config, provider+" rejected the API key", err)
		case httperrors.StatusTransient(status):
			return apperrors.Wrap(apperrors.ModelTransient, fmt.Sprintf("%s returned HTTP %d", provider, status), err)
		default:
			return apperrors.Wrap(apperrors.Optimization, fmt.Sprintf("%s rejected the request (HTTP %d)", provider, status), err)
		}
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsRateLimitErr() || apiErr.IsOverloadedErr() || apiErr.IsApiErr() {
			return apperrors.Wrap(apperrors.ModelTransient, provider+" is busy", err)
		}
		if apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr() {
			return apperrors.Wrap(apperrors.Config, provider+" rejected the API key", err)
		}
		return apperrors.Wrap(apperrors.Optimization, provider+" rejected the request", err)
	}

	if httperrors.IsTransient(err) {
		return apperrors.Wrap(apperrors.ModelTransient, "cannot reach "+provider, err)
	}
	return apperrors.Wrap(apperrors.Optimization, provider+" request failed", err)
}

// statusOf returns the HTTP status carried by a provider error, or 0.
func statusOf(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var anReq *anthropic.RequestError
	if errors.As(err, &anReq) {
		return anReq.StatusCode
	}
	return 0
}
