// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

// CallObserver is notified after every attempt with the component and the
// attempt's error kind ("" on success).
type CallObserver func(component string, kind apperrors.Kind)

// RetryingClient retries model_transient failures of an inner Client with
// exponential backoff. Each attempt gets its own timeout.
type RetryingClient struct {
	inner     Client
	retries   int
	timeout   time.Duration
	baseDelay time.Duration
	maxDelay  time.Duration
	log       zerolog.Logger
	observe   CallObserver
	sleep     func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a RetryingClient.
type RetryOption func(*RetryingClient)

// WithObserver registers an observer for every attempt.
func WithObserver(o CallObserver) RetryOption {
	return func(c *RetryingClient) { c.observe = o }
}

// WithBackoff overrides the backoff delays.
func WithBackoff(base, max time.Duration) RetryOption {
	return func(c *RetryingClient) { c.baseDelay, c.maxDelay = base, max }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) RetryOption {
	return func(c *RetryingClient) { c.log = log }
}

// NewRetrying wraps inner. retries is the number of extra attempts after
// the first; timeout bounds each attempt and is disabled when zero.
func NewRetrying(inner Client, retries int, timeout time.Duration, opts ...RetryOption) *RetryingClient {
	c := &RetryingClient{
		inner:     inner,
		retries:   max(retries, 0),
		timeout:   timeout,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		log:       zerolog.Nop(),
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RetryingClient) Name() string { return c.inner.Name() }

// Complete calls the inner client until it succeeds, fails with a
// non-transient error or the retry budget is spent.
func (c *RetryingClient) Complete(ctx context.Context, p Prompt) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.log.Debug().Str("component", p.Component).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying model call")
			if err := c.sleep(ctx, delay); err != nil {
				return "", apperrors.Wrap(apperrors.Cancelled, "model call cancelled", err)
			}
		}
		text, err := c.attempt(ctx, p)
		if c.observe != nil {
			c.observe(p.Component, apperrors.KindOf(err))
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
		if apperrors.KindOf(err) != apperrors.ModelTransient {
			return "", err
		}
		c.log.Warn().Err(err).Str("component", p.Component).Int("attempt", attempt+1).Msg("transient model failure")
	}
	return "", lastErr
}

func (c *RetryingClient) attempt(ctx context.Context, p Prompt) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	text, err := c.inner.Complete(callCtx, p)
	if err != nil && ctx.Err() != nil {
		return "", apperrors.Wrap(apperrors.Cancelled, "model call cancelled", ctx.Err())
	}
	if err != nil && callCtx.Err() != nil && apperrors.KindOf(err) != apperrors.ModelTransient {
		return "", apperrors.Wrap(apperrors.ModelTransient, "model call timed out", err)
	}
	return text, err
}

func (c *RetryingClient) backoff(attempt int) time.Duration {
	d := c.baseDelay << (attempt - 1)
	if d <= 0 || d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
