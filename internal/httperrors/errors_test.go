// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), Timeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.invalid"}, DNS},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, Refused},
		{"tls", errors.New("tls: failed to verify certificate"), TLS},
		{"rate limit", errors.New("error, status code: 429, message: Rate limit reached"), RateLimited},
		{"server", errors.New("status code: 503 service unavailable"), Server},
		{"other", errors.New("invalid api key"), Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestTransience(t *testing.T) {
	assert.True(t, IsTransient(errors.New("429 Too Many Requests")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("invalid api key")))

	assert.True(t, StatusTransient(429))
	assert.True(t, StatusTransient(502))
	assert.False(t, StatusTransient(400))
	assert.False(t, StatusTransient(401))
}
