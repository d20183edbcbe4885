// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies network failures seen while talking to the
// database or a language-model API, and explains them in plain words.
package httperrors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class is a coarse category of network failure.
type Class int

const (
	Other Class = iota
	Timeout
	DNS
	Refused
	TLS
	Server
	RateLimited
)

func (c Class) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case DNS:
		return "dns"
	case Refused:
		return "connection_refused"
	case TLS:
		return "tls"
	case Server:
		return "server"
	case RateLimited:
		return "rate_limited"
	}
	return "other"
}

// Classify inspects err for a known network failure shape.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Other
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return Refused
	case isSSLError(err):
		return TLS
	case isRateLimit(err.Error()):
		return RateLimited
	case isServerError(err.Error()):
		return Server
	}
	return Other
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	switch Classify(err) {
	case Timeout, DNS, Refused, Server, RateLimited:
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// StatusTransient reports whether an HTTP status code is worth retrying.
func StatusTransient(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// isSSLError checks if the error is an SSL/TLS error.
func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "ssl") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

func isRateLimit(errStr string) bool {
	lower := strings.ToLower(errStr)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "overloaded")
}

// isServerError checks if the error indicates a server-side problem (5xx errors).
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	return strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout")
}

// Explain returns a headline and troubleshooting hints for a failure class.
// target names what was being contacted, e.g. "the database".
func Explain(c Class, target string) (headline string, hints []string) {
	switch c {
	case Timeout:
		return "Timed out waiting for " + target, []string{
			"The server took too long to respond",
			"Slow or unstable network connection",
		}
	case DNS:
		return "Cannot resolve the address of " + target, []string{
			"Check the host name",
			"Check your DNS settings and network connection",
		}
	case Refused:
		return "Connection refused by " + target, []string{
			"The server is not running or not listening on that port",
			"A firewall is blocking the connection",
		}
	case TLS:
		return "Secure connection to " + target + " failed", []string{
			"Certificate problem or sslmode mismatch",
			"A proxy is interfering with TLS",
			"Your system clock is wrong",
		}
	case RateLimited:
		return target + " is rate limiting requests", []string{
			"Wait a moment and try again",
			"Check the usage limits of your API key",
		}
	case Server:
		return target + " returned a server error", []string{
			"The service may be degraded; try again in a few minutes",
		}
	}
	return "Could not reach " + target, []string{"Check your network connection and settings"}
}
