// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package transport carries the optimization dialogue between a session and
// its driver. Two implementations share the message vocabulary: an
// interactive text transport for people at a terminal and a JSON-lines
// transport for editors and other programs. A session picks one at startup
// and never switches.
package transport

import (
	"context"
	"errors"
	"io"

	"precinct/cli/internal/transport/message"
)

// Transport represents the channel to whoever drives a session.
type Transport interface {
	// Send renders one outbound message.
	Send(ctx context.Context, msg message.Message) error
	// AskIntent sends req and blocks for the reply.
	AskIntent(ctx context.Context, req message.IntentRequest) (message.IntentReply, error)
	// AskAction sends req and blocks for the reply.
	AskAction(ctx context.Context, req message.ActionRequest) (message.ActionReply, error)
	// Interactive reports whether a person is on the other end.
	Interactive() bool
}

// LineReader yields one line of input per call, without the line break.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// ErrInterrupted is returned by a LineReader when the user pressed Ctrl-C.
var ErrInterrupted = errors.New("interrupted")

type lineResult struct {
	line string
	err  error
}

// readLine reads one line, returning early if ctx is cancelled. A read that
// is abandoned this way completes in the background and is discarded.
func readLine(ctx context.Context, r LineReader, prompt string) (string, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := r.ReadLine(prompt)
		ch <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

// isEOF reports a closed input stream.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
