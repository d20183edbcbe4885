// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/transport/message"
)

// JSONLines speaks one JSON object per line. Outbound records go to w, and
// every reply must be exactly one well-formed record read from r. Anything
// else is a fatal protocol error.
type JSONLines struct {
	mu  sync.Mutex
	w   io.Writer
	in  LineReader
	out []byte
}

// NewJSONLines builds a JSON-lines transport over r and w.
func NewJSONLines(r io.Reader, w io.Writer) *JSONLines {
	return &JSONLines{w: w, in: NewBufferedReader(r, nil)}
}

func (j *JSONLines) Interactive() bool { return false }

func (j *JSONLines) Send(_ context.Context, msg message.Message) error {
	b, err := message.Encode(msg)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.out = append(append(j.out[:0], b...), '\n')
	if _, err := j.w.Write(j.out); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (j *JSONLines) AskIntent(ctx context.Context, req message.IntentRequest) (message.IntentReply, error) {
	if err := j.Send(ctx, req); err != nil {
		return message.IntentReply{}, err
	}
	line, err := j.receive(ctx)
	if err != nil {
		return message.IntentReply{}, err
	}
	return message.DecodeIntentReply([]byte(line), req.Draft)
}

func (j *JSONLines) AskAction(ctx context.Context, req message.ActionRequest) (message.ActionReply, error) {
	if err := j.Send(ctx, req); err != nil {
		return message.ActionReply{}, err
	}
	line, err := j.receive(ctx)
	if err != nil {
		return message.ActionReply{}, err
	}
	return message.DecodeActionReply([]byte(line), req)
}

func (j *JSONLines) receive(ctx context.Context) (string, error) {
	line, err := readLine(ctx, j.in, "")
	switch {
	case err == nil:
		return line, nil
	case isEOF(err):
		return "", apperrors.New(apperrors.Protocol, "input closed while waiting for a reply")
	case ctx.Err() != nil:
		return "", apperrors.Wrap(apperrors.Cancelled, "session cancelled", err)
	default:
		return "", apperrors.Wrap(apperrors.Protocol, "read reply", err)
	}
}
