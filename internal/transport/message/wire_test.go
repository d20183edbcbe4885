// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
)

func TestIntentReplyRoundTrip(t *testing.T) {
	const draft = "Count orders per customer in the last week."
	replies := []IntentReply{
		{Accepted: true},
		{Correction: "Only count shipped orders."},
		{Cancelled: true},
	}
	for _, want := range replies {
		line, err := EncodeIntentReply(want, draft)
		require.NoError(t, err)
		got, err := DecodeIntentReply(line, draft)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(line))
	}
}

func TestActionReplyRoundTrip(t *testing.T) {
	req := ActionRequest{Actions: []Action{ActionRun, ActionCopy, ActionCancel}}
	for _, a := range req.Actions {
		line, err := EncodeActionReply(ActionReply{Action: a})
		require.NoError(t, err)
		got, err := DecodeActionReply(line, req)
		require.NoError(t, err)
		assert.Equal(t, a, got.Action)
	}
}

func TestDecodeProtocolErrors(t *testing.T) {
	req := ActionRequest{Actions: []Action{ActionRun, ActionCancel}}
	tests := []struct {
		name   string
		decode func() error
	}{
		{"missing field", func() error { _, err := DecodeIntentReply([]byte(`{"goal":"x"}`), "d"); return err }},
		{"malformed json", func() error { _, err := DecodeIntentReply([]byte(`{"intent":`), "d"); return err }},
		{"empty line", func() error { _, err := DecodeIntentReply([]byte("  "), "d"); return err }},
		{"empty correction", func() error { _, err := DecodeIntentReply([]byte(`{"intent":"  "}`), "d"); return err }},
		{"both fields", func() error { _, err := DecodeIntentReply([]byte(`{"intent":"d","action":"cancel"}`), "d"); return err }},
		{"run while confirming intent", func() error { _, err := DecodeIntentReply([]byte(`{"action":"run"}`), "d"); return err }},
		{"intent at action pause", func() error { _, err := DecodeActionReply([]byte(`{"intent":"d"}`), req); return err }},
		{"action not offered", func() error { _, err := DecodeActionReply([]byte(`{"action":"copy"}`), req); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode()
			require.Error(t, err)
			assert.Equal(t, apperrors.Protocol, apperrors.KindOf(err))
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	b, err := Encode(IntentRequest{Query: "SELECT 1", Draft: "Return one."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"intent","query":"SELECT 1","intent":"Return one."}`, string(b))

	b, err = Encode(OptimizationNotice{OptimizedQuery: "SELECT 1", Explanation: "already optimal"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"optimization","optimized_query":"SELECT 1","explanation":"already optimal"}`, string(b))

	b, err = Encode(ActionRequest{Actions: []Action{ActionRun, ActionCopy, ActionCancel}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"action","actions":["run","copy","cancel"]}`, string(b))

	b, err = Encode(ErrorNotice{Kind: "protocol", Message: "bad"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","kind":"protocol","message":"bad"}`, string(b))

	b, err = Encode(ResultNotice{Columns: []string{"n"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","columns":["n"],"rows":[]}`, string(b))
}
