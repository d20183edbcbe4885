// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "precinct/cli/internal/errors"
)

// Outbound JSON-line records. Every record carries "type".
type (
	intentRecord struct {
		Type   Type   `json:"type"`
		Query  string `json:"query"`
		Intent string `json:"intent"`
	}
	optimizationRecord struct {
		Type           Type   `json:"type"`
		OptimizedQuery string `json:"optimized_query"`
		Explanation    string `json:"explanation"`
	}
	actionRecord struct {
		Type    Type     `json:"type"`
		Actions []Action `json:"actions"`
	}
	errorRecord struct {
		Type    Type   `json:"type"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	statusRecord struct {
		Type  Type   `json:"type"`
		Stage string `json:"stage"`
		Text  string `json:"text,omitempty"`
	}
	resultRecord struct {
		Type         Type     `json:"type"`
		Columns      []string `json:"columns"`
		Rows         [][]any  `json:"rows"`
		RowsAffected int64    `json:"rows_affected,omitempty"`
		Truncated    bool     `json:"truncated,omitempty"`
	}
	doneRecord struct {
		Type    Type   `json:"type"`
		Outcome string `json:"outcome"`
		Query   string `json:"query,omitempty"`
	}
)

// inboundRecord is what a driver writes. Exactly one field must be set.
type inboundRecord struct {
	Intent *string `json:"intent,omitempty"`
	Action *string `json:"action,omitempty"`
}

// Encode renders msg as one JSON object without a trailing newline.
func Encode(msg Message) ([]byte, error) {
	var rec any
	switch m := msg.(type) {
	case IntentRequest:
		rec = intentRecord{Type: m.MessageType(), Query: m.Query, Intent: m.Draft}
	case OptimizationNotice:
		rec = optimizationRecord{Type: m.MessageType(), OptimizedQuery: m.OptimizedQuery, Explanation: m.Explanation}
	case ActionRequest:
		rec = actionRecord{Type: m.MessageType(), Actions: m.Actions}
	case ErrorNotice:
		rec = errorRecord{Type: m.MessageType(), Kind: m.Kind, Message: m.Message}
	case StatusNotice:
		rec = statusRecord{Type: m.MessageType(), Stage: m.Stage, Text: m.Text}
	case ResultNotice:
		rows := m.Rows
		if rows == nil {
			rows = [][]any{}
		}
		rec = resultRecord{Type: m.MessageType(), Columns: m.Columns, Rows: rows, RowsAffected: m.RowsAffected, Truncated: m.Truncated}
	case DoneNotice:
		rec = doneRecord{Type: m.MessageType(), Outcome: m.Outcome, Query: m.Query}
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}
	return json.Marshal(rec)
}

// EncodeIntentReply renders the record a driver sends to answer an
// IntentRequest carrying draft. Acceptance echoes the draft unchanged.
func EncodeIntentReply(reply IntentReply, draft string) ([]byte, error) {
	switch {
	case reply.Cancelled:
		a := string(ActionCancel)
		return json.Marshal(inboundRecord{Action: &a})
	case reply.Accepted:
		return json.Marshal(inboundRecord{Intent: &draft})
	default:
		c := reply.Correction
		return json.Marshal(inboundRecord{Intent: &c})
	}
}

// EncodeActionReply renders the record a driver sends to answer an ActionRequest.
func EncodeActionReply(reply ActionReply) ([]byte, error) {
	a := string(reply.Action)
	return json.Marshal(inboundRecord{Action: &a})
}

func decodeInbound(line []byte) (inboundRecord, error) {
	var rec inboundRecord
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return rec, apperrors.New(apperrors.Protocol, "empty record")
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, apperrors.Wrap(apperrors.Protocol, "malformed record", err)
	}
	if rec.Intent == nil && rec.Action == nil {
		return rec, apperrors.New(apperrors.Protocol, `record has neither "intent" nor "action"`)
	}
	if rec.Intent != nil && rec.Action != nil {
		return rec, apperrors.New(apperrors.Protocol, `record has both "intent" and "action"`)
	}
	return rec, nil
}

// DecodeIntentReply parses a driver's answer to an IntentRequest carrying
// draft. {"intent": draft} accepts, {"intent": other} corrects, and
// {"action": "accept"|"cancel"} is also understood.
func DecodeIntentReply(line []byte, draft string) (IntentReply, error) {
	rec, err := decodeInbound(line)
	if err != nil {
		return IntentReply{}, err
	}
	if rec.Action != nil {
		switch *rec.Action {
		case "accept":
			return IntentReply{Accepted: true}, nil
		case string(ActionCancel):
			return IntentReply{Cancelled: true}, nil
		}
		return IntentReply{}, apperrors.Newf(apperrors.Protocol, "action %q is not valid while confirming intent", *rec.Action)
	}
	text := *rec.Intent
	if text == draft {
		return IntentReply{Accepted: true}, nil
	}
	if len(bytes.TrimSpace([]byte(text))) == 0 {
		return IntentReply{}, apperrors.New(apperrors.Protocol, "empty intent correction")
	}
	return IntentReply{Correction: text}, nil
}

// DecodeActionReply parses a driver's answer to req.
func DecodeActionReply(line []byte, req ActionRequest) (ActionReply, error) {
	rec, err := decodeInbound(line)
	if err != nil {
		return ActionReply{}, err
	}
	if rec.Action == nil {
		return ActionReply{}, apperrors.New(apperrors.Protocol, `expected "action" record`)
	}
	a := Action(*rec.Action)
	if !req.Allows(a) {
		return ActionReply{}, apperrors.Newf(apperrors.Protocol, "action %q is not one of %v", a, req.Actions)
	}
	return ActionReply{Action: a}, nil
}
