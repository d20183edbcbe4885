// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package message defines the protocol vocabulary exchanged between an
// optimization session and whoever drives it, a person at a terminal or an
// editor speaking JSON lines. The types are transport-agnostic; each
// transport decides how to render and parse them.
package message

// Type tags a message on the wire.
type Type string

const (
	TypeIntentRequest      Type = "intent"
	TypeOptimizationNotice Type = "optimization"
	TypeActionRequest      Type = "action"
	TypeErrorNotice        Type = "error"
	TypeResultNotice       Type = "result"
	TypeDoneNotice         Type = "done"
	TypeStatusNotice       Type = "status"
)

// Message is implemented by every outbound message.
type Message interface {
	MessageType() Type
}

// Action is a post-optimization choice.
type Action string

const (
	ActionRun    Action = "run"
	ActionCopy   Action = "copy"
	ActionWrite  Action = "write"
	ActionCancel Action = "cancel"
)

// IntentRequest asks the driver to confirm or correct a drafted intent.
type IntentRequest struct {
	Query string
	Draft string
}

// IntentReply answers an IntentRequest. Exactly one of Accepted, Cancelled
// or a non-empty Correction holds.
type IntentReply struct {
	Accepted   bool
	Cancelled  bool
	Correction string
}

// OptimizationNotice carries the proposed rewrite.
type OptimizationNotice struct {
	OptimizedQuery string
	Explanation    string
}

// ActionRequest asks the driver to pick one of Actions.
type ActionRequest struct {
	Actions []Action
}

// Allows reports whether a is one of the offered actions.
func (r ActionRequest) Allows(a Action) bool {
	for _, x := range r.Actions {
		if x == a {
			return true
		}
	}
	return false
}

// ActionReply answers an ActionRequest.
type ActionReply struct {
	Action Action
}

// ErrorNotice reports a session-ending failure.
type ErrorNotice struct {
	Kind    string
	Message string
}

// StatusNotice reports progress while no reply is expected, e.g. while
// diagnostics or the model are running.
type StatusNotice struct {
	Stage string
	Text  string
}

// ResultNotice carries the row preview of an executed rewrite.
type ResultNotice struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	Truncated    bool
}

// DoneNotice tells the driver the session has ended.
type DoneNotice struct {
	Outcome string
	// Query is the optimized query for outcomes the driver completes itself
	// (copy, write).
	Query string
}

func (IntentRequest) MessageType() Type      { return TypeIntentRequest }
func (OptimizationNotice) MessageType() Type { return TypeOptimizationNotice }
func (ActionRequest) MessageType() Type      { return TypeActionRequest }
func (ErrorNotice) MessageType() Type        { return TypeErrorNotice }
func (StatusNotice) MessageType() Type       { return TypeStatusNotice }
func (ResultNotice) MessageType() Type       { return TypeResultNotice }
func (DoneNotice) MessageType() Type         { return TypeDoneNotice }
