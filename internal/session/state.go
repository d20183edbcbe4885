// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import "fmt"

// State is the position of a session in the dialogue.
type State string

const (
	StateInit                       State = "init"
	StateAwaitingIntentConfirmation State = "awaiting_intent_confirmation"
	StateOptimizing                 State = "optimizing"
	StateAwaitingAction             State = "awaiting_action"
	StateDone                       State = "done"
)

// Outcome is how a finished session ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeRun       Outcome = "run"
	OutcomeCopy      Outcome = "copy"
	OutcomeWrite     Outcome = "write"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Event drives a transition.
type Event string

const (
	EventReady          Event = "schema_and_plan_ready"
	EventAccept         Event = "accept"
	EventCorrection     Event = "correction"
	EventCancel         Event = "cancel"
	EventOptimized      Event = "optimization_produced"
	EventOptimizeFailed Event = "optimization_failed"
	EventRun            Event = "run"
	EventCopy           Event = "copy"
	EventWrite          Event = "write"
	// EventFailed is an unrecoverable error in any live state.
	EventFailed Event = "failed"
	// EventInterrupted is a cancellation of the session context outside a
	// reply pause, e.g. Ctrl-C during diagnostics.
	EventInterrupted Event = "interrupted"
)

type target struct {
	state   State
	outcome Outcome
}

var transitions = map[State]map[Event]target{
	StateInit: {
		EventReady:       {StateAwaitingIntentConfirmation, OutcomeNone},
		EventFailed:      {StateDone, OutcomeFailed},
		EventInterrupted: {StateDone, OutcomeCancelled},
	},
	StateAwaitingIntentConfirmation: {
		EventAccept:     {StateOptimizing, OutcomeNone},
		EventCorrection: {StateAwaitingIntentConfirmation, OutcomeNone},
		EventCancel:     {StateDone, OutcomeCancelled},
		EventFailed:     {StateDone, OutcomeFailed},
	},
	StateOptimizing: {
		EventOptimized:      {StateAwaitingAction, OutcomeNone},
		EventOptimizeFailed: {StateDone, OutcomeFailed},
		EventFailed:         {StateDone, OutcomeFailed},
		EventInterrupted:    {StateDone, OutcomeCancelled},
	},
	StateAwaitingAction: {
		EventRun:    {StateDone, OutcomeRun},
		EventCopy:   {StateDone, OutcomeCopy},
		EventWrite:  {StateDone, OutcomeWrite},
		EventCancel: {StateDone, OutcomeCancelled},
		EventFailed: {StateDone, OutcomeFailed},
	},
}

// next returns the state and outcome ev leads to from s. Done has no
// outgoing transitions.
func next(s State, ev Event) (State, Outcome, error) {
	t, ok := transitions[s][ev]
	if !ok {
		return s, OutcomeNone, fmt.Errorf("no transition from %s on %s", s, ev)
	}
	return t.state, t.outcome, nil
}
