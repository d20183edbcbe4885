// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"encoding/json"
	"errors"

	apperrors "precinct/cli/internal/errors"
)

// Result is the outcome of turning model text into a validated value.
// Exactly one of Value and Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a validated value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a validation failure.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.Err == nil }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }

// Validatable is implemented by decoded model responses that can check
// their own required fields.
type Validatable interface {
	Validate() error
}

// Decode parses the JSON object in text into T and validates it when T
// implements Validatable. Failures carry kind model_output.
func Decode[T any](text string) Result[T] {
	var v T
	if err := json.Unmarshal([]byte(extractJSON(text)), &v); err != nil {
		return Fail[T](apperrors.Wrap(apperrors.ModelOutput, "model response is not valid JSON", err))
	}
	if val, ok := any(&v).(Validatable); ok {
		if err := val.Validate(); err != nil {
			var e *apperrors.E
			if errors.As(err, &e) {
				return Fail[T](err)
			}
			return Fail[T](apperrors.Wrap(apperrors.ModelOutput, "model response is incomplete", err))
		}
	}
	return Ok(v)
}
