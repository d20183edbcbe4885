// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	apperrors "precinct/cli/internal/errors"
)

func TestFormatFailureMasksSecrets(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	err := apperrors.Wrap(apperrors.Connection, "cannot connect",
		errors.New("dial postgres://app:hunter2@db:5432/x: connection refused"))
	out := FormatFailure(err)

	assert.Contains(t, out, "Database Connection Failed: Connection refused by the database")
	assert.Contains(t, out, "postgres://*:*@db:5432/x")
	assert.NotContains(t, out, "hunter2")
}

func TestFormatFailurePerKind(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	assert.Contains(t, FormatFailure(apperrors.New(apperrors.DiagnosticTimeout, "exceeded 30s")), "Diagnostics Timed Out")
	assert.Contains(t, FormatFailure(apperrors.New(apperrors.Protocol, "bad record")), "Protocol Error")
	assert.Contains(t, FormatFailure(errors.New("boom")), "Unexpected Error")
}

func TestPresentFailureWritesToWriter(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	var out bytes.Buffer
	PresentFailure(&out, apperrors.New(apperrors.ClarificationLimit, "intent corrected 4 times"))
	assert.True(t, strings.HasPrefix(out.String(), "\nToo Many Corrections"))
	assert.Contains(t, out.String(), "intent corrected 4 times")
	assert.Contains(t, out.String(), "Raise --max-clarifications")
}
