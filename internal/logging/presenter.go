// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/httperrors"
)

// FormatFailure explains a session-ending error: what happened, why it
// usually happens and what to do next. The result is styled for a terminal.
func FormatFailure(err error) string {
	kind := apperrors.KindOf(err)
	var b strings.Builder

	title, hints, next := describe(kind, err)
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
	b.WriteString("\n\n")
	if msg := apperrors.MessageOf(err); msg != "" {
		b.WriteString(Mask(msg))
		b.WriteString("\n")
	}
	if len(hints) > 0 {
		b.WriteString("\n")
		for _, h := range hints {
			b.WriteString("  • " + h + "\n")
		}
	}
	if next != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + next))
		b.WriteString("\n")
	}

	var inner *apperrors.E
	if errors.As(err, &inner) && inner.Err != nil {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(inner.Err.Error())))
		b.WriteString("\n")
	}
	return b.String()
}

func describe(kind apperrors.Kind, err error) (title string, hints []string, next string) {
	switch kind {
	case apperrors.Connection:
		headline, h := httperrors.Explain(httperrors.Classify(err), "the database")
		return "Database Connection Failed: " + headline, h, "Check --uri / --service or run 'precinct connect'"
	case apperrors.SchemaResolution:
		return "Unknown Table", []string{
			"A table named in the query does not exist in the connected database",
			"Check the search_path and schema qualification",
		}, "Fix the table name or connect to the right database"
	case apperrors.PlanExecution:
		return "Query Failed During Diagnostics", []string{
			"The database rejected the statement or it failed while running",
			"Nothing was changed: diagnostics always roll back",
		}, "Fix the query and try again"
	case apperrors.DiagnosticTimeout:
		return "Diagnostics Timed Out", []string{
			"The statement ran longer than the diagnostic time limit and was stopped",
			"Nothing was changed: the transaction was rolled back",
		}, "Raise --diagnostic-timeout or try a smaller query"
	case apperrors.ModelTransient:
		headline, h := httperrors.Explain(httperrors.Classify(err), "the language model API")
		return "Language Model Unavailable: " + headline, h, "Try again in a few moments"
	case apperrors.ModelOutput:
		return "Unusable Model Output", []string{
			"The model kept returning output that could not be parsed or validated",
		}, "Try again, or choose a different --model"
	case apperrors.Optimization:
		return "Optimization Failed", nil, "Try again, or choose a different --model"
	case apperrors.Protocol:
		return "Protocol Error", []string{
			"A reply from the driver was not a valid JSON record",
			`Replies look like {"intent": "..."} or {"action": "run"}`,
		}, ""
	case apperrors.ClarificationLimit:
		return "Too Many Corrections", []string{
			"The intent was corrected more times than allowed",
		}, "Raise --max-clarifications or restate the query"
	case apperrors.Config:
		return "Invalid Configuration", nil, "Run 'precinct --help' for usage"
	case apperrors.Cancelled:
		return "Cancelled", nil, ""
	}
	return "Unexpected Error", nil, ""
}

// PresentFailure writes FormatFailure(err) to w after a blank line.
func PresentFailure(w io.Writer, err error) {
	fmt.Fprintln(w)
	fmt.Fprint(w, FormatFailure(err))
}
