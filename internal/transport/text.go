// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/logging"
	"precinct/cli/internal/transport/message"
)

// Text renders the dialogue for a person and reads single-letter answers.
type Text struct {
	w        io.Writer
	in       LineReader
	spinner  bool
	stopSpin func()
}

// NewText builds a text transport reading from in and rendering to w.
// With spinner set, status notices animate until the next message.
func NewText(in LineReader, w io.Writer, spinner bool) *Text {
	return &Text{w: w, in: in, spinner: spinner}
}

func (t *Text) Interactive() bool { return true }

var (
	labelStyle   = pterm.NewStyle(pterm.FgLightCyan)
	valueStyle   = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	hintStyle    = pterm.NewStyle(pterm.FgGray)
	warnStyle    = pterm.NewStyle(pterm.FgYellow)
	successStyle = pterm.NewStyle(pterm.FgGreen)
)

func (t *Text) Send(_ context.Context, msg message.Message) error {
	t.halt()
	switch m := msg.(type) {
	case message.StatusNotice:
		if t.spinner {
			t.stopSpin = startInlineSpinner(t.w, m.Text, []string{"|", "/", "-", "\\"}, spinnerInterval)
			return nil
		}
		fmt.Fprintln(t.w, hintStyle.Sprint("… "+m.Text))
	case message.IntentRequest:
		t.renderIntent(m)
	case message.OptimizationNotice:
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, pterm.DefaultBox.
			WithTitle(valueStyle.Sprint("Optimized query")).
			WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
			Sprint(strings.TrimSpace(m.OptimizedQuery)))
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, labelStyle.Sprint("Explanation:"))
		fmt.Fprintln(t.w, strings.TrimSpace(m.Explanation))
		fmt.Fprintln(t.w)
	case message.ActionRequest:
		fmt.Fprintln(t.w, actionPrompt(m))
	case message.ErrorNotice:
		logging.PresentFailure(t.w, apperrors.New(apperrors.Kind(m.Kind), m.Message))
	case message.ResultNotice:
		t.renderResult(m)
	case message.DoneNotice:
		t.renderDone(m)
	default:
		return fmt.Errorf("text transport cannot render %T", msg)
	}
	return nil
}

func (t *Text) renderIntent(m message.IntentRequest) {
	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w, labelStyle.Sprint("Query: ")+strings.TrimSpace(m.Query))
	fmt.Fprintln(t.w, labelStyle.Sprint("Intent: ")+valueStyle.Sprint(strings.TrimSpace(m.Draft)))
	fmt.Fprintln(t.w)
}

func (t *Text) renderResult(m message.ResultNotice) {
	if len(m.Columns) == 0 {
		fmt.Fprintln(t.w, successStyle.Sprintf("✓ Statement executed, %d rows affected", m.RowsAffected))
		return
	}
	data := pterm.TableData{m.Columns}
	for _, row := range m.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		data = append(data, cells)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		fmt.Fprintln(t.w, warnStyle.Sprint("could not render rows: ")+err.Error())
		return
	}
	fmt.Fprintln(t.w, out)
	if m.Truncated {
		fmt.Fprintln(t.w, hintStyle.Sprintf("(showing first %d rows)", len(m.Rows)))
	}
}

func (t *Text) renderDone(m message.DoneNotice) {
	switch m.Outcome {
	case "cancelled":
		fmt.Fprintln(t.w, warnStyle.Sprint("Operation cancelled."))
	case "copy":
		fmt.Fprintln(t.w, successStyle.Sprint("✓ Optimized query copied to clipboard"))
	case "write":
		fmt.Fprintln(t.w, successStyle.Sprint("✓ Optimized query written"))
	case "run":
		fmt.Fprintln(t.w, successStyle.Sprint("✓ Done"))
	}
}

func actionPrompt(req message.ActionRequest) string {
	var parts []string
	for _, a := range req.Actions {
		switch a {
		case message.ActionRun:
			parts = append(parts, "(r)un")
		case message.ActionCopy:
			parts = append(parts, "(c)opy")
		case message.ActionWrite:
			parts = append(parts, "(w)rite to file")
		case message.ActionCancel:
			parts = append(parts, "(q)uit")
		}
	}
	return "What would you like to do? " + strings.Join(parts, ", ")
}

func (t *Text) AskIntent(ctx context.Context, req message.IntentRequest) (message.IntentReply, error) {
	if err := t.Send(ctx, req); err != nil {
		return message.IntentReply{}, err
	}
	for {
		line, err := readLine(ctx, t.in, "Accept (y), quit (q), or type a correction: ")
		if err != nil {
			if cancelled(err) {
				return message.IntentReply{Cancelled: true}, nil
			}
			return message.IntentReply{}, t.readErr(ctx, err)
		}
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "y", "yes":
			return message.IntentReply{Accepted: true}, nil
		case "q", "quit":
			return message.IntentReply{Cancelled: true}, nil
		}
		return message.IntentReply{Correction: line}, nil
	}
}

func (t *Text) AskAction(ctx context.Context, req message.ActionRequest) (message.ActionReply, error) {
	if err := t.Send(ctx, req); err != nil {
		return message.ActionReply{}, err
	}
	tokens := map[string]message.Action{
		"r": message.ActionRun, "run": message.ActionRun,
		"c": message.ActionCopy, "copy": message.ActionCopy,
		"w": message.ActionWrite, "write": message.ActionWrite,
		"q": message.ActionCancel, "quit": message.ActionCancel, "cancel": message.ActionCancel,
	}
	for {
		line, err := readLine(ctx, t.in, "Your answer: ")
		if err != nil {
			if cancelled(err) {
				return message.ActionReply{Action: message.ActionCancel}, nil
			}
			return message.ActionReply{}, t.readErr(ctx, err)
		}
		a, ok := tokens[strings.ToLower(strings.TrimSpace(line))]
		if ok && req.Allows(a) {
			return message.ActionReply{Action: a}, nil
		}
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(t.w, hintStyle.Sprint(actionPrompt(req)))
		}
	}
}

// cancelled treats Ctrl-C and a closed terminal as an explicit quit.
func cancelled(err error) bool {
	return err == ErrInterrupted || isEOF(err)
}

func (t *Text) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.Cancelled, "session cancelled", err)
	}
	return apperrors.Wrap(apperrors.Protocol, "read answer", err)
}

// Close stops any running spinner.
func (t *Text) Close() error {
	t.halt()
	return nil
}

func (t *Text) halt() {
	if t.stopSpin != nil {
		t.stopSpin()
		t.stopSpin = nil
	}
}
