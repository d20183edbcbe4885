// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"precinct/cli/internal/terminal"
)

// minSpinnerTime keeps the spinner visible long enough to be read.
const minSpinnerTime = 700 * time.Millisecond

// withSpinner runs fn while a spinner with text is shown on a terminal.
// The spinner line is removed when fn returns.
func withSpinner(text string, fn func() error) error {
	if !terminal.IsTerminal(os.Stdout) {
		return fn()
	}
	sp, err := pterm.DefaultSpinner.
		WithSequence("|", "/", "-", "\\").
		WithRemoveWhenDone(true).
		WithShowTimer(false).
		Start(text)
	if err != nil {
		return fn()
	}
	start := time.Now()
	err = fn()
	if elapsed := time.Since(start); elapsed < minSpinnerTime {
		time.Sleep(minSpinnerTime - elapsed)
	}
	_ = sp.Stop()
	return err
}

// promptSecret prints prompt, reads one line without echo when stdin is a
// terminal and then erases the prompt from the screen.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	var (
		value string
		err   error
	)
	if terminal.IsTerminal(os.Stdin) {
		value, err = terminal.ReadSecret(os.Stdin)
		fmt.Println()
	} else {
		value, err = bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && value != "" {
			err = nil
		}
	}
	value = strings.TrimSpace(value)
	if terminal.IsTerminal(os.Stdout) {
		terminal.ClearPreviousLines(os.Stdout, len(prompt), terminal.Width(os.Stdout))
	}
	return value, err
}

func printSuccess(format string, args ...any) {
	pterm.Println(pterm.NewStyle(pterm.FgGreen).Sprint("✓ ") + fmt.Sprintf(format, args...))
}

func printHint(lines ...string) {
	for _, l := range lines {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint("  " + l))
	}
}
