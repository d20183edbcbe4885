// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides utilities for terminal operations such as TTY
// detection, clearing echoed input and copying to the clipboard.
package terminal

import (
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the width cannot be determined.
const DefaultWidth = 80

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of f, or DefaultWidth.
func Width(f *os.File) int {
	if f == nil {
		return DefaultWidth
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return DefaultWidth
}

// ClearPreviousLines erases text that was previously printed to w, such as
// a prompt and the secret typed after it. textLength is the number of
// characters printed and width the terminal width. One extra line is
// cleared for the newline left by Enter.
func ClearPreviousLines(w io.Writer, textLength, width int) {
	if width <= 0 {
		width = DefaultWidth
	}
	totalLines := int(math.Ceil(float64(textLength) / float64(width)))
	if totalLines < 1 {
		totalLines = 1
	}
	linesToClear := totalLines + 1
	for i := 0; i < linesToClear; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}

// ReadSecret reads a line from f without echo when f is a terminal.
func ReadSecret(f *os.File) (string, error) {
	b, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
