// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ergochat/readline"
)

// maxLineBytes bounds a single inbound line. Queries can be long.
const maxLineBytes = 4 << 20

// BufferedReader reads lines from any io.Reader, writing prompts to w.
// It is used when input is not a terminal and by the JSON-lines transport.
type BufferedReader struct {
	scanner *bufio.Scanner
	w       io.Writer
}

// NewBufferedReader wraps r. Prompts go to w when w is non-nil.
func NewBufferedReader(r io.Reader, w io.Writer) *BufferedReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &BufferedReader{scanner: s, w: w}
}

func (b *BufferedReader) ReadLine(prompt string) (string, error) {
	if b.w != nil && prompt != "" {
		fmt.Fprint(b.w, prompt)
	}
	if !b.scanner.Scan() {
		if err := b.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(b.scanner.Text(), "\r"), nil
}

// ReadlineReader provides line editing and history on a terminal.
type ReadlineReader struct {
	rl *readline.Instance
}

// NewReadlineReader opens a readline instance on the process terminal.
// historyFile may be empty to disable persistent history.
func NewReadlineReader(historyFile string) (*ReadlineReader, error) {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	return &ReadlineReader{rl: rl}, nil
}

func (r *ReadlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.ReadLine()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

// Close releases the terminal.
func (r *ReadlineReader) Close() error {
	return r.rl.Close()
}
