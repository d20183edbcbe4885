// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxOSC52 is the payload size most terminals accept in one sequence.
const maxOSC52 = 100_000

// CopyOSC52 asks the terminal behind w to put text on the system clipboard
// using the OSC 52 escape sequence. Inside tmux the sequence is wrapped in
// a passthrough so it reaches the outer terminal.
func CopyOSC52(w io.Writer, text string) error {
	payload := base64.StdEncoding.EncodeToString([]byte(text))
	if len(payload) > maxOSC52 {
		return fmt.Errorf("text too large for the terminal clipboard (%d bytes encoded)", len(payload))
	}
	seq := "\x1b]52;c;" + payload + "\a"
	if os.Getenv("TMUX") != "" {
		seq = "\x1bPtmux;" + strings.ReplaceAll(seq, "\x1b", "\x1b\x1b") + "\x1b\\"
	}
	_, err := io.WriteString(w, seq)
	return err
}
