// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"atomicgo.dev/cursor"
)

const spinnerInterval = 120 * time.Millisecond

// startInlineSpinner animates frames followed by text on a single line until
// the returned function is called. The line is cleared on stop.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	if len(text) > 200 {
		text = text[:200]
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	cursor.Hide()
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			cursor.Show()
		})
	}
}
