// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"precinct/cli/internal/history"
	"precinct/cli/internal/xdg"
)

var historyLimit int

// historyCmd lists recent sessions, or shows one in full.
var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List recent optimization sessions",
	Long: `The history command lists sessions recorded in the local history database,
newest first. Given a session id (or a unique prefix of one) it prints that
session's query, intent and rewrite.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := xdg.StatePath(history.FileName)
		if err != nil {
			return err
		}
		store, err := history.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			e, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEntry(e)
			return nil
		}

		entries, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Println("No sessions recorded yet.")
			return nil
		}
		data := pterm.TableData{{"ID", "Started", "Target", "Outcome", "Corrections", "Plan ms", "Query"}}
		for _, e := range entries {
			outcome := e.Outcome
			if e.ErrorKind != "" && e.ErrorKind != "cancelled" {
				outcome += " (" + e.ErrorKind + ")"
			}
			data = append(data, []string{
				e.ID[:8],
				e.StartedAt.Local().Format("2006-01-02 15:04"),
				e.Target,
				outcome,
				fmt.Sprint(e.Corrections),
				fmt.Sprintf("%.1f", e.PlanTimeMs),
				oneLine(e.Query, 48),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of sessions to list")
}

func printEntry(e history.Entry) {
	label := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	pterm.Println(label.Sprint("Session: ") + e.ID)
	pterm.Println(label.Sprint("Started: ") + e.StartedAt.Local().Format("2006-01-02 15:04:05"))
	pterm.Println(label.Sprint("Target:  ") + e.Target + " (" + e.Model + ")")
	pterm.Println(label.Sprint("Outcome: ") + e.Outcome)
	if e.ErrorKind != "" {
		pterm.Println(label.Sprint("Error:   ") + e.ErrorKind + ": " + e.ErrorMessage)
	}
	pterm.Println()
	pterm.Println(label.Sprint("Query"))
	pterm.Println(strings.TrimSpace(e.Query))
	if e.Intent != "" {
		pterm.Println()
		pterm.Println(label.Sprint("Intent"))
		pterm.Println(e.Intent)
	}
	if e.OptimizedQuery != "" {
		pterm.Println()
		pterm.Println(label.Sprint("Optimized query"))
		pterm.Println(strings.TrimSpace(e.OptimizedQuery))
		if e.Explanation != "" {
			pterm.Println()
			pterm.Println(e.Explanation)
		}
	}
}

// oneLine collapses whitespace in s and cuts it to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
