// Package main is the entry point for the precinct CLI, an interactive
// PostgreSQL query optimizer.
package main

import (
	"precinct/cli/cmd"
)

func main() {
	cmd.Execute()
}
