// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package plan

import (
	"fmt"
	"strings"
)

// Summary renders the plan as an indented operator tree with the statistics
// that matter for optimization. Opaque nodes are kept, truncated.
func (p *ExecutionPlan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total cost=%.2f planning=%.3fms execution=%.3fms\n", p.TotalCost, p.PlanningTimeMs, p.ExecutionTimeMs)
	p.Walk(func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("-> ")
		b.WriteString(n.Line())
		b.WriteByte('\n')
	})
	return strings.TrimRight(b.String(), "\n")
}

// Line renders a single node without its children.
func (n *Node) Line() string {
	if n.Opaque {
		raw := string(n.Raw)
		if len(raw) > 120 {
			raw = raw[:120] + "..."
		}
		return "(unrecognized node) " + raw
	}
	var b strings.Builder
	b.WriteString(n.Kind)
	if n.Relation != "" {
		b.WriteString(" on ")
		if n.Schema != "" {
			b.WriteString(n.Schema + ".")
		}
		b.WriteString(n.Relation)
		if n.Alias != "" && n.Alias != n.Relation {
			b.WriteString(" " + n.Alias)
		}
	}
	if n.IndexName != "" {
		b.WriteString(" using " + n.IndexName)
	}
	fmt.Fprintf(&b, " (cost=%.2f..%.2f rows=%.0f) (actual time=%.3f rows=%.0f loops=%.0f)",
		n.StartupCost, n.TotalCost, n.PlanRows, n.ActualTimeMs, n.ActualRows, n.Loops)
	for _, cond := range []struct{ label, val string }{
		{"filter", n.Filter},
		{"index cond", n.IndexCond},
		{"hash cond", n.HashCond},
	} {
		if cond.val != "" {
			fmt.Fprintf(&b, " %s: %s", cond.label, cond.val)
		}
	}
	if n.RowsRemovedByFilter > 0 {
		fmt.Fprintf(&b, " removed by filter: %.0f", n.RowsRemovedByFilter)
	}
	if len(n.SortKey) > 0 {
		b.WriteString(" sort key: " + strings.Join(n.SortKey, ", "))
	}
	return b.String()
}
