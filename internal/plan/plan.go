// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package plan models a PostgreSQL execution plan collected with
// EXPLAIN (ANALYZE, FORMAT JSON) and renders it compactly for prompts.
package plan

import "encoding/json"

// Node is one operator in the execution plan tree.
type Node struct {
	// Kind is the operator, e.g. "Seq Scan", "Hash Join", "Sort".
	Kind         string
	Relation     string
	Schema       string
	Alias        string
	IndexName    string
	JoinType     string
	Filter       string
	IndexCond    string
	HashCond     string
	SortKey      []string
	StartupCost  float64
	TotalCost    float64
	PlanRows     float64
	ActualRows   float64
	ActualTimeMs float64
	Loops        float64
	// RowsRemovedByFilter is zero when the server did not report it.
	RowsRemovedByFilter float64
	Buffers             Buffers
	// Extra holds node properties not mapped to a field above.
	Extra    map[string]json.RawMessage
	Children []*Node
	// Opaque is set for a node whose shape was not recognised. Raw then holds
	// the original JSON and no other field is populated.
	Opaque bool
	Raw    json.RawMessage
}

// Buffers holds shared buffer statistics reported by EXPLAIN (BUFFERS).
type Buffers struct {
	SharedHit  int64
	SharedRead int64
	TempRead   int64
	TempWrite  int64
}

// ExecutionPlan is the root node plus aggregate totals.
type ExecutionPlan struct {
	Root            *Node
	TotalCost       float64
	PlanningTimeMs  float64
	ExecutionTimeMs float64
}

// TotalTimeMs is planning plus execution time.
func (p *ExecutionPlan) TotalTimeMs() float64 {
	return p.PlanningTimeMs + p.ExecutionTimeMs
}

// Walk visits every node depth first, parents before children.
func (p *ExecutionPlan) Walk(fn func(n *Node, depth int)) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if n == nil {
			return
		}
		fn(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(p.Root, 0)
}
