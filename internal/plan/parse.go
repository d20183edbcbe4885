// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Keys consumed into typed fields. Everything else lands in Node.Extra.
var knownKeys = map[string]bool{
	"Node Type": true, "Relation Name": true, "Schema": true, "Alias": true,
	"Index Name": true, "Join Type": true, "Filter": true, "Index Cond": true,
	"Hash Cond": true, "Sort Key": true, "Startup Cost": true, "Total Cost": true,
	"Plan Rows": true, "Actual Rows": true, "Actual Total Time": true,
	"Actual Loops": true, "Rows Removed by Filter": true, "Plans": true,
	"Shared Hit Blocks": true, "Shared Read Blocks": true,
	"Temp Read Blocks": true, "Temp Written Blocks": true,
}

// Parse decodes the output of EXPLAIN (ANALYZE, FORMAT JSON). The server
// returns a one-element array; a bare object is accepted too.
func Parse(data []byte) (*ExecutionPlan, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plan output")
	}

	var top map[string]json.RawMessage
	if data[0] == '[' {
		var arr []map[string]json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("plan output has no entries")
		}
		top = arr[0]
	} else if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	rawRoot, ok := top["Plan"]
	if !ok {
		return nil, fmt.Errorf("plan output has no \"Plan\" entry")
	}

	ep := &ExecutionPlan{Root: parseNode(rawRoot)}
	ep.TotalCost = ep.Root.TotalCost
	// timings stay zero when absent or malformed
	_ = decode(top, "Planning Time", &ep.PlanningTimeMs)
	_ = decode(top, "Execution Time", &ep.ExecutionTimeMs)
	return ep, nil
}

// parseNode never fails: anything that is not a plan node object becomes an
// opaque leaf carrying the raw JSON.
func parseNode(raw json.RawMessage) *Node {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return &Node{Opaque: true, Raw: raw}
	}
	n := &Node{}
	if err := decode(m, "Node Type", &n.Kind); err != nil || n.Kind == "" {
		return &Node{Opaque: true, Raw: raw}
	}

	// a known key whose value has the wrong shape is kept raw in Extra
	bad := map[string]bool{}
	field := func(key string, dst any) {
		if err := decode(m, key, dst); err != nil {
			bad[key] = true
		}
	}
	field("Relation Name", &n.Relation)
	field("Schema", &n.Schema)
	field("Alias", &n.Alias)
	field("Index Name", &n.IndexName)
	field("Join Type", &n.JoinType)
	field("Filter", &n.Filter)
	field("Index Cond", &n.IndexCond)
	field("Hash Cond", &n.HashCond)
	field("Sort Key", &n.SortKey)
	field("Startup Cost", &n.StartupCost)
	field("Total Cost", &n.TotalCost)
	field("Plan Rows", &n.PlanRows)
	field("Actual Rows", &n.ActualRows)
	field("Actual Total Time", &n.ActualTimeMs)
	field("Actual Loops", &n.Loops)
	field("Rows Removed by Filter", &n.RowsRemovedByFilter)
	field("Shared Hit Blocks", &n.Buffers.SharedHit)
	field("Shared Read Blocks", &n.Buffers.SharedRead)
	field("Temp Read Blocks", &n.Buffers.TempRead)
	field("Temp Written Blocks", &n.Buffers.TempWrite)

	if v, ok := m["Plans"]; ok {
		var children []json.RawMessage
		if err := json.Unmarshal(v, &children); err != nil {
			n.Children = append(n.Children, &Node{Opaque: true, Raw: v})
		} else {
			for _, c := range children {
				n.Children = append(n.Children, parseNode(c))
			}
		}
	}

	for k, v := range m {
		if knownKeys[k] && !bad[k] {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]json.RawMessage)
		}
		n.Extra[k] = v
	}
	return n
}

// decode unmarshals m[key] into dst. A missing key is not an error.
func decode(m map[string]json.RawMessage, key string, dst any) error {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(v, dst)
}
