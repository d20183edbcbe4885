// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const explainJSON = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Join Type": "Inner",
      "Startup Cost": 1.09,
      "Total Cost": 40.33,
      "Plan Rows": 12,
      "Actual Rows": 10,
      "Actual Total Time": 0.254,
      "Actual Loops": 1,
      "Hash Cond": "(b.aid = a.id)",
      "Inner Unique": true,
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Parent Relationship": "Outer",
          "Relation Name": "b",
          "Schema": "public",
          "Alias": "b",
          "Startup Cost": 0.00,
          "Total Cost": 32.60,
          "Plan Rows": 2260,
          "Actual Rows": 2000,
          "Actual Total Time": 0.101,
          "Actual Loops": 1,
          "Filter": "(flag IS TRUE)",
          "Rows Removed by Filter": 260,
          "Shared Hit Blocks": 9
        },
        {"Weird": "shape"}
      ]
    },
    "Planning Time": 0.120,
    "Triggers": [],
    "Execution Time": 0.402
  }
]`

func TestParse(t *testing.T) {
	ep, err := Parse([]byte(explainJSON))
	require.NoError(t, err)

	root := ep.Root
	require.NotNil(t, root)
	assert.Equal(t, "Hash Join", root.Kind)
	assert.Equal(t, "Inner", root.JoinType)
	assert.InDelta(t, 40.33, ep.TotalCost, 1e-9)
	assert.InDelta(t, 0.522, ep.TotalTimeMs(), 1e-9)
	assert.Contains(t, root.Extra, "Inner Unique")

	require.Len(t, root.Children, 2)
	scan := root.Children[0]
	assert.Equal(t, "Seq Scan", scan.Kind)
	assert.Equal(t, "b", scan.Relation)
	assert.Equal(t, float64(2000), scan.ActualRows)
	assert.Equal(t, float64(260), scan.RowsRemovedByFilter)
	assert.Equal(t, int64(9), scan.Buffers.SharedHit)
	assert.Contains(t, scan.Extra, "Parent Relationship")

	opaque := root.Children[1]
	assert.True(t, opaque.Opaque)
	assert.JSONEq(t, `{"Weird": "shape"}`, string(opaque.Raw))
}

func TestParseRejectsMissingPlan(t *testing.T) {
	_, err := Parse([]byte(`[{"Planning Time": 1}]`))
	require.Error(t, err)

	_, err = Parse([]byte(`[]`))
	require.Error(t, err)

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestSummaryKeepsOpaqueNodes(t *testing.T) {
	ep, err := Parse([]byte(explainJSON))
	require.NoError(t, err)

	s := ep.Summary()
	assert.Contains(t, s, "-> Hash Join (cost=1.09..40.33 rows=12)")
	assert.Contains(t, s, "  -> Seq Scan on public.b (cost=0.00..32.60 rows=2260)")
	assert.Contains(t, s, "filter: (flag IS TRUE) removed by filter: 260")
	assert.Contains(t, s, "(unrecognized node)")
}

func TestParseKeepsMalformedKnownFieldsInExtra(t *testing.T) {
	ep, err := Parse([]byte(`[{"Plan": {
		"Node Type": "Seq Scan",
		"Relation Name": "orders",
		"Total Cost": 12.5,
		"Actual Rows": "many",
		"Sort Key": "id"
	}}]`))
	require.NoError(t, err)

	root := ep.Root
	assert.Equal(t, "orders", root.Relation)
	assert.Equal(t, 12.5, root.TotalCost)
	assert.Zero(t, root.ActualRows)
	require.Contains(t, root.Extra, "Actual Rows")
	assert.JSONEq(t, `"many"`, string(root.Extra["Actual Rows"]))
	require.Contains(t, root.Extra, "Sort Key")
	assert.NotContains(t, root.Extra, "Relation Name")
	assert.NotContains(t, root.Extra, "Total Cost")
}
