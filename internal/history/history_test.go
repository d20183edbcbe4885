// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, Entry{
		ID: "11111111-0000-0000-0000-000000000000", StartedAt: base, FinishedAt: base.Add(time.Minute),
		Query: "SELECT 1", Outcome: "cancelled", ErrorKind: "cancelled",
	}))
	require.NoError(t, s.Add(ctx, Entry{
		ID: "22222222-0000-0000-0000-000000000000", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
		Target: "shop@localhost:5432", Model: "gpt-4o", Query: "SELECT * FROM a", Intent: "list a",
		OptimizedQuery: "SELECT id FROM a", Explanation: "narrower", Corrections: 2, Outcome: "run",
		PlanCost: 12.5, PlanTimeMs: 0.75,
	}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "22222222-0000-0000-0000-000000000000", got[0].ID)
	assert.Equal(t, 2, got[0].Corrections)
	assert.Equal(t, 12.5, got[0].PlanCost)
	assert.True(t, got[0].StartedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, "cancelled", got[1].Outcome)

	got, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetByPrefix(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"abc11111-0000-0000-0000-000000000000", "abc22222-0000-0000-0000-000000000000"} {
		require.NoError(t, s.Add(ctx, Entry{ID: id, StartedAt: now, FinishedAt: now, Query: "q", Outcome: "run"}))
	}

	e, err := s.Get(ctx, "abc2")
	require.NoError(t, err)
	assert.Equal(t, "abc22222-0000-0000-0000-000000000000", e.ID)

	_, err = s.Get(ctx, "abc")
	assert.ErrorContains(t, err, "more than one")
	_, err = s.Get(ctx, "fff")
	assert.ErrorContains(t, err, "no session")
	_, err = s.Get(ctx, "x%")
	assert.ErrorContains(t, err, "invalid")
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()
	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, Entry{ID: "a", StartedAt: time.Now(), FinishedAt: time.Now(), Query: "q", Outcome: "copy"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
