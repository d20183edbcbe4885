// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"precinct/cli/internal/config"
	"precinct/cli/internal/dsn"
	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/llm"
)

func TestReadQuery(t *testing.T) {
	defer func() { fileFlag = "" }()

	q, err := readQuery([]string{"SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", q)

	_, err = readQuery(nil)
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))

	path := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT * FROM a\n"), 0o600))
	fileFlag = path
	q, err = readQuery(nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM a\n", q)

	_, err = readQuery([]string{"SELECT 1"})
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))

	fileFlag = filepath.Join(t.TempDir(), "missing.sql")
	_, err = readQuery(nil)
	assert.Equal(t, apperrors.Config, apperrors.KindOf(err))
}

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://app:s3cret@db:5432/shop?sslmode=disable", "postgres://app:***@db:5432/shop?sslmode=disable"},
		{"postgres://app@db/shop", "postgres://app@db/shop"},
		{"host=db user=app password=s3cret dbname=shop", "host=db user=app password=*** dbname=shop"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskPassword(tt.in))
	}
}

func TestConnectionSummary(t *testing.T) {
	out := connectionSummary(dsn.Resolved{
		ConnString: "postgres://app:s3cret@db:5432/shop",
		Source:     dsn.SourceDatabaseURL,
	})
	assert.Contains(t, out, "postgres://app:***@db:5432/shop")
	assert.Contains(t, out, "Source: "+string(dsn.SourceDatabaseURL))
	assert.Contains(t, out, "Database: shop")
	assert.NotContains(t, out, "s3cret")

	out = connectionSummary(dsn.Resolved{ConnString: "host=db user=app password=s3cret dbname=sales", Source: dsn.SourceService, Detail: "analytics"})
	assert.Contains(t, out, "Database: sales")
	assert.Contains(t, out, "password=***")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "SELECT * FROM a", oneLine("SELECT *\n  FROM a", 40))
	assert.Equal(t, "SELECT…", oneLine("SELECT * FROM a", 7))
}

func TestResolveAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("PRECINCT_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	key, err := resolveAPIKey(context.Background(), config.Config{}, llm.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", key)

	key, err = resolveAPIKey(context.Background(), config.Config{}, llm.ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", key)

	t.Setenv("PRECINCT_API_KEY", "sk-precinct")
	key, err = resolveAPIKey(context.Background(), config.Config{}, llm.ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-precinct", key)
}

func TestReportedErrorKeepsKind(t *testing.T) {
	err := reported(apperrors.New(apperrors.ClarificationLimit, "too many corrections"))
	assert.Equal(t, 10, apperrors.ExitCodeOf(err))
	assert.Nil(t, reported(nil))
}
