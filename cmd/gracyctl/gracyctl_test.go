package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilatrova/gracy/replay"
)

func TestValidateCmdReportsNamespacesAndEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gracy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://api.example.com
namespaces:
  users:
    endpoints:
      get:
        template: /users/{id}
`), 0o644))

	cfgFile = path
	defer func() { cfgFile = "" }()

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	validateCmd.SetErr(&out)
	require.NoError(t, validateCmd.RunE(validateCmd, nil))
	assert.Contains(t, out.String(), "namespace users")
	assert.Contains(t, out.String(), "/users/{id}")
}

func TestReplayListCmdReportsRecordedExchanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.db")

	store, err := replay.OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), "fp1", replay.Exchange{
		Method: "GET", URL: "/users/1", Status: 200, RecordedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	summaries, err := reopenAndList(path)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "GET", summaries[0].Method)

	var out bytes.Buffer
	replayListCmd.SetOut(&out)
	require.NoError(t, replayListCmd.RunE(replayListCmd, []string{path}))
	assert.Contains(t, out.String(), "/users/1")
}

func reopenAndList(path string) ([]replay.ExchangeSummary, error) {
	store, err := replay.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(context.Background())
}
