package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommands(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "kkoala.db")
	var out bytes.Buffer

	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "up"}))
	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "version"}))
	assert.Contains(t, out.String(), "version 2 (dirty: false)")

	out.Reset()
	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "steps", "--n", "-1"}))
	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "version"}))
	assert.Contains(t, out.String(), "version 1 (dirty: false)")
}

func TestDownRequiresConfirmation(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "kkoala.db")
	var out bytes.Buffer

	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "up"}))
	err := newApp(&out).Run([]string{"migrate", "-d", dbURL, "down"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	require.NoError(t, newApp(&out).Run([]string{"migrate", "-d", dbURL, "down", "--yes"}))
}

func TestUnsupportedDatabaseURL(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"migrate", "-d", "mysql://localhost/kkoala", "up"})
	require.Error(t, err)
}
