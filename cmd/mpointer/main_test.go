package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes a fresh command tree and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDemo_PrintsReverseInsertionOrder(t *testing.T) {
	stdout, stderr, err := run(t, "demo")
	require.NoError(t, err)
	assert.Equal(t, "30\n20\n10\n", stdout)
	assert.Contains(t, stderr, "sweep completed")
}

func TestDemo_CustomValues(t *testing.T) {
	stdout, _, err := run(t, "demo", "--values", "1,2,3,4", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "4\n3\n2\n1\n", stdout)
}

func TestDemo_InvalidLogLevel(t *testing.T) {
	_, _, err := run(t, "demo", "--log-level", "loud")
	assert.Error(t, err)
}

func TestStress(t *testing.T) {
	stdout, _, err := run(t, "stress", "--workers", "4", "--per-worker", "50", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "created=200 distinct=200 ordered=true reclaimed=200 remaining=0\n", stdout)
}

func TestStress_SizesFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpointer.yaml")
	writeFile(t, path, "registry:\n  log_level: error\nstress:\n  workers: 3\n  per_worker: 20\n")

	stdout, _, err := run(t, "stress", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "created=60 distinct=60 ordered=true reclaimed=60 remaining=0\n", stdout)

	// Flags win over the file.
	stdout, _, err = run(t, "stress", "--config", path, "--workers", "1")
	require.NoError(t, err)
	assert.Equal(t, "created=20 distinct=20 ordered=true reclaimed=20 remaining=0\n", stdout)
}

func TestStress_RejectsBadFlags(t *testing.T) {
	_, _, err := run(t, "stress", "--workers", "0")
	assert.ErrorContains(t, err, "must be positive")
}

func TestJournal_ListsDemoSweep(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")

	_, _, err := run(t, "demo", "--journal", db, "--log-level", "error")
	require.NoError(t, err)

	stdout, _, err := run(t, "journal", "--db", db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "RECLAIMED")
	fields := strings.Fields(lines[1])
	require.Len(t, fields, 6)
	assert.Equal(t, "default", fields[1])
	assert.Equal(t, "3", fields[3])
	assert.Equal(t, "3", fields[4])
}

func TestJournal_Purge(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, _, err := run(t, "demo", "--journal", db, "--log-level", "error")
	require.NoError(t, err)

	stdout, _, err := run(t, "journal", "--db", db, "--purge-older-than", "1ns")
	require.NoError(t, err)
	assert.Contains(t, stdout, "purged 1 record(s)")
}

func TestJournal_RequiresPath(t *testing.T) {
	_, _, err := run(t, "journal")
	assert.ErrorContains(t, err, "no journal")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpointer.yaml")
	writeFile(t, path, "registry:\n  name: from-file\n  log_level: debug\n")

	_, stderr, err := run(t, "demo", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "registry=from-file")
	assert.Contains(t, stderr, "level=DEBUG")
}

func TestMetricsSummary(t *testing.T) {
	_, stderr, err := run(t, "demo", "--metrics", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stderr, "mpointer.allocations 3")
	assert.Contains(t, stderr, "mpointer.reclaimed 3")
	assert.Contains(t, stderr, "mpointer.sweeps 1")
}
