package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lavalog/internal/store"
)

// recordRuns replays a passing and a rebooting job into a fresh database.
func recordRuns(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lavalog.db")

	opts := testOptions(t)
	_, _, err := execute(t, opts, "replay", writeFile(t, dir, "pass.yaml", passingJob), "--db", dbPath)
	require.NoError(t, err)
	_, _, err = execute(t, opts, "replay", writeFile(t, dir, "reboot.yaml", rebootingJob), "--db", dbPath)
	require.Error(t, err)

	return dbPath
}

func TestHistoryMissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(t, nil, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestHistoryDatabaseNotFound(t *testing.T) {
	_, _, err := execute(t, nil, "history", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lavalog.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	stdout, _, err := execute(t, nil, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded")

	stdout, _, err = execute(t, nil, "--format", "json", "history", "--db", dbPath)
	require.NoError(t, err)
	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestHistoryListsRuns(t *testing.T) {
	dbPath := recordRuns(t)

	stdout, _, err := execute(t, nil, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 run(s)")
	assert.Contains(t, stdout, "run-1")
	assert.Contains(t, stdout, "run-2")
	assert.Contains(t, stdout, "passed")
	assert.Contains(t, stdout, "known_issue")

	stdout, _, err = execute(t, nil, "--format", "json", "history", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestHistoryShowsRunSections(t *testing.T) {
	dbPath := recordRuns(t)

	stdout, _, err := execute(t, nil, "history", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run run-1")
	assert.Contains(t, stdout, "deqp-vk")
	assert.Contains(t, stdout, "post-deqp-vk")
	assert.Contains(t, stdout, "test_case")

	stdout, _, err = execute(t, nil, "--format", "json", "history", "--db", dbPath, "--run", "run-2")
	require.NoError(t, err)
	var resp struct {
		Data RunDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, store.OutcomeKnownIssue, resp.Data.Outcome)
	require.Len(t, resp.Data.SectionList, 1)
	assert.Equal(t, "piglit", resp.Data.SectionList[0].SectionID)
}

func TestHistoryUnknownRun(t *testing.T) {
	dbPath := recordRuns(t)

	_, _, err := execute(t, nil, "history", "--db", dbPath, "--run", "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run run-9 not found")
}
