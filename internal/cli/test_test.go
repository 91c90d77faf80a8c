package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: tiny
description: "One page exhausts the source"
steps:
  - start: {}
    expect:
      activity: act-1
      wants_fetch: true
  - page:
      items:
        - { uid: a, namespace: ns, name: a, rv: "1" }
    expect:
      items: [a]
      finished: true
`

const failingScenario = `name: wrong
description: "Expects a finished fetch before any page"
steps:
  - start: {}
    expect:
      finished: true
`

func writeScenario(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0644))
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("..", "harness", "testdata", "scenarios")})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Passed)
	assert.Zero(t, resp.Data.Failed)
}

func TestTestCommand_Filter(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("..", "harness", "testdata", "scenarios"), "--filter", "refresh_*"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ refresh_sweep")
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out := buf.String()
	assert.Contains(t, out, "✓ tiny")
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "finished")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	require.Error(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny.yaml", passingScenario)

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--update"})
	require.NoError(t, cmd.Execute())

	golden := filepath.Join(dir, "golden", "tiny.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario": "tiny"`)

	cmd = NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario": "stale"}`), 0644))
	buf := &bytes.Buffer{}
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	require.Error(t, cmd.Execute())
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestTestCommand_BadScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\ndescription: x\nsteps:\n  - bogus: {}\n")

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	require.Error(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✗ broken.yaml")
	assert.Contains(t, buf.String(), "failed to load scenario")
}

func TestTestCommand_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestTestCommand_MissingDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
