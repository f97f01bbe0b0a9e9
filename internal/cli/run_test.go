package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failingScenario = `name: wrong-take
sources:
  src:
    cold: "-a-b-c|"
pipeline:
  source: src
  steps:
    - op: take
      count: 2
expect:
  marbles: "-a-b-c|"
`

func TestRunText(t *testing.T) {
	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), scenarioDir)
	require.NoError(t, err)
	assertGolden(t, "run_text", []byte(out))
}

func TestRunJSON(t *testing.T) {
	out, err := execute(NewRunCommand(&RootOptions{Format: "json"}), "--parallel", "2", scenarioDir)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, resp.Data.Passed)
	assert.Zero(t, resp.Data.Failed)
	require.Len(t, resp.Data.Results, 6)
	assert.Equal(t, "catch", resp.Data.Results[0].Name)

	_, err = uuid.Parse(resp.Data.RunID)
	assert.NoError(t, err)
}

func TestRunFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(failingScenario), 0o644))

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "✗ wrong-take\n"+
		"    output: expected \"-a-b-c|\", got \"-a-(b|)\"\n"+
		"0 passed, 1 failed\n", out)
}

func TestRunMissingPath(t *testing.T) {
	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E001]")
}

func TestRunInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\n"), 0o644))

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestRecordAndReplay(t *testing.T) {
	recording := filepath.Join(t.TempDir(), "run.cbor")

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "--record", recording, scenarioDir)
	require.NoError(t, err)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), recording)
	require.NoError(t, err)
	assertGolden(t, "replay_text", []byte(out))
}

func TestReplayJSON(t *testing.T) {
	recording := filepath.Join(t.TempDir(), "run.cbor")
	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "--record", recording, filepath.Join(scenarioDir, "catch.yaml"))
	require.NoError(t, err)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), recording)
	require.NoError(t, err)

	var resp struct {
		Data []ReplayedRecording `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "catch", resp.Data[0].Name)
	assert.Equal(t, "1s", resp.Data[0].Frame)
	assert.Equal(t, "-a-(z|)", resp.Data[0].Marbles)
	assert.NotEmpty(t, resp.Data[0].RunID)
}

func TestReplayCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.cbor")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00}, 0o644))

	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
