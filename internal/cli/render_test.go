package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderText(t *testing.T) {
	out, err := execute(NewRenderCommand(&RootOptions{Format: "text"}), "--", "-a- (bc)-|")
	require.NoError(t, err)
	assertGolden(t, "render_text", []byte(out))
}

func TestRenderFrame(t *testing.T) {
	out, err := execute(NewRenderCommand(&RootOptions{Format: "text"}), "--frame", "1s", "--", "--#")
	require.NoError(t, err)
	assert.Equal(t, "#(error)@2s\ncanonical: --#\n", out)
}

func TestRenderJSON(t *testing.T) {
	out, err := execute(NewRenderCommand(&RootOptions{Format: "json"}), "a|")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Marbles  string            `json:"marbles"`
			Messages []RenderedMessage `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "a|", resp.Data.Marbles)
	assert.Equal(t, []RenderedMessage{
		{Frame: "0s", Kind: "next", Value: "a"},
		{Frame: "1ms", Kind: "complete"},
	}, resp.Data.Messages)
}

func TestRenderSyntaxError(t *testing.T) {
	out, err := execute(NewRenderCommand(&RootOptions{Format: "text"}), "(a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
	assert.Contains(t, out, "unclosed group")
}
