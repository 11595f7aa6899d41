package vlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf, Level: InfoLevel, JSONOutput: true})

	Component("test").Info().Str("k", "v").Msg("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["message"])
	assert.Equal(t, "test", decoded["component"])
	assert.Equal(t, "v", decoded["k"])
}

func TestComponentTagsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf, Level: DebugLevel, JSONOutput: true})

	Component("engine").Warn().Msg("uh oh")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "engine", decoded["component"])
	assert.Equal(t, "warn", decoded["level"])
}

func TestWithNodeTagsNodeID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf, Level: InfoLevel, JSONOutput: true})

	WithNode("node-1").Info().Msg("started")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "node-1", decoded["node_id"])
}
