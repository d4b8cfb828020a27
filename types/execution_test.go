package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExecution() ExecutionContext {
	taskID := "t-2"
	return ExecutionContext{
		Tasks: []TaskEntry{
			{ID: "t-1", Status: TaskCompleted, Description: "collect sources", Progress: 100},
			{ID: "t-2", Status: TaskRunning, Description: "summarise", Progress: 42.5},
		},
		Agents: map[string]AgentState{
			"researcher": {Status: "busy", CurrentTaskID: &taskID},
			"reviewer":   {Status: "idle"},
		},
		Resources: map[string]float64{"tokens": 1234, "cost_usd": 0.0371},
		Variables: Map{
			"v":      Int(1),
			"nested": MustFromAny(map[string]any{"list": []any{1, "x", nil}}),
		},
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}
}

func TestExecutionContext_CloneIsDeep(t *testing.T) {
	original := sampleExecution()
	clone := original.Clone()
	require.True(t, original.Equal(clone))

	clone.Tasks[0].Progress = 1
	*clone.Agents["researcher"].CurrentTaskID = "t-9"
	clone.Resources["tokens"] = 0
	clone.Variables["v"] = Int(2)

	assert.Equal(t, 100.0, original.Tasks[0].Progress)
	assert.Equal(t, "t-2", *original.Agents["researcher"].CurrentTaskID)
	assert.Equal(t, 1234.0, original.Resources["tokens"])
	assert.True(t, original.Variables["v"].Equal(Int(1)))
}

func TestExecutionContext_JSONRoundTrip(t *testing.T) {
	original := sampleExecution()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ExecutionContext
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, original.Equal(decoded))
}

func TestExecutionContext_NormalizeAndValidate(t *testing.T) {
	var empty ExecutionContext
	empty.Normalize()
	require.NoError(t, empty.Validate())

	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tasks":[]`)
	assert.Contains(t, string(data), `"variables":{}`)

	bad := ExecutionContext{Tasks: []TaskEntry{{ID: "x", Status: "paused"}}}
	assert.Error(t, bad.Validate())

	bad = ExecutionContext{Tasks: []TaskEntry{{ID: "x", Status: TaskRunning, Progress: 101}}}
	assert.Error(t, bad.Validate())
}

func TestExecutionContext_ValidateRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		exec ExecutionContext
		want string
	}{
		{"nan progress", ExecutionContext{Tasks: []TaskEntry{{ID: "t1", Status: TaskRunning, Progress: math.NaN()}}}, "progress"},
		{"inf progress", ExecutionContext{Tasks: []TaskEntry{{ID: "t1", Status: TaskRunning, Progress: math.Inf(1)}}}, "progress"},
		{"nan resource", ExecutionContext{Resources: map[string]float64{"cpu": 0.5, "tokens": math.NaN()}}, `resource "tokens"`},
		{"inf resource", ExecutionContext{Resources: map[string]float64{"memory": math.Inf(-1)}}, `resource "memory"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	ok := ExecutionContext{Resources: map[string]float64{"cpu": 0.5}}
	assert.NoError(t, ok.Validate())
}

func TestModelConfig_CloneAndEqual(t *testing.T) {
	cfg := ModelConfig{
		Model:       "sonnet",
		Temperature: 0.2,
		MaxTokens:   4096,
		Extra:       Map{"top_p": Number(0.9)},
	}
	clone := cfg.Clone()
	assert.True(t, cfg.Equal(clone))

	clone.Extra["top_p"] = Number(0.5)
	assert.False(t, cfg.Equal(clone))
}
