package taskengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentCapabilityList(t *testing.T) {
	tests := []struct {
		name         string
		capabilities string
		expected     []string
	}{
		{"json array", `["code","test"]`, []string{"code", "test"}},
		{"comma list", "code, test", []string{"code", "test"}},
		{"single value", "code", []string{"code"}},
		{"empty", "", []string{"general"}},
		{"whitespace", "   ", []string{"general"}},
		{"empty json array", `[]`, []string{"general"}},
		{"json array of blanks", `["", " "]`, []string{"general"}},
		{"commas only", ",,,", []string{"general"}},
		{"unparsable json falls back to comma split", `{"a":1}`, []string{`{"a":1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &Agent{ID: "A1", Capabilities: tt.capabilities}
			require.Equal(t, tt.expected, agent.CapabilityList())
		})
	}
}

func TestStepDecodeInputs(t *testing.T) {
	t.Run("valid object", func(t *testing.T) {
		step := &Step{Inputs: `{"x":5,"name":"go"}`}
		require.Equal(t, map[string]any{"x": float64(5), "name": "go"}, step.DecodeInputs())
	})
	t.Run("empty", func(t *testing.T) {
		step := &Step{}
		require.Equal(t, map[string]any{}, step.DecodeInputs())
	})
	t.Run("not an object", func(t *testing.T) {
		step := &Step{Inputs: `[1,2,3]`}
		require.Equal(t, map[string]any{}, step.DecodeInputs())
	})
	t.Run("garbage", func(t *testing.T) {
		step := &Step{Inputs: "not json"}
		require.Equal(t, map[string]any{}, step.DecodeInputs())
	})
	t.Run("null", func(t *testing.T) {
		step := &Step{Inputs: "null"}
		require.Equal(t, map[string]any{}, step.DecodeInputs())
	})
}

func TestStepStatusTerminal(t *testing.T) {
	require.False(t, StepStatusPending.Terminal())
	require.False(t, StepStatusRunning.Terminal())
	require.True(t, StepStatusCompleted.Terminal())
	require.True(t, StepStatusFailed.Terminal())
}
