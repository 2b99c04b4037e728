package taskengine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// promptInstructions is the fixed suffix asking the model to answer in a
// specific JSON shape. The result parser depends on this shape's "outputs"
// field being present.
const promptInstructions = `Respond with a single JSON object in exactly this shape:
{
  "analysis": "your analysis of the task",
  "actions_taken": ["list of actions you performed"],
  "outputs": {"key": "value pairs produced by the task"},
  "confidence": 0.0,
  "recommendations": ["optional follow-up suggestions"]
}`

// BuildPrompt renders a step's fields into a single text prompt. It is a pure
// function: the same step, agent, and context always produce a byte-identical
// prompt. Absent fields render as placeholder text.
func BuildPrompt(step *Step, agent *Agent, ectx *ExecutionContext) string {
	var b strings.Builder

	agentName := agent.Name
	if agentName == "" {
		agentName = agent.ID
	}
	fmt.Fprintf(&b, "You are %s, a development agent.\n", agentName)
	fmt.Fprintf(&b, "Capabilities: %s\n\n", strings.Join(agent.CapabilityList(), ", "))

	workflowType := "general"
	if ectx != nil {
		if wt, ok := ectx.Metadata["workflow_type"].(string); ok && wt != "" {
			workflowType = wt
		}
	}
	fmt.Fprintf(&b, "Workflow type: %s\n\n", workflowType)

	fmt.Fprintf(&b, "Step %d: %s\n", step.Ordinal, step.Name)
	description := step.Description
	if description == "" {
		description = "No description provided"
	}
	fmt.Fprintf(&b, "Description: %s\n\n", description)

	b.WriteString("Inputs:\n")
	b.WriteString(formatInputs(ectx))
	b.WriteString("\n")

	b.WriteString(promptInstructions)
	return b.String()
}

// formatInputs renders the context's input map as structured text with keys
// in sorted order, for deterministic output.
func formatInputs(ectx *ExecutionContext) string {
	if ectx == nil || len(ectx.Inputs) == 0 {
		return "  (none)\n"
	}
	keys := make([]string, 0, len(ectx.Inputs))
	for k := range ectx.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		value, err := json.Marshal(ectx.Inputs[k])
		if err != nil {
			value = []byte(fmt.Sprintf("%v", ectx.Inputs[k]))
		}
		fmt.Fprintf(&b, "  %s: %s\n", k, value)
	}
	return b.String()
}
