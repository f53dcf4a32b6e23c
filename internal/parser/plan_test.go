// File: internal/parser/plan_test.go
package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
)

func TestDecodePlan_Valid(t *testing.T) {
	payload := `{
		"analysis": "a login form",
		"intent": "log in",
		"actions": [
			{"action": "click", "parameters": {"target": "Login"}, "description": "click login", "confidence": 0.92}
		],
		"explanation": "clicks the login button"
	}`

	plan, err := DecodePlan(payload)
	require.NoError(t, err)
	assert.Equal(t, "a login form", plan.Analysis)
	assert.Equal(t, "log in", plan.Intent)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "click", plan.Actions[0].Action)
}

func TestDecodePlan_CodeFenceTolerated(t *testing.T) {
	payload := "```json\n{\"analysis\":\"x\",\"intent\":\"y\",\"actions\":[],\"explanation\":\"z\"}\n```"

	plan, err := DecodePlan(payload)
	require.NoError(t, err)
	assert.NotNil(t, plan.Actions)
	assert.Empty(t, plan.Actions)
}

func TestDecodePlan_RejectsNonPlan(t *testing.T) {
	for _, payload := range []string{
		"I would suggest clicking the button.",
		`{"analysis": "no actions key"}`,
		"",
	} {
		_, err := DecodePlan(payload)
		assert.Error(t, err, "payload: %s", payload)
	}
}

func TestActionsFromPlan_DropsInvalidElements(t *testing.T) {
	p := New(zaptest.NewLogger(t))

	plan := schemas.Plan{
		Actions: []schemas.PlanAction{
			{Action: "click", Parameters: map[string]any{"target": "OK"}, Confidence: 0.9},
			{Action: "explode", Parameters: map[string]any{}},
			{Action: "type", Parameters: map[string]any{"text": "hi"}, Confidence: 0.8},
			{Action: "wait", Parameters: map[string]any{}},
		},
	}

	actions, warnings := p.ActionsFromPlan(plan)
	require.Len(t, actions, 2, "invalid elements are dropped, valid ones kept")
	assert.Equal(t, schemas.ActionClick, actions[0].Kind)
	assert.Equal(t, schemas.ActionTypeText, actions[1].Kind)

	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "explode")
	assert.Contains(t, warnings[1], "duration")
}

func TestActionsFromPlan_DefaultsConfidence(t *testing.T) {
	p := New(zaptest.NewLogger(t))

	actions, warnings := p.ActionsFromPlan(schemas.Plan{
		Actions: []schemas.PlanAction{
			{Action: "screenshot"},
		},
	})
	require.Empty(t, warnings)
	require.Len(t, actions, 1)
	assert.Equal(t, 0.9, actions[0].Confidence)
}

func TestActionsFromPlan_NormalizesKindCase(t *testing.T) {
	p := New(zaptest.NewLogger(t))

	actions, _ := p.ActionsFromPlan(schemas.Plan{
		Actions: []schemas.PlanAction{
			{Action: " Click ", Parameters: map[string]any{"target": "OK"}},
		},
	})
	require.Len(t, actions, 1)
	assert.Equal(t, schemas.ActionClick, actions[0].Kind)
}
