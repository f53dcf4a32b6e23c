// File: internal/parser/plan.go
package parser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodePlan strictly decodes an LLM response as the structured plan schema.
// The payload must be a JSON object with analysis/intent/actions/explanation
// keys; anything else is an error and the caller falls through to the
// degraded tiers. Code fences around the JSON are tolerated since models
// add them habitually.
func DecodePlan(payload string) (schemas.Plan, error) {
	payload = stripCodeFence(payload)

	var plan schemas.Plan
	if err := json.UnmarshalFromString(payload, &plan); err != nil {
		return schemas.Plan{}, fmt.Errorf("response is not a structured plan: %w", err)
	}
	if plan.Actions == nil {
		return schemas.Plan{}, fmt.Errorf("response is missing the actions sequence")
	}
	return plan, nil
}

// ActionsFromPlan converts plan elements into validated actions. Elements
// with an unrecognized kind or missing required parameters are dropped and
// reported as warnings; the rest of the plan proceeds. Decoding never
// executes anything.
func (p *Parser) ActionsFromPlan(plan schemas.Plan) ([]schemas.Action, []string) {
	actions := make([]schemas.Action, 0, len(plan.Actions))
	var warnings []string

	for i, el := range plan.Actions {
		kind := schemas.ActionKind(strings.ToLower(strings.TrimSpace(el.Action)))
		if !kind.Valid() {
			warnings = append(warnings, fmt.Sprintf("action %d: unknown kind %q dropped", i, el.Action))
			continue
		}

		params := el.Parameters
		if params == nil {
			params = map[string]any{}
		}
		a := schemas.Action{
			Kind:        kind,
			Parameters:  params,
			Description: el.Description,
			Confidence:  el.Confidence,
			SourceText:  fmt.Sprintf("plan[%d]", i),
		}
		if a.Confidence == 0 {
			a.Confidence = matchedConfidence
		}
		if err := a.ValidateParameters(); err != nil {
			warnings = append(warnings, fmt.Sprintf("action %d (%s): %v, dropped", i, kind, err))
			continue
		}
		actions = append(actions, a)
	}

	if len(warnings) > 0 {
		p.logger.Warn("Structured plan contained invalid elements",
			zap.Int("kept", len(actions)),
			zap.Strings("warnings", warnings),
		)
	}
	return actions, warnings
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
