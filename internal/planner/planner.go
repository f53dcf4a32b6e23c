// File: internal/planner/planner.go
package planner

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/parser"
)

// Planner produces an action plan for one instruction, preferring the LLM
// and degrading through the fallback tiers:
//
//	1. structured LLM plan
//	2. keyword mining of a malformed LLM response
//	3. rule-based parse of the original instruction
//
// A failed LLM call is never retried within a run; provider-side retry is
// the client's concern. The planner always returns some outcome, possibly an
// empty plan.
type Planner struct {
	llm    schemas.LLMClient
	parser *parser.Parser
	logger *zap.Logger

	temperature float32
}

// Outcome is the result of one planning pass.
type Outcome struct {
	Actions  []schemas.Action
	Source   schemas.PlanSource
	Analysis string
	Warnings []string
}

// New creates a Planner. llm may be nil, in which case every plan is
// rule-based.
func New(llm schemas.LLMClient, p *parser.Parser, temperature float32, logger *zap.Logger) *Planner {
	return &Planner{
		llm:         llm,
		parser:      p,
		logger:      logger.Named("planner"),
		temperature: temperature,
	}
}

// Plan builds an action plan for the instruction given the latest OCR text.
func (p *Planner) Plan(ctx context.Context, instruction string, ocr schemas.OCRResult) Outcome {
	if p.llm == nil {
		return p.ruleBased(instruction, nil)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(instruction, ocr.Text),
		Options: schemas.GenerationOptions{
			Temperature:     p.temperature,
			ForceJSONFormat: true,
		},
	}

	response, err := p.llm.Generate(ctx, req)
	if err != nil || strings.TrimSpace(response) == "" {
		p.logger.Warn("LLM call failed, falling back to rule-based parsing", zap.Error(err))
		return p.ruleBased(instruction, []string{"llm unavailable: fell back to rules"})
	}

	plan, decodeErr := parser.DecodePlan(response)
	if decodeErr == nil {
		actions, warnings := p.parser.ActionsFromPlan(plan)
		return Outcome{
			Actions:  actions,
			Source:   schemas.PlanSourceAI,
			Analysis: planAnalysis(plan),
			Warnings: warnings,
		}
	}

	p.logger.Warn("LLM response failed strict decoding, mining free text", zap.Error(decodeErr))
	if mined := mineActions(response); len(mined) > 0 {
		return Outcome{
			Actions:  mined,
			Source:   schemas.PlanSourceDegraded,
			Analysis: response,
			Warnings: []string{"llm response was not a structured plan: used degraded text extraction"},
		}
	}

	// The degraded tier found nothing; parse the original instruction, not
	// the model's response.
	return p.ruleBased(instruction, []string{"llm response unusable: fell back to rules"})
}

func (p *Planner) ruleBased(instruction string, warnings []string) Outcome {
	return Outcome{
		Actions:  p.parser.ParseInstruction(instruction),
		Source:   schemas.PlanSourceRules,
		Warnings: warnings,
	}
}

func planAnalysis(plan schemas.Plan) string {
	if plan.Explanation != "" {
		return plan.Explanation
	}
	return plan.Analysis
}

const minedConfidence = 0.7

// mineActions scans a free-text LLM response line by line for the two
// recognized action-indicating keyword classes (click and type) and
// synthesizes low-confidence actions from matching lines. This tier is
// intentionally this narrow; lines matching no keyword are ignored.
func mineActions(response string) []schemas.Action {
	var actions []schemas.Action
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(line, "点击") || strings.Contains(lower, "click"):
			actions = append(actions, schemas.Action{
				Kind: schemas.ActionClick,
				Parameters: map[string]any{
					"target":          line,
					"use_coordinates": false,
				},
				Description: line,
				Confidence:  minedConfidence,
				SourceText:  line,
			})
		case strings.Contains(line, "输入") || strings.Contains(lower, "type"):
			actions = append(actions, schemas.Action{
				Kind:        schemas.ActionTypeText,
				Parameters:  map[string]any{"text": line},
				Description: line,
				Confidence:  minedConfidence,
				SourceText:  line,
			})
		}
	}
	return actions
}
