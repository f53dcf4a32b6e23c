package schemas

// -- AI planning wire contract --

// Plan is the structured response schema the LLM is instructed to produce.
// Any response that does not decode to this shape triggers the degraded and
// rule-based fallback tiers.
type Plan struct {
	Analysis    string       `json:"analysis"`
	Intent      string       `json:"intent"`
	Actions     []PlanAction `json:"actions"`
	Explanation string       `json:"explanation"`
}

// PlanAction is one element of the structured plan's action sequence.
type PlanAction struct {
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
}

// GenerationOptions tune a single LLM call.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}

// GenerationRequest carries the prompts for one LLM call.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}
