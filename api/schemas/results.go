package schemas

import (
	"time"
)

// Screenshot is one captured frame of the screen. The payload is an encoded
// PNG. Screenshots are immutable once captured; the pipeline only ever
// replaces them with newer frames.
type Screenshot struct {
	PNG        []byte    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Rect is a pixel-space bounding region.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the midpoint of the region.
func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// OCRFragment is a single recognized run of text with its bounding region and
// per-fragment confidence in [0,1].
type OCRFragment struct {
	Text       string  `json:"text"`
	Region     Rect    `json:"region"`
	Confidence float64 `json:"confidence"`
}

// OCRResult is the read-only product of one recognition pass over a
// screenshot.
type OCRResult struct {
	Fragments  []OCRFragment `json:"fragments"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Languages  []string      `json:"languages,omitempty"`
}

// Empty reports whether recognition produced no usable text.
func (r OCRResult) Empty() bool {
	return len(r.Fragments) == 0 && r.Text == ""
}

// ExecutionResult records the outcome of one attempted action. Immutable once
// created; the processor appends it to the run-scoped log in plan order.
type ExecutionResult struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Action    Action         `json:"action"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// PlanSource identifies which tier of the planning fallback produced the
// action plan for a run.
type PlanSource string

const (
	// PlanSourceAI means the LLM returned a well-formed structured plan.
	PlanSourceAI PlanSource = "ai"
	// PlanSourceDegraded means the LLM response failed strict decoding and
	// actions were mined from its free text.
	PlanSourceDegraded PlanSource = "ai_degraded"
	// PlanSourceRules means the rule-based parser handled the raw instruction.
	PlanSourceRules PlanSource = "rules"
	// PlanSourceNone means no plan was produced at all.
	PlanSourceNone PlanSource = "none"
)

// AIInformed reports whether the plan incorporated LLM output.
func (s PlanSource) AIInformed() bool {
	return s == PlanSourceAI || s == PlanSourceDegraded
}

// ProcessingResult aggregates one full pipeline run. Success is true if and
// only if at least one action was attempted and every attempt succeeded.
type ProcessingResult struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Results     []ExecutionResult `json:"results"`
	Screenshots []Screenshot      `json:"-"`
	AIAnalysis  string            `json:"ai_analysis,omitempty"`
	PlanSource  PlanSource        `json:"plan_source"`
	Confidence  float64           `json:"confidence"`
}

// SucceededCount returns how many attempted actions completed successfully.
func (r ProcessingResult) SucceededCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}
