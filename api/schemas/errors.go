package schemas

import (
	"errors"
	"fmt"
)

// Error taxonomy for one pipeline run. Only ErrCapture, safety violations and
// ErrExecution abort a run; OCR, LLM and parse failures degrade gracefully.
var (
	// ErrCapture means the screen could not be captured. Fatal: the run
	// aborts with no fallback.
	ErrCapture = errors.New("screen capture failed")
	// ErrOCR means text recognition failed. Recovered locally: the analyze
	// stage proceeds with empty OCR text.
	ErrOCR = errors.New("ocr recognition failed")
	// ErrLLM covers provider unavailability, timeouts and malformed content.
	// Recovered locally through the planning fallback tiers.
	ErrLLM = errors.New("llm provider failed")
	// ErrParse means no detector matched the instruction. Non-fatal: the run
	// returns an empty "nothing to do" result.
	ErrParse = errors.New("no action matched instruction")
	// ErrExecution means a validated action's primitive call failed. Fatal:
	// the run aborts, returning partial results.
	ErrExecution = errors.New("action execution failed")
)

// SafetyReason is the machine-readable code attached to a validator
// rejection.
type SafetyReason string

const (
	ReasonDisallowedKind   SafetyReason = "disallowed_kind"
	ReasonDangerousContent SafetyReason = "dangerous_content"
	ReasonRateLimited      SafetyReason = "rate_limited"
	ReasonOutOfBounds      SafetyReason = "out_of_bounds"
	ReasonOversizedInput   SafetyReason = "oversized_input"
)

// ErrSafety is the sentinel all safety violations unwrap to.
var ErrSafety = errors.New("safety violation")

// SafetyViolation is a validator rejection. It halts the run immediately and
// is surfaced verbatim to the caller, never retried.
type SafetyViolation struct {
	Reason SafetyReason
	Detail string
}

func (v *SafetyViolation) Error() string {
	if v.Detail == "" {
		return fmt.Sprintf("safety violation (%s)", v.Reason)
	}
	return fmt.Sprintf("safety violation (%s): %s", v.Reason, v.Detail)
}

// Unwrap lets errors.Is(err, ErrSafety) match any violation.
func (v *SafetyViolation) Unwrap() error { return ErrSafety }
