package schemas

import (
	"fmt"
	"math"
)

// ActionKind identifies a primitive UI action. The set is closed: the parser,
// the safety validator and the executor all switch over these constants, so a
// new kind must be added to every switch in lockstep.
type ActionKind string

const (
	ActionClick      ActionKind = "click"
	ActionTypeText   ActionKind = "type"
	ActionScroll     ActionKind = "scroll"
	ActionPressKey   ActionKind = "press_key"
	ActionDrag       ActionKind = "drag"
	ActionScreenshot ActionKind = "screenshot"
	ActionWait       ActionKind = "wait"
	ActionFindText   ActionKind = "find_text"
)

// AllActionKinds lists every supported kind in a stable order.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionClick, ActionTypeText, ActionScroll, ActionPressKey,
		ActionDrag, ActionScreenshot, ActionWait, ActionFindText,
	}
}

// Valid reports whether k is a member of the closed kind set.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionClick, ActionTypeText, ActionScroll, ActionPressKey,
		ActionDrag, ActionScreenshot, ActionWait, ActionFindText:
		return true
	}
	return false
}

// MutatesScreen reports whether executing this kind plausibly changes the
// visible screen state, which forces a fresh capture before any later action
// that resolves targets against OCR text.
func (k ActionKind) MutatesScreen() bool {
	switch k {
	case ActionClick, ActionTypeText, ActionScroll, ActionPressKey, ActionDrag:
		return true
	}
	return false
}

// Action is one planned primitive operation. Parameters carries the
// kind-specific arguments described by the wire contract; an Action whose
// required parameters are missing never reaches execution.
type Action struct {
	Kind        ActionKind     `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Description string         `json:"description,omitempty"`
	Confidence  float64        `json:"confidence"`
	// SourceText preserves the raw instruction fragment or plan element the
	// action was derived from, for the audit trail.
	SourceText string `json:"source_text,omitempty"`
}

// StringParam returns the named parameter as a string, with ok=false when the
// key is absent or holds a non-string value.
func (a Action) StringParam(key string) (string, bool) {
	v, ok := a.Parameters[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntParam returns the named parameter as an int. JSON decoding yields
// float64 for all numbers, so both representations are accepted.
func (a Action) IntParam(key string) (int, bool) {
	switch v := a.Parameters[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// FloatParam returns the named parameter as a float64.
func (a Action) FloatParam(key string) (float64, bool) {
	switch v := a.Parameters[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (a Action) hasString(key string) bool {
	s, ok := a.StringParam(key)
	return ok && s != ""
}

func (a Action) hasInt(key string) bool {
	_, ok := a.IntParam(key)
	return ok
}

// ValidateParameters checks that Parameters contains the arguments the kind
// requires. It mirrors the wire contract:
//
//	click       target OR x,y
//	type        text
//	scroll      direction (amount defaults to 1)
//	press_key   key
//	drag        source,target OR x1,y1,x2,y2
//	screenshot  none
//	wait        duration
//	find_text   text
func (a Action) ValidateParameters() error {
	switch a.Kind {
	case ActionClick:
		if a.hasString("target") || (a.hasInt("x") && a.hasInt("y")) {
			return nil
		}
		return fmt.Errorf("click requires a target label or x,y coordinates")
	case ActionTypeText:
		if a.hasString("text") {
			return nil
		}
		return fmt.Errorf("type requires a text parameter")
	case ActionScroll:
		if dir, ok := a.StringParam("direction"); ok {
			switch dir {
			case "up", "down", "left", "right":
				return nil
			}
			return fmt.Errorf("scroll direction %q is not one of up/down/left/right", dir)
		}
		return fmt.Errorf("scroll requires a direction parameter")
	case ActionPressKey:
		if a.hasString("key") {
			return nil
		}
		return fmt.Errorf("press_key requires a key parameter")
	case ActionDrag:
		if a.hasString("source") && a.hasString("target") {
			return nil
		}
		if a.hasInt("x1") && a.hasInt("y1") && a.hasInt("x2") && a.hasInt("y2") {
			return nil
		}
		return fmt.Errorf("drag requires source,target labels or x1,y1,x2,y2 coordinates")
	case ActionScreenshot:
		return nil
	case ActionWait:
		if d, ok := a.FloatParam("duration"); ok {
			if d <= 0 {
				return fmt.Errorf("wait duration must be positive, got %v", d)
			}
			return nil
		}
		return fmt.Errorf("wait requires a duration parameter")
	case ActionFindText:
		if a.hasString("text") {
			return nil
		}
		return fmt.Errorf("find_text requires a text parameter")
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

// ParameterSummary renders a compact, order-stable description of the
// parameters for audit entries. Text values are truncated so audit lines stay
// bounded even for long type payloads.
func (a Action) ParameterSummary() string {
	const maxValueLen = 64
	keys := []string{
		"target", "text", "x", "y", "direction", "amount", "key",
		"source", "x1", "y1", "x2", "y2", "duration", "use_coordinates",
	}
	out := ""
	for _, k := range keys {
		v, ok := a.Parameters[k]
		if !ok {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if len(s) > maxValueLen {
			s = s[:maxValueLen] + "..."
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", k, s)
	}
	return out
}
