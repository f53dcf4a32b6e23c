// File: internal/safety/validator.go
package safety

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/audit"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// Recorder receives the validator's decisions. Satisfied by *audit.Trail.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Validator enforces the safety policy on every action before it reaches the
// executor. The checks run in a fixed order (kind allow-list, content
// denylist, rate limit, coordinate bounds, input size, then the non-fatal
// wait clamp) and the first failure wins. A rejection is final for the run;
// there is no retry or rollback for already-executed actions.
//
// Every decision, allow or reject, is written to the audit trail before the
// caller may execute the action.
type Validator struct {
	allowed  map[schemas.ActionKind]struct{}
	denylist []string
	maxWait  time.Duration
	policy   config.SafetyConfig
	trail    Recorder
	logger   *zap.Logger
	now      func() time.Time

	// Admission timestamps inside the trailing rate window. Shared across
	// every run in the session; guarded so concurrent Validate calls cannot
	// race the count-then-admit sequence.
	mu         sync.Mutex
	admissions []time.Time
}

// NewValidator builds a validator from the safety policy. trail may be nil,
// in which case decisions are only logged.
func NewValidator(policy config.SafetyConfig, trail Recorder, logger *zap.Logger) *Validator {
	allowed := make(map[schemas.ActionKind]struct{}, len(policy.AllowedActions))
	for _, name := range policy.AllowedActions {
		allowed[schemas.ActionKind(strings.ToLower(strings.TrimSpace(name)))] = struct{}{}
	}
	deny := make([]string, 0, len(policy.Denylist))
	for _, pattern := range policy.Denylist {
		if pattern = strings.ToLower(strings.TrimSpace(pattern)); pattern != "" {
			deny = append(deny, pattern)
		}
	}

	return &Validator{
		allowed:  allowed,
		denylist: deny,
		maxWait:  policy.MaxWait,
		policy:   policy,
		trail:    trail,
		logger:   logger.Named("safety"),
		now:      time.Now,
	}
}

// CheckInstruction pre-screens raw instruction text before any parsing or
// model call. Oversized or denylisted instructions are rejected outright so
// they never reach the planner.
func (v *Validator) CheckInstruction(ctx context.Context, instruction string) error {
	if max := v.policy.MaxInstructionLen; max > 0 && utf8.RuneCountInString(instruction) > max {
		violation := &schemas.SafetyViolation{
			Reason: schemas.ReasonOversizedInput,
			Detail: fmt.Sprintf("instruction exceeds %d characters", max),
		}
		v.record(ctx, audit.Entry{
			Event:             audit.EventSafetyCheck,
			ValidatorDecision: "rejected",
			Reason:            string(violation.Reason),
			Message:           violation.Detail,
		})
		return violation
	}
	if pattern := v.denylistHit(instruction); pattern != "" {
		violation := &schemas.SafetyViolation{
			Reason: schemas.ReasonDangerousContent,
			Detail: fmt.Sprintf("instruction matches denylisted pattern %q", pattern),
		}
		v.record(ctx, audit.Entry{
			Event:             audit.EventSafetyCheck,
			ValidatorDecision: "rejected",
			Reason:            string(violation.Reason),
			Message:           violation.Detail,
		})
		return violation
	}
	return nil
}

// Validate applies the policy to one action. On success it returns the
// action, possibly adjusted (wait durations are clamped to the configured
// maximum rather than rejected). On failure the returned error is a
// *schemas.SafetyViolation and the action must not be executed.
func (v *Validator) Validate(ctx context.Context, a schemas.Action) (schemas.Action, error) {
	if violation := v.check(&a); violation != nil {
		v.record(ctx, audit.Entry{
			Event:             audit.EventSafetyCheck,
			ActionKind:        string(a.Kind),
			ParametersSum:     a.ParameterSummary(),
			ValidatorDecision: "rejected",
			Reason:            string(violation.Reason),
			Message:           violation.Detail,
		})
		v.logger.Warn("Action rejected",
			zap.String("kind", string(a.Kind)),
			zap.String("reason", string(violation.Reason)),
			zap.String("detail", violation.Detail),
		)
		return a, violation
	}

	v.record(ctx, audit.Entry{
		Event:             audit.EventSafetyCheck,
		ActionKind:        string(a.Kind),
		ParametersSum:     a.ParameterSummary(),
		ValidatorDecision: "allowed",
	})
	return a, nil
}

// check runs the policy checks in order, mutating a in place for the
// non-fatal wait clamp.
func (v *Validator) check(a *schemas.Action) *schemas.SafetyViolation {
	if _, ok := v.allowed[a.Kind]; !ok {
		return &schemas.SafetyViolation{
			Reason: schemas.ReasonDisallowedKind,
			Detail: fmt.Sprintf("action kind %q is not in the allow-list", a.Kind),
		}
	}

	for _, key := range []string{"text", "target", "source", "key"} {
		s, ok := a.StringParam(key)
		if !ok {
			continue
		}
		if pattern := v.denylistHit(s); pattern != "" {
			return &schemas.SafetyViolation{
				Reason: schemas.ReasonDangerousContent,
				Detail: fmt.Sprintf("parameter %q matches denylisted pattern %q", key, pattern),
			}
		}
	}

	if v.rateLimited() {
		return &schemas.SafetyViolation{
			Reason: schemas.ReasonRateLimited,
			Detail: fmt.Sprintf("more than %d actions within %s", v.policy.RateLimitMax, v.policy.RateLimitWindow),
		}
	}

	if violation := v.checkBounds(a); violation != nil {
		return violation
	}

	if a.Kind == schemas.ActionTypeText {
		if text, ok := a.StringParam("text"); ok {
			if max := v.policy.MaxTypeLength; max > 0 && utf8.RuneCountInString(text) > max {
				return &schemas.SafetyViolation{
					Reason: schemas.ReasonOversizedInput,
					Detail: fmt.Sprintf("type text exceeds %d characters", max),
				}
			}
		}
	}

	if a.Kind == schemas.ActionWait {
		if d, ok := a.FloatParam("duration"); ok {
			if limit := v.maxWait.Seconds(); d > limit {
				v.logger.Info("Clamping wait duration",
					zap.Float64("requested", d),
					zap.Float64("limit", limit),
				)
				a.Parameters["duration"] = limit
			}
		}
	}
	return nil
}

// rateLimited reports whether admitting one more action would exceed the
// per-window threshold. The window slides: only admissions inside the
// trailing RateLimitWindow count, so a budget spent at the start of a window
// is not restored until those admissions age out. Rejected attempts do not
// consume budget.
func (v *Validator) rateLimited() bool {
	max := v.policy.RateLimitMax
	if max <= 0 {
		return false
	}
	now := v.now()
	cutoff := now.Add(-v.policy.RateLimitWindow)

	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.admissions[:0]
	for _, ts := range v.admissions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	v.admissions = kept
	if len(v.admissions) >= max {
		return true
	}
	v.admissions = append(v.admissions, now)
	return false
}

// checkBounds rejects coordinate parameters outside the configured screen
// envelope. Label-based actions have no coordinates to check.
func (v *Validator) checkBounds(a *schemas.Action) *schemas.SafetyViolation {
	pairs := [][2]string{{"x", "y"}, {"x1", "y1"}, {"x2", "y2"}}
	for _, pair := range pairs {
		x, okX := a.IntParam(pair[0])
		y, okY := a.IntParam(pair[1])
		if !okX && !okY {
			continue
		}
		if x < 0 || y < 0 || (v.policy.MaxX > 0 && x > v.policy.MaxX) || (v.policy.MaxY > 0 && y > v.policy.MaxY) {
			return &schemas.SafetyViolation{
				Reason: schemas.ReasonOutOfBounds,
				Detail: fmt.Sprintf("coordinates (%d,%d) outside 0..%dx0..%d", x, y, v.policy.MaxX, v.policy.MaxY),
			}
		}
	}
	return nil
}

func (v *Validator) denylistHit(s string) string {
	lower := strings.ToLower(s)
	for _, pattern := range v.denylist {
		if strings.Contains(lower, pattern) {
			return pattern
		}
	}
	return ""
}

func (v *Validator) record(ctx context.Context, e audit.Entry) {
	if v.trail == nil {
		return
	}
	if err := v.trail.Record(ctx, e); err != nil {
		v.logger.Error("Failed to record safety decision", zap.Error(err))
	}
}
