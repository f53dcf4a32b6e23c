// File: internal/safety/validator_test.go
package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/audit"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// memoryRecorder captures audit entries in order.
type memoryRecorder struct {
	entries []audit.Entry
}

func (m *memoryRecorder) Record(_ context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func testPolicy() config.SafetyConfig {
	return config.SafetyConfig{
		AllowedActions:    []string{"click", "type", "scroll", "press_key", "screenshot", "wait", "find_text"},
		Denylist:          []string{"rm -rf", "password", "shutdown"},
		RateLimitWindow:   time.Minute,
		RateLimitMax:      60,
		MaxWait:           30 * time.Second,
		MaxTypeLength:     1000,
		MaxInstructionLen: 500,
		MaxX:              3840,
		MaxY:              2160,
	}
}

func newTestValidator(t *testing.T, policy config.SafetyConfig, rec Recorder) *Validator {
	t.Helper()
	return NewValidator(policy, rec, zaptest.NewLogger(t))
}

func clickAction(target string) schemas.Action {
	return schemas.Action{
		Kind:       schemas.ActionClick,
		Parameters: map[string]any{"target": target, "use_coordinates": false},
	}
}

func TestValidate_AllowsPermittedAction(t *testing.T) {
	rec := &memoryRecorder{}
	v := newTestValidator(t, testPolicy(), rec)

	out, err := v.Validate(context.Background(), clickAction("OK"))
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, out.Kind)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.EventSafetyCheck, rec.entries[0].Event)
	assert.Equal(t, "allowed", rec.entries[0].ValidatorDecision)
}

func TestValidate_RejectsDisallowedKind(t *testing.T) {
	policy := testPolicy()
	policy.AllowedActions = []string{"click"}
	rec := &memoryRecorder{}
	v := newTestValidator(t, policy, rec)

	_, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionDrag,
		Parameters: map[string]any{"x1": 1, "y1": 1, "x2": 2, "y2": 2},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrSafety))

	var violation *schemas.SafetyViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, schemas.ReasonDisallowedKind, violation.Reason)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "rejected", rec.entries[0].ValidatorDecision)
	assert.Equal(t, string(schemas.ReasonDisallowedKind), rec.entries[0].Reason)
}

func TestValidate_RejectsDangerousContent(t *testing.T) {
	v := newTestValidator(t, testPolicy(), &memoryRecorder{})

	cases := []schemas.Action{
		{Kind: schemas.ActionTypeText, Parameters: map[string]any{"text": "rm -rf /"}},
		{Kind: schemas.ActionTypeText, Parameters: map[string]any{"text": "my PASSWORD is hunter2"}},
		{Kind: schemas.ActionClick, Parameters: map[string]any{"target": "Shutdown now"}},
	}
	for _, a := range cases {
		_, err := v.Validate(context.Background(), a)
		require.Error(t, err, "parameters: %v", a.Parameters)

		var violation *schemas.SafetyViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, schemas.ReasonDangerousContent, violation.Reason)
	}
}

func TestValidate_AllowsBenignContent(t *testing.T) {
	v := newTestValidator(t, testPolicy(), &memoryRecorder{})

	_, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionTypeText,
		Parameters: map[string]any{"text": "hello world"},
	})
	assert.NoError(t, err)
}

func TestValidate_RateLimitWindow(t *testing.T) {
	policy := testPolicy()
	policy.RateLimitMax = 3
	policy.RateLimitWindow = time.Minute
	v := newTestValidator(t, policy, &memoryRecorder{})

	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := v.Validate(context.Background(), clickAction("OK"))
		require.NoError(t, err, "action %d within budget", i+1)
	}

	_, err := v.Validate(context.Background(), clickAction("OK"))
	require.Error(t, err)
	var violation *schemas.SafetyViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, schemas.ReasonRateLimited, violation.Reason)

	// After a full window the budget is restored.
	now = now.Add(time.Minute)
	_, err = v.Validate(context.Background(), clickAction("OK"))
	assert.NoError(t, err)
}

func TestValidate_RateLimitWindowSlides(t *testing.T) {
	policy := testPolicy()
	policy.RateLimitMax = 3
	policy.RateLimitWindow = time.Minute
	v := newTestValidator(t, policy, &memoryRecorder{})

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	var now time.Time
	v.now = func() time.Time { return now }

	// The budget is spent in the first three seconds; every later attempt
	// inside the same trailing window must be rejected even though time has
	// passed since the burst.
	admitted := 0
	offsets := []time.Duration{
		0, time.Second, 2 * time.Second,
		21 * time.Second, 41 * time.Second, 59 * time.Second,
	}
	for _, offset := range offsets {
		now = base.Add(offset)
		_, err := v.Validate(context.Background(), clickAction("OK"))
		if err == nil {
			admitted++
			continue
		}
		var violation *schemas.SafetyViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, schemas.ReasonRateLimited, violation.Reason)
	}
	assert.Equal(t, 3, admitted, "only the initial burst fits in one window")

	// Once the burst ages out of the trailing window, admissions resume.
	now = base.Add(time.Minute + 3*time.Second)
	_, err := v.Validate(context.Background(), clickAction("OK"))
	assert.NoError(t, err)
}

func TestValidate_RejectedAttemptsDoNotConsumeBudget(t *testing.T) {
	policy := testPolicy()
	policy.RateLimitMax = 1
	v := newTestValidator(t, policy, &memoryRecorder{})

	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	// A denylist rejection happens before the rate check and must not count
	// against the window.
	_, err := v.Validate(context.Background(), clickAction("Shutdown now"))
	require.Error(t, err)

	_, err = v.Validate(context.Background(), clickAction("OK"))
	assert.NoError(t, err)
}

func TestValidate_RateLimitPrecedesWaitClamp(t *testing.T) {
	policy := testPolicy()
	policy.RateLimitMax = 1
	v := newTestValidator(t, policy, &memoryRecorder{})

	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	_, err := v.Validate(context.Background(), clickAction("OK"))
	require.NoError(t, err)

	out, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 3600.0},
	})
	require.Error(t, err)
	var violation *schemas.SafetyViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, schemas.ReasonRateLimited, violation.Reason)

	// The rejection short-circuits before the clamp touches the action.
	d, ok := out.FloatParam("duration")
	require.True(t, ok)
	assert.Equal(t, 3600.0, d)
}

func TestValidate_ClampsExcessiveWait(t *testing.T) {
	v := newTestValidator(t, testPolicy(), &memoryRecorder{})

	out, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 3600.0},
	})
	require.NoError(t, err, "an excessive wait is clamped, not rejected")

	d, ok := out.FloatParam("duration")
	require.True(t, ok)
	assert.Equal(t, 30.0, d)
}

func TestValidate_KeepsShortWait(t *testing.T) {
	v := newTestValidator(t, testPolicy(), &memoryRecorder{})

	out, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 2.5},
	})
	require.NoError(t, err)
	d, _ := out.FloatParam("duration")
	assert.Equal(t, 2.5, d)
}

func TestValidate_RejectsOutOfBoundsCoordinates(t *testing.T) {
	v := newTestValidator(t, testPolicy(), &memoryRecorder{})

	cases := []map[string]any{
		{"x": 5000, "y": 100},
		{"x": 100, "y": 9999},
		{"x": -1, "y": 10},
	}
	for _, params := range cases {
		params["use_coordinates"] = true
		_, err := v.Validate(context.Background(), schemas.Action{
			Kind:       schemas.ActionClick,
			Parameters: params,
		})
		require.Error(t, err, "params: %v", params)

		var violation *schemas.SafetyViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, schemas.ReasonOutOfBounds, violation.Reason)
	}
}

func TestValidate_RejectsOversizedTypeText(t *testing.T) {
	policy := testPolicy()
	policy.MaxTypeLength = 10
	v := newTestValidator(t, policy, &memoryRecorder{})

	_, err := v.Validate(context.Background(), schemas.Action{
		Kind:       schemas.ActionTypeText,
		Parameters: map[string]any{"text": "this is longer than ten characters"},
	})
	require.Error(t, err)

	var violation *schemas.SafetyViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, schemas.ReasonOversizedInput, violation.Reason)
}

func TestCheckInstruction(t *testing.T) {
	policy := testPolicy()
	policy.MaxInstructionLen = 20
	rec := &memoryRecorder{}
	v := newTestValidator(t, policy, rec)

	assert.NoError(t, v.CheckInstruction(context.Background(), "点击确定"))

	err := v.CheckInstruction(context.Background(), "please type my password into the box")
	require.Error(t, err)
	var violation *schemas.SafetyViolation
	require.True(t, errors.As(err, &violation))
	// Length check runs first; this instruction trips it before the denylist.
	assert.Equal(t, schemas.ReasonOversizedInput, violation.Reason)

	err = v.CheckInstruction(context.Background(), "输入password")
	require.Error(t, err)
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, schemas.ReasonDangerousContent, violation.Reason)

	// One entry per rejection; clean instructions are not audited here.
	assert.Len(t, rec.entries, 2)
}

func TestValidate_NilRecorder(t *testing.T) {
	v := newTestValidator(t, testPolicy(), nil)
	_, err := v.Validate(context.Background(), clickAction("OK"))
	assert.NoError(t, err)
}
