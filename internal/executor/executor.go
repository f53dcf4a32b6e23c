// File: internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
)

// Stats counts executed actions for one executor lifetime.
type Stats struct {
	Total     int                       `json:"total"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	PerKind   map[schemas.ActionKind]int `json:"per_kind"`
}

// Executor maps validated actions onto screen driver primitives. It performs
// no safety checks of its own; every action it receives has already passed
// the validator. Label targets are resolved against the OCR text of the most
// recent capture, supplied by the caller per action.
type Executor struct {
	driver schemas.ScreenDriver
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an executor over the given driver.
func New(driver schemas.ScreenDriver, logger *zap.Logger) *Executor {
	return &Executor{
		driver: driver,
		logger: logger.Named("executor"),
		stats:  Stats{PerKind: make(map[schemas.ActionKind]int)},
	}
}

// Stats returns a snapshot of the execution counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := e.stats
	snapshot.PerKind = make(map[schemas.ActionKind]int, len(e.stats.PerKind))
	for k, v := range e.stats.PerKind {
		snapshot.PerKind[k] = v
	}
	return snapshot
}

// Execute performs one action and reports the outcome. It never panics on
// malformed parameters; a missing argument is a failed result. ocr is the
// recognition output for the current screen state, used to resolve label
// targets.
func (e *Executor) Execute(ctx context.Context, a schemas.Action, ocr schemas.OCRResult) schemas.ExecutionResult {
	start := time.Now()
	res := e.dispatch(ctx, a, ocr)
	res.Action = a
	res.Duration = time.Since(start)
	res.Timestamp = start

	e.mu.Lock()
	e.stats.Total++
	e.stats.PerKind[a.Kind]++
	if res.Success {
		e.stats.Succeeded++
	} else {
		e.stats.Failed++
	}
	e.mu.Unlock()

	e.logger.Debug("Action executed",
		zap.String("kind", string(a.Kind)),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (e *Executor) dispatch(ctx context.Context, a schemas.Action, ocr schemas.OCRResult) schemas.ExecutionResult {
	switch a.Kind {
	case schemas.ActionClick:
		return e.click(ctx, a, ocr)
	case schemas.ActionTypeText:
		return e.typeText(ctx, a)
	case schemas.ActionScroll:
		return e.scroll(ctx, a)
	case schemas.ActionPressKey:
		return e.pressKey(ctx, a)
	case schemas.ActionDrag:
		return e.drag(ctx, a, ocr)
	case schemas.ActionScreenshot:
		return e.screenshot(ctx)
	case schemas.ActionWait:
		return e.wait(ctx, a)
	case schemas.ActionFindText:
		return e.findText(a, ocr)
	default:
		return failure(fmt.Errorf("%w: unknown action kind %q", schemas.ErrExecution, a.Kind), "unsupported action")
	}
}

func (e *Executor) click(ctx context.Context, a schemas.Action, ocr schemas.OCRResult) schemas.ExecutionResult {
	x, y, err := e.resolvePoint(a, "x", "y", "target", ocr)
	if err != nil {
		return failure(err, "could not resolve click target")
	}
	if err := e.driver.Click(ctx, x, y); err != nil {
		return failure(fmt.Errorf("%w: %w", schemas.ErrExecution, err), "click failed")
	}
	return success(fmt.Sprintf("clicked at (%d,%d)", x, y), map[string]any{"x": x, "y": y})
}

func (e *Executor) typeText(ctx context.Context, a schemas.Action) schemas.ExecutionResult {
	text, ok := a.StringParam("text")
	if !ok || text == "" {
		return failure(fmt.Errorf("%w: type action without text", schemas.ErrExecution), "missing text parameter")
	}
	if err := e.driver.TypeText(ctx, text); err != nil {
		return failure(fmt.Errorf("%w: %w", schemas.ErrExecution, err), "typing failed")
	}
	return success(fmt.Sprintf("typed %d characters", len([]rune(text))), nil)
}

func (e *Executor) scroll(ctx context.Context, a schemas.Action) schemas.ExecutionResult {
	direction, _ := a.StringParam("direction")
	amount, ok := a.IntParam("amount")
	if !ok || amount <= 0 {
		amount = 1
	}
	if err := e.driver.Scroll(ctx, direction, amount); err != nil {
		return failure(fmt.Errorf("%w: %w", schemas.ErrExecution, err), "scroll failed")
	}
	return success(fmt.Sprintf("scrolled %s x%d", direction, amount), nil)
}

func (e *Executor) pressKey(ctx context.Context, a schemas.Action) schemas.ExecutionResult {
	key, ok := a.StringParam("key")
	if !ok || key == "" {
		return failure(fmt.Errorf("%w: press_key action without key", schemas.ErrExecution), "missing key parameter")
	}
	if err := e.driver.PressKey(ctx, key); err != nil {
		return failure(fmt.Errorf("%w: %w", schemas.ErrExecution, err), "key press failed")
	}
	return success("pressed "+key, nil)
}

func (e *Executor) drag(ctx context.Context, a schemas.Action, ocr schemas.OCRResult) schemas.ExecutionResult {
	var fromX, fromY, toX, toY int
	if x1, ok := a.IntParam("x1"); ok {
		y1, _ := a.IntParam("y1")
		x2, _ := a.IntParam("x2")
		y2, _ := a.IntParam("y2")
		fromX, fromY, toX, toY = x1, y1, x2, y2
	} else {
		source, _ := a.StringParam("source")
		target, _ := a.StringParam("target")
		sx, sy, err := locate(source, ocr)
		if err != nil {
			return failure(err, "could not resolve drag source")
		}
		tx, ty, err := locate(target, ocr)
		if err != nil {
			return failure(err, "could not resolve drag target")
		}
		fromX, fromY, toX, toY = sx, sy, tx, ty
	}

	if err := e.driver.Drag(ctx, fromX, fromY, toX, toY); err != nil {
		return failure(fmt.Errorf("%w: %w", schemas.ErrExecution, err), "drag failed")
	}
	return success(fmt.Sprintf("dragged (%d,%d) to (%d,%d)", fromX, fromY, toX, toY), nil)
}

func (e *Executor) screenshot(ctx context.Context) schemas.ExecutionResult {
	shot, err := e.driver.Capture(ctx)
	if err != nil {
		return failure(err, "screenshot failed")
	}
	return success("captured screenshot", map[string]any{"screenshot": shot})
}

func (e *Executor) wait(ctx context.Context, a schemas.Action) schemas.ExecutionResult {
	seconds, ok := a.FloatParam("duration")
	if !ok || seconds <= 0 {
		return failure(fmt.Errorf("%w: wait action without duration", schemas.ErrExecution), "missing duration parameter")
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return failure(ctx.Err(), "wait interrupted")
	case <-timer.C:
	}
	return success(fmt.Sprintf("waited %.1fs", seconds), nil)
}

// findText searches the current OCR fragments. Not finding the text is a
// failed result, not an error in the driver sense; the caller decides whether
// to continue.
func (e *Executor) findText(a schemas.Action, ocr schemas.OCRResult) schemas.ExecutionResult {
	text, ok := a.StringParam("text")
	if !ok || text == "" {
		return failure(fmt.Errorf("%w: find_text action without text", schemas.ErrExecution), "missing text parameter")
	}
	x, y, err := locate(text, ocr)
	if err != nil {
		return failure(err, fmt.Sprintf("text %q not found on screen", text))
	}
	return success(fmt.Sprintf("found %q at (%d,%d)", text, x, y), map[string]any{
		"found": true, "x": x, "y": y,
	})
}

// resolvePoint returns explicit coordinates when present, otherwise resolves
// the label parameter against the OCR fragments.
func (e *Executor) resolvePoint(a schemas.Action, xKey, yKey, labelKey string, ocr schemas.OCRResult) (int, int, error) {
	if x, ok := a.IntParam(xKey); ok {
		if y, ok := a.IntParam(yKey); ok {
			return x, y, nil
		}
	}
	label, _ := a.StringParam(labelKey)
	return locate(label, ocr)
}

// locate finds the first OCR fragment whose text contains the label,
// case-insensitively, and returns the center of its bounding region.
func locate(label string, ocr schemas.OCRResult) (int, int, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0, 0, fmt.Errorf("%w: empty target label", schemas.ErrExecution)
	}
	needle := strings.ToLower(label)
	for _, frag := range ocr.Fragments {
		if strings.Contains(strings.ToLower(frag.Text), needle) {
			x, y := frag.Region.Center()
			return x, y, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: target %q not found on screen", schemas.ErrExecution, label)
}

func success(message string, data map[string]any) schemas.ExecutionResult {
	return schemas.ExecutionResult{Success: true, Message: message, Data: data}
}

func failure(err error, message string) schemas.ExecutionResult {
	return schemas.ExecutionResult{Success: false, Message: message, Error: err.Error()}
}
