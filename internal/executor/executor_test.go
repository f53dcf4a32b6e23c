// File: internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
)

// fakeDriver records primitive calls and can be told to fail.
type fakeDriver struct {
	calls []string
	err   error
	shot  schemas.Screenshot
}

func (f *fakeDriver) Capture(context.Context) (schemas.Screenshot, error) {
	f.calls = append(f.calls, "capture")
	return f.shot, f.err
}

func (f *fakeDriver) Size(context.Context) (int, int, error) { return 1280, 800, f.err }

func (f *fakeDriver) Click(_ context.Context, x, y int) error {
	f.calls = append(f.calls, "click")
	return f.err
}

func (f *fakeDriver) TypeText(_ context.Context, text string) error {
	f.calls = append(f.calls, "type:"+text)
	return f.err
}

func (f *fakeDriver) Scroll(_ context.Context, direction string, amount int) error {
	f.calls = append(f.calls, "scroll:"+direction)
	return f.err
}

func (f *fakeDriver) PressKey(_ context.Context, key string) error {
	f.calls = append(f.calls, "press:"+key)
	return f.err
}

func (f *fakeDriver) Drag(_ context.Context, fromX, fromY, toX, toY int) error {
	f.calls = append(f.calls, "drag")
	return f.err
}

func ocrWith(fragments ...schemas.OCRFragment) schemas.OCRResult {
	return schemas.OCRResult{Fragments: fragments}
}

func newTestExecutor(t *testing.T, driver *fakeDriver) *Executor {
	t.Helper()
	return New(driver, zaptest.NewLogger(t))
}

func TestExecute_ClickByCoordinates(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionClick,
		Parameters: map[string]any{"x": 100, "y": 200, "use_coordinates": true},
	}, schemas.OCRResult{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"click"}, driver.calls)
	assert.Equal(t, 100, res.Data["x"])
	assert.Equal(t, 200, res.Data["y"])
}

func TestExecute_ClickResolvesLabelViaOCR(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)

	ocr := ocrWith(
		schemas.OCRFragment{Text: "Cancel", Region: schemas.Rect{X: 10, Y: 10, W: 40, H: 20}},
		schemas.OCRFragment{Text: "Login", Region: schemas.Rect{X: 100, Y: 50, W: 60, H: 20}},
	)
	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionClick,
		Parameters: map[string]any{"target": "login", "use_coordinates": false},
	}, ocr)

	require.True(t, res.Success, res.Error)
	// Center of the Login fragment.
	assert.Equal(t, 130, res.Data["x"])
	assert.Equal(t, 60, res.Data["y"])
}

func TestExecute_ClickTargetNotFound(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionClick,
		Parameters: map[string]any{"target": "Missing", "use_coordinates": false},
	}, ocrWith(schemas.OCRFragment{Text: "Other"}))

	assert.False(t, res.Success)
	assert.Empty(t, driver.calls, "no primitive call on resolution failure")
	assert.Contains(t, res.Error, "not found")
}

func TestExecute_TypeScrollPressKey(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)
	ctx := context.Background()

	res := e.Execute(ctx, schemas.Action{
		Kind:       schemas.ActionTypeText,
		Parameters: map[string]any{"text": "hello"},
	}, schemas.OCRResult{})
	require.True(t, res.Success)

	res = e.Execute(ctx, schemas.Action{
		Kind:       schemas.ActionScroll,
		Parameters: map[string]any{"direction": "down", "amount": 3},
	}, schemas.OCRResult{})
	require.True(t, res.Success)

	res = e.Execute(ctx, schemas.Action{
		Kind:       schemas.ActionPressKey,
		Parameters: map[string]any{"key": "Return"},
	}, schemas.OCRResult{})
	require.True(t, res.Success)

	assert.Equal(t, []string{"type:hello", "scroll:down", "press:Return"}, driver.calls)
}

func TestExecute_DragByLabels(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)

	ocr := ocrWith(
		schemas.OCRFragment{Text: "file.txt", Region: schemas.Rect{X: 0, Y: 0, W: 20, H: 20}},
		schemas.OCRFragment{Text: "Trash", Region: schemas.Rect{X: 200, Y: 200, W: 20, H: 20}},
	)
	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionDrag,
		Parameters: map[string]any{"source": "file.txt", "target": "Trash"},
	}, ocr)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"drag"}, driver.calls)
}

func TestExecute_ScreenshotAttachesFrame(t *testing.T) {
	driver := &fakeDriver{shot: schemas.Screenshot{PNG: []byte{1, 2, 3}, Width: 10, Height: 10}}
	e := newTestExecutor(t, driver)

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionScreenshot,
		Parameters: map[string]any{},
	}, schemas.OCRResult{})

	require.True(t, res.Success)
	shot, ok := res.Data["screenshot"].(schemas.Screenshot)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, shot.PNG)
}

func TestExecute_WaitHonorsContext(t *testing.T) {
	e := newTestExecutor(t, &fakeDriver{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := e.Execute(ctx, schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 10.0},
	}, schemas.OCRResult{})

	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 2*time.Second, "wait must abort on cancellation")
}

func TestExecute_Wait(t *testing.T) {
	e := newTestExecutor(t, &fakeDriver{})

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 0.01},
	}, schemas.OCRResult{})
	assert.True(t, res.Success)
}

func TestExecute_FindText(t *testing.T) {
	e := newTestExecutor(t, &fakeDriver{})

	ocr := ocrWith(schemas.OCRFragment{Text: "Settings", Region: schemas.Rect{X: 50, Y: 50, W: 80, H: 20}})

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionFindText,
		Parameters: map[string]any{"text": "settings"},
	}, ocr)
	require.True(t, res.Success)
	assert.Equal(t, true, res.Data["found"])

	res = e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionFindText,
		Parameters: map[string]any{"text": "nonexistent"},
	}, ocr)
	assert.False(t, res.Success)
}

func TestExecute_DriverErrorIsFailure(t *testing.T) {
	driver := &fakeDriver{err: errors.New("browser crashed")}
	e := newTestExecutor(t, driver)

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionTypeText,
		Parameters: map[string]any{"text": "hi"},
	}, schemas.OCRResult{})

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "browser crashed")
	assert.Contains(t, res.Error, schemas.ErrExecution.Error())
}

func TestStats(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExecutor(t, driver)
	ctx := context.Background()

	e.Execute(ctx, schemas.Action{Kind: schemas.ActionTypeText, Parameters: map[string]any{"text": "a"}}, schemas.OCRResult{})
	e.Execute(ctx, schemas.Action{Kind: schemas.ActionTypeText, Parameters: map[string]any{"text": "b"}}, schemas.OCRResult{})
	e.Execute(ctx, schemas.Action{Kind: schemas.ActionFindText, Parameters: map[string]any{"text": "x"}}, schemas.OCRResult{})

	stats := e.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.PerKind[schemas.ActionTypeText])
	assert.Equal(t, 1, stats.PerKind[schemas.ActionFindText])
}

func TestExecute_ResultTimingPopulated(t *testing.T) {
	e := newTestExecutor(t, &fakeDriver{})

	res := e.Execute(context.Background(), schemas.Action{
		Kind:       schemas.ActionWait,
		Parameters: map[string]any{"duration": 0.01},
	}, schemas.OCRResult{})

	assert.False(t, res.Timestamp.IsZero())
	assert.GreaterOrEqual(t, res.Duration, 10*time.Millisecond)
	assert.Equal(t, schemas.ActionWait, res.Action.Kind)
}
