// File: internal/screen/cdp_test.go
package screen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// newStubDriver builds a driver whose run hook records dispatched actions
// instead of talking to a browser.
func newStubDriver(t *testing.T, runErr error) (*CDPDriver, *[][]chromedp.Action) {
	t.Helper()
	var dispatched [][]chromedp.Action
	d := &CDPDriver{
		browserCtx:  context.Background(),
		cancelCtx:   func() {},
		cancelAlloc: func() {},
		cfg: config.ScreenConfig{
			Width: 1280, Height: 800,
			DragDuration: 12 * time.Millisecond,
		},
		logger: zaptest.NewLogger(t),
		run: func(_ context.Context, actions ...chromedp.Action) error {
			dispatched = append(dispatched, actions)
			return runErr
		},
	}
	return d, &dispatched
}

func TestClick_DispatchesPressAndRelease(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	require.NoError(t, d.Click(context.Background(), 10, 20))
	require.Len(t, *dispatched, 1)
	assert.Len(t, (*dispatched)[0], 2, "one press, one release")
}

func TestScroll_DispatchesOneEventPerNotch(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	require.NoError(t, d.Scroll(context.Background(), "down", 3))
	require.Len(t, *dispatched, 1)
	assert.Len(t, (*dispatched)[0], 3)
}

func TestScroll_DefaultsAmountToOne(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	require.NoError(t, d.Scroll(context.Background(), "up", 0))
	require.Len(t, *dispatched, 1)
	assert.Len(t, (*dispatched)[0], 1)
}

func TestScroll_RejectsUnknownDirection(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	err := d.Scroll(context.Background(), "diagonal", 1)
	require.Error(t, err)
	assert.Empty(t, *dispatched)
}

func TestDrag_InterpolatesMovement(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	require.NoError(t, d.Drag(context.Background(), 0, 0, 100, 100))
	require.Len(t, *dispatched, 1)
	// press + 12 moves with sleeps + release
	assert.Greater(t, len((*dispatched)[0]), 10)
}

func TestCapture_FallsBackToViewportDimensions(t *testing.T) {
	d, _ := newStubDriver(t, nil)

	// The stub never fills the frame buffer, so decoding fails and the
	// configured viewport dimensions are used.
	shot, err := d.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1280, shot.Width)
	assert.Equal(t, 800, shot.Height)
	assert.False(t, shot.CapturedAt.IsZero())
}

func TestCapture_WrapsDriverError(t *testing.T) {
	d, _ := newStubDriver(t, errors.New("target crashed"))

	_, err := d.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrCapture))
}

func TestPressKey_MapsNamedKeys(t *testing.T) {
	d, dispatched := newStubDriver(t, nil)

	for _, key := range []string{"Return", "Tab", "space", "BackSpace", "Delete", "Escape", "a"} {
		require.NoError(t, d.PressKey(context.Background(), key), key)
	}
	assert.Len(t, *dispatched, 7)
}

func TestRunWith_HonorsCallerCancellation(t *testing.T) {
	d, _ := newStubDriver(t, nil)
	d.run = func(ctx context.Context, _ ...chromedp.Action) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Click(ctx, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
