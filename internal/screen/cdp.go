// File: internal/screen/cdp.go
package screen

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// wheelDelta is the per-step scroll distance in pixels, matching the
// conventional mouse wheel notch.
const wheelDelta = 120

// CDPDriver implements schemas.ScreenDriver against a Chromium page over the
// DevTools protocol. The driven page is "the screen": captures, clicks and
// key events all target it. A driver owns its browser context and must be
// closed to release it.
type CDPDriver struct {
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         config.ScreenConfig
	logger      *zap.Logger

	// run is swapped out in tests.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

// NewCDPDriver launches (or attaches to) a browser, sizes the viewport and
// navigates to the configured target page.
func NewCDPDriver(ctx context.Context, cfg config.ScreenConfig, logger *zap.Logger) (*CDPDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	d := &CDPDriver{
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		logger:      logger.Named("screen.cdp"),
		run:         chromedp.Run,
	}

	startup := []chromedp.Action{
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
	}
	if cfg.TargetURL != "" {
		startup = append(startup, chromedp.Navigate(cfg.TargetURL))
	}

	navCtx, cancel := context.WithTimeout(browserCtx, cfg.NavTimeout)
	defer cancel()
	if err := d.run(navCtx, startup...); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	d.logger.Info("Browser session started",
		zap.String("target", cfg.TargetURL),
		zap.Bool("headless", cfg.Headless),
	)
	return d, nil
}

// Close tears down the browser context.
func (d *CDPDriver) Close() {
	d.cancelCtx()
	d.cancelAlloc()
}

// Capture returns the current frame as an encoded PNG.
func (d *CDPDriver) Capture(ctx context.Context) (schemas.Screenshot, error) {
	var buf []byte
	if err := d.runWith(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return schemas.Screenshot{}, fmt.Errorf("%w: %w", schemas.ErrCapture, err)
	}

	shot := schemas.Screenshot{
		PNG:        buf,
		Width:      d.cfg.Width,
		Height:     d.cfg.Height,
		CapturedAt: time.Now(),
	}
	// The encoded frame is authoritative for dimensions; the viewport config
	// is only the fallback when decoding fails.
	if imgCfg, err := png.DecodeConfig(bytes.NewReader(buf)); err == nil {
		shot.Width = imgCfg.Width
		shot.Height = imgCfg.Height
	}
	return shot, nil
}

// Size returns the CSS layout viewport dimensions.
func (d *CDPDriver) Size(ctx context.Context) (int, int, error) {
	var width, height int
	err := d.runWith(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		width = int(cssVisualViewport.ClientWidth)
		height = int(cssVisualViewport.ClientHeight)
		return nil
	}))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read layout metrics: %w", err)
	}
	return width, height, nil
}

// Click presses and releases the left mouse button at the coordinates.
func (d *CDPDriver) Click(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	err := d.runWith(ctx,
		mouseEvent(input.MousePressed, fx, fy),
		mouseEvent(input.MouseReleased, fx, fy),
	)
	if err != nil {
		return fmt.Errorf("click at (%d,%d) failed: %w", x, y, err)
	}
	return nil
}

// TypeText inserts the text into the focused element. Insertion bypasses
// per-character key events, so IME-composed text arrives intact.
func (d *CDPDriver) TypeText(ctx context.Context, text string) error {
	if err := d.runWith(ctx, input.InsertText(text)); err != nil {
		return fmt.Errorf("type text failed: %w", err)
	}
	return nil
}

// Scroll dispatches amount wheel notches in the given direction at the
// viewport center.
func (d *CDPDriver) Scroll(ctx context.Context, direction string, amount int) error {
	if amount <= 0 {
		amount = 1
	}
	var dx, dy float64
	switch direction {
	case "up":
		dy = -wheelDelta
	case "down":
		dy = wheelDelta
	case "left":
		dx = -wheelDelta
	case "right":
		dx = wheelDelta
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}

	cx, cy := float64(d.cfg.Width)/2, float64(d.cfg.Height)/2
	actions := make([]chromedp.Action, 0, amount)
	for i := 0; i < amount; i++ {
		actions = append(actions, input.DispatchMouseEvent(input.MouseWheel, cx, cy).
			WithDeltaX(dx).
			WithDeltaY(dy))
	}
	if err := d.runWith(ctx, actions...); err != nil {
		return fmt.Errorf("scroll %s x%d failed: %w", direction, amount, err)
	}
	return nil
}

// namedKeys maps canonical key names to the DOM key strings chromedp's kb
// package understands.
var namedKeys = map[string]string{
	"Return":    kb.Enter,
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"space":     " ",
	"BackSpace": kb.Backspace,
	"Delete":    kb.Delete,
	"Escape":    kb.Escape,
}

// PressKey sends a full key event cycle for a single key.
func (d *CDPDriver) PressKey(ctx context.Context, key string) error {
	keys, ok := namedKeys[key]
	if !ok {
		keys = key
	}
	if err := d.runWith(ctx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("press key %q failed: %w", key, err)
	}
	return nil
}

// Drag presses at the origin, moves to the destination in interpolated steps
// over the configured drag duration and releases.
func (d *CDPDriver) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	const steps = 12
	stepDelay := d.cfg.DragDuration / steps

	actions := []chromedp.Action{
		mouseEvent(input.MousePressed, float64(fromX), float64(fromY)),
	}
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		x := float64(fromX) + (float64(toX)-float64(fromX))*t
		y := float64(fromY) + (float64(toY)-float64(fromY))*t
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, x, y).WithButton(input.Left),
			chromedp.Sleep(stepDelay),
		)
	}
	actions = append(actions, mouseEvent(input.MouseReleased, float64(toX), float64(toY)))

	if err := d.runWith(ctx, actions...); err != nil {
		return fmt.Errorf("drag (%d,%d)->(%d,%d) failed: %w", fromX, fromY, toX, toY, err)
	}
	return nil
}

// runWith executes actions on the browser context while honoring the caller's
// cancellation.
func (d *CDPDriver) runWith(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeCancel(d.browserCtx, ctx)
	defer cancel()
	return d.run(runCtx, actions...)
}

func mouseEvent(kind input.MouseType, x, y float64) chromedp.Action {
	return input.DispatchMouseEvent(kind, x, y).
		WithButton(input.Left).
		WithClickCount(1)
}

// mergeCancel derives a child of the browser context that is also canceled
// when the caller's context is.
func mergeCancel(browserCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(browserCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
