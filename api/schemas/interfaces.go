package schemas

import (
	"context"
)

// LLMClient abstracts a text-generation provider. Implementations own their
// timeout and retry policy; the pipeline never retries a failed call within a
// run, it falls back instead.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ScreenDriver is the contract for the OS-level (or browser-level) automation
// primitives. Implementations live in internal/screen; everything above this
// interface treats the screen as an opaque, continuously-changing surface
// addressed by pixel coordinates.
type ScreenDriver interface {
	// Capture returns an encoded frame of the current screen state.
	Capture(ctx context.Context) (Screenshot, error)
	// Size returns the current screen dimensions in pixels.
	Size(ctx context.Context) (width, height int, err error)

	Click(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	Scroll(ctx context.Context, direction string, amount int) error
	PressKey(ctx context.Context, key string) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int) error
}

// OCRProvider turns a screenshot into recognized text fragments.
type OCRProvider interface {
	Recognize(ctx context.Context, shot Screenshot) (OCRResult, error)
}
