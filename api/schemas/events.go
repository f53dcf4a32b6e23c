package schemas

// PipelineStage names the phases of one instruction run, in order.
type PipelineStage string

const (
	StageCapture   PipelineStage = "capture"
	StageAnalyze   PipelineStage = "analyze"
	StageParse     PipelineStage = "parse"
	StageExecute   PipelineStage = "execute"
	StageAggregate PipelineStage = "aggregate"
)

// RunObserver receives pipeline events synchronously at stage boundaries.
// Callbacks are fire-and-forget: they must not block indefinitely and must
// not mutate run state. The processor never inspects their effects.
type RunObserver interface {
	// StageStart fires before the named stage begins. Detail is a short,
	// human-readable progress string.
	StageStart(stage PipelineStage, detail string)
	// ActionResult fires after every attempted action, in plan order.
	ActionResult(res ExecutionResult)
	// ScreenshotCaptured fires for every frame captured during the run.
	ScreenshotCaptured(shot Screenshot)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) StageStart(PipelineStage, string)  {}
func (NopObserver) ActionResult(ExecutionResult)      {}
func (NopObserver) ScreenshotCaptured(Screenshot)     {}

// CallbackObserver adapts the two optional sink functions callers may supply
// (a progress-string sink and a screenshot sink) to the RunObserver interface.
// Nil callbacks are skipped.
type CallbackObserver struct {
	OnProgress   func(string)
	OnScreenshot func(Screenshot)
}

func (c CallbackObserver) StageStart(_ PipelineStage, detail string) {
	if c.OnProgress != nil && detail != "" {
		c.OnProgress(detail)
	}
}

func (c CallbackObserver) ActionResult(res ExecutionResult) {
	if c.OnProgress != nil {
		c.OnProgress(res.Message)
	}
}

func (c CallbackObserver) ScreenshotCaptured(shot Screenshot) {
	if c.OnScreenshot != nil {
		c.OnScreenshot(shot)
	}
}
