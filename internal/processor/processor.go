// File: internal/processor/processor.go
package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/audit"
	"github.com/screenpilot/screenpilot-cli/internal/executor"
	"github.com/screenpilot/screenpilot-cli/internal/planner"
	"github.com/screenpilot/screenpilot-cli/internal/safety"
)

// Aggregate confidence tiers. AI-informed plans that execute fully score
// highest; pure rule-based plans lower; any failure floors the score.
const (
	confidenceAISuccess    = 0.95
	confidenceRulesSuccess = 0.7
)

// Options tunes one processing run.
type Options struct {
	// Observer receives stage and action events. Nil means no events.
	Observer schemas.RunObserver
	// AttachScreenshots includes captured frames in the final result.
	AttachScreenshots bool
}

// Processor drives the instruction pipeline: capture, analyze, plan,
// validate, execute, aggregate. Runs are serialized; a second Process call
// blocks until the first finishes, so actions from different instructions
// never interleave on the shared screen.
type Processor struct {
	driver    schemas.ScreenDriver
	ocr       schemas.OCRProvider
	planner   *planner.Planner
	validator *safety.Validator
	executor  *executor.Executor
	trail     *audit.Trail
	logger    *zap.Logger

	runGate *semaphore.Weighted
}

// New assembles a processor. ocr may be nil, in which case label targets
// cannot be resolved and plans work from the raw instruction only.
func New(
	driver schemas.ScreenDriver,
	ocr schemas.OCRProvider,
	pl *planner.Planner,
	validator *safety.Validator,
	exec *executor.Executor,
	trail *audit.Trail,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		driver:    driver,
		ocr:       ocr,
		planner:   pl,
		validator: validator,
		executor:  exec,
		trail:     trail,
		logger:    logger.Named("processor"),
		runGate:   semaphore.NewWeighted(1),
	}
}

// Process runs one instruction through the full pipeline and returns the
// aggregated result. The error is non-nil only for run-fatal conditions
// (capture failure, safety rejection, execution failure); in those cases the
// result still carries everything completed before the abort.
func (p *Processor) Process(ctx context.Context, instruction string, opts Options) (schemas.ProcessingResult, error) {
	observer := opts.Observer
	if observer == nil {
		observer = schemas.NopObserver{}
	}

	if err := p.runGate.Acquire(ctx, 1); err != nil {
		return schemas.ProcessingResult{}, err
	}
	defer p.runGate.Release(1)

	p.record(ctx, audit.Entry{
		Event:   audit.EventInstruction,
		Message: instruction,
	})

	if err := p.validator.CheckInstruction(ctx, instruction); err != nil {
		return p.aggregate(ctx, run{planSource: schemas.PlanSourceNone, message: err.Error()}, err)
	}

	r := run{
		instruction: instruction,
		observer:    observer,
		attachShots: opts.AttachScreenshots,
		planSource:  schemas.PlanSourceNone,
	}

	// -- CAPTURE --
	observer.StageStart(schemas.StageCapture, "capturing screen")
	shot, err := p.driver.Capture(ctx)
	if err != nil {
		p.logger.Error("Initial capture failed, aborting run", zap.Error(err))
		r.message = "screen capture failed"
		return p.aggregate(ctx, r, err)
	}
	r.addScreenshot(shot)

	// -- ANALYZE --
	observer.StageStart(schemas.StageAnalyze, "analyzing screen")
	r.ocr = p.recognize(ctx, shot)

	// -- PARSE / PLAN --
	observer.StageStart(schemas.StageParse, "planning actions")
	outcome := p.planner.Plan(ctx, instruction, r.ocr)
	r.planSource = outcome.Source
	r.analysis = outcome.Analysis
	for _, warning := range outcome.Warnings {
		p.record(ctx, audit.Entry{Event: audit.EventPlanFallback, Message: warning})
	}

	if len(outcome.Actions) == 0 {
		r.message = "no actions recognized from instruction"
		p.logger.Info("Nothing to execute", zap.String("instruction", instruction))
		return p.aggregate(ctx, r, nil)
	}

	// -- VALIDATE + EXECUTE --
	observer.StageStart(schemas.StageExecute, fmt.Sprintf("executing %d actions", len(outcome.Actions)))
	if err := p.executeAll(ctx, &r, outcome.Actions); err != nil {
		return p.aggregate(ctx, r, err)
	}

	r.message = fmt.Sprintf("executed %d actions", len(r.results))
	return p.aggregate(ctx, r, nil)
}

// run is the mutable state of one pipeline pass.
type run struct {
	instruction string
	observer    schemas.RunObserver
	attachShots bool

	ocr         schemas.OCRResult
	ocrStale    bool
	screenshots []schemas.Screenshot
	results     []schemas.ExecutionResult
	planSource  schemas.PlanSource
	analysis    string
	message     string
}

func (r *run) addScreenshot(shot schemas.Screenshot) {
	r.screenshots = append(r.screenshots, shot)
	r.observer.ScreenshotCaptured(shot)
}

// executeAll validates and executes the plan in order, stopping at the first
// rejection or failure. Already-executed actions are never rolled back.
func (p *Processor) executeAll(ctx context.Context, r *run, actions []schemas.Action) error {
	for _, a := range actions {
		validated, err := p.validator.Validate(ctx, a)
		if err != nil {
			r.message = err.Error()
			p.logger.Warn("Run halted by safety validator", zap.String("kind", string(a.Kind)))
			return err
		}

		// Earlier actions may have changed the screen; refresh OCR before
		// anything that resolves labels against it.
		if r.ocrStale && needsOCR(validated) {
			if err := p.refresh(ctx, r); err != nil {
				r.message = "screen re-capture failed"
				return err
			}
		}

		res := p.executor.Execute(ctx, validated, r.ocr)
		r.results = append(r.results, res)
		r.observer.ActionResult(res)
		p.record(ctx, audit.Entry{
			Event:            audit.EventActionResult,
			ActionKind:       string(validated.Kind),
			ParametersSum:    validated.ParameterSummary(),
			ExecutionSuccess: &res.Success,
			Message:          res.Message,
		})

		if shot, ok := res.Data["screenshot"].(schemas.Screenshot); ok {
			r.addScreenshot(shot)
		}

		if !res.Success {
			r.message = res.Message
			return fmt.Errorf("%w: %s", schemas.ErrExecution, res.Message)
		}
		if validated.Kind.MutatesScreen() {
			r.ocrStale = true
		}
	}
	return nil
}

// refresh recaptures the screen and reruns recognition.
func (p *Processor) refresh(ctx context.Context, r *run) error {
	shot, err := p.driver.Capture(ctx)
	if err != nil {
		return err
	}
	r.addScreenshot(shot)
	r.ocr = p.recognize(ctx, shot)
	r.ocrStale = false
	return nil
}

// recognize runs OCR, degrading to an empty result on any failure. A blind
// run can still execute coordinate-addressed actions.
func (p *Processor) recognize(ctx context.Context, shot schemas.Screenshot) schemas.OCRResult {
	if p.ocr == nil {
		return schemas.OCRResult{}
	}
	result, err := p.ocr.Recognize(ctx, shot)
	if err != nil {
		p.logger.Warn("OCR failed, continuing with empty screen text", zap.Error(err))
		return schemas.OCRResult{}
	}
	return result
}

// needsOCR reports whether executing the action requires current screen text.
func needsOCR(a schemas.Action) bool {
	switch a.Kind {
	case schemas.ActionFindText:
		return true
	case schemas.ActionClick:
		_, hasX := a.IntParam("x")
		_, hasY := a.IntParam("y")
		return !(hasX && hasY)
	case schemas.ActionDrag:
		_, hasX1 := a.IntParam("x1")
		return !hasX1
	}
	return false
}

// aggregate folds the run state into the final result and records the
// run-complete audit event. Success requires at least one attempted action
// and zero failures.
func (p *Processor) aggregate(ctx context.Context, r run, runErr error) (schemas.ProcessingResult, error) {
	if r.observer != nil {
		r.observer.StageStart(schemas.StageAggregate, "")
	}

	result := schemas.ProcessingResult{
		Results:    r.results,
		AIAnalysis: r.analysis,
		PlanSource: r.planSource,
		Message:    r.message,
	}
	if r.attachShots {
		result.Screenshots = r.screenshots
	}

	result.Success = runErr == nil &&
		len(r.results) > 0 &&
		result.SucceededCount() == len(r.results)

	switch {
	case !result.Success:
		result.Confidence = 0
	case r.planSource.AIInformed():
		result.Confidence = confidenceAISuccess
	default:
		result.Confidence = confidenceRulesSuccess
	}

	p.record(ctx, audit.Entry{
		Event:            audit.EventRunComplete,
		ExecutionSuccess: &result.Success,
		Message:          result.Message,
	})

	p.logger.Info("Run complete",
		zap.Bool("success", result.Success),
		zap.Int("actions", len(result.Results)),
		zap.String("plan_source", string(result.PlanSource)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, runErr
}

func (p *Processor) record(ctx context.Context, e audit.Entry) {
	if p.trail == nil {
		return
	}
	if err := p.trail.Record(ctx, e); err != nil {
		p.logger.Error("Failed to record audit entry", zap.Error(err))
	}
}

// ScreenAnalysis is a capture-and-recognize pass outside any instruction run,
// used by the status command and the interactive "look" helper.
type ScreenAnalysis struct {
	Screenshot schemas.Screenshot
	OCR        schemas.OCRResult
}

// AnalyzeScreen captures the current screen and runs recognition over it
// without executing anything.
func (p *Processor) AnalyzeScreen(ctx context.Context) (ScreenAnalysis, error) {
	if err := p.runGate.Acquire(ctx, 1); err != nil {
		return ScreenAnalysis{}, err
	}
	defer p.runGate.Release(1)

	shot, err := p.driver.Capture(ctx)
	if err != nil {
		return ScreenAnalysis{}, err
	}
	return ScreenAnalysis{
		Screenshot: shot,
		OCR:        p.recognize(ctx, shot),
	}, nil
}

// Stats exposes the executor's counters for the status command.
func (p *Processor) Stats() executor.Stats {
	return p.executor.Stats()
}
