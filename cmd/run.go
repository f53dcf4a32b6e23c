// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/audit"
	"github.com/screenpilot/screenpilot-cli/internal/config"
	"github.com/screenpilot/screenpilot-cli/internal/executor"
	"github.com/screenpilot/screenpilot-cli/internal/llmclient"
	"github.com/screenpilot/screenpilot-cli/internal/observability"
	"github.com/screenpilot/screenpilot-cli/internal/parser"
	"github.com/screenpilot/screenpilot-cli/internal/planner"
	"github.com/screenpilot/screenpilot-cli/internal/processor"
	"github.com/screenpilot/screenpilot-cli/internal/safety"
	"github.com/screenpilot/screenpilot-cli/internal/screen"
)

// newRunCmd creates and configures the `run` command. With an instruction
// argument it executes once; without one it drops into the interactive shell.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Executes a natural-language instruction against the screen",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config and env.
			if err := viper.BindPFlag("llm.enabled", cmd.Flags().Lookup("ai")); err != nil {
				return err
			}
			if err := viper.BindPFlag("screen.target_url", cmd.Flags().Lookup("target")); err != nil {
				return err
			}
			if err := viper.BindPFlag("screen.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			attachShots, _ := cmd.Flags().GetBool("screenshots")
			saveDir, _ := cmd.Flags().GetString("save-screenshots")

			if len(args) == 1 {
				return runOnce(ctx, components.Processor, args[0], attachShots, saveDir)
			}
			return runInteractive(ctx, cfg, components.Processor, attachShots, saveDir)
		},
	}

	runCmd.Flags().Bool("ai", true, "Use the AI planner. Disable to plan with rules only. (Overrides config/env)")
	runCmd.Flags().String("target", "", "URL of the page to drive. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().Bool("screenshots", false, "Collect screenshots captured during the run.")
	runCmd.Flags().String("save-screenshots", "", "Directory to write collected screenshots to.")

	return runCmd
}

// components bundles everything a run needs, with a single shutdown path.
type components struct {
	Processor *processor.Processor
	Driver    *screen.CDPDriver
	Trail     *audit.Trail
	Store     *audit.Store
	logger    *zap.Logger
}

// initializeComponents wires the pipeline from the resolved configuration.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	trail, err := audit.NewTrail(cfg.Audit.Dir, "", logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Audit trail opened",
		zap.String("dir", cfg.Audit.Dir),
		zap.String("session_id", trail.SessionID()),
	)

	c := &components{Trail: trail, logger: logger}

	if cfg.Audit.Postgres.Enabled {
		store, err := audit.Connect(ctx, cfg.Audit.Postgres.DSN(), logger)
		if err != nil {
			c.Shutdown()
			return nil, err
		}
		trail.AddSink(store)
		c.Store = store
	}

	llm, err := llmclient.New(cfg.LLM, logger)
	if err != nil {
		c.Shutdown()
		return nil, err
	}
	if llm == nil {
		logger.Info("AI planning disabled, using rule-based parsing only")
	}

	driver, err := screen.NewCDPDriver(ctx, cfg.Screen, logger)
	if err != nil {
		c.Shutdown()
		return nil, err
	}
	c.Driver = driver

	var ocr schemas.OCRProvider
	if cfg.OCR.Enabled {
		ocr = screen.NewTesseractOCR(cfg.OCR, logger)
	}

	p := parser.New(logger)
	c.Processor = processor.New(
		driver,
		ocr,
		planner.New(llm, p, cfg.LLM.Temperature, logger),
		safety.NewValidator(cfg.Safety, trail, logger),
		executor.New(driver, logger),
		trail,
		logger,
	)
	return c, nil
}

// Shutdown releases resources in reverse order of acquisition.
func (c *components) Shutdown() {
	if c.Driver != nil {
		c.Driver.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Trail != nil {
		if err := c.Trail.Close(); err != nil {
			c.logger.Warn("Failed to close audit trail", zap.Error(err))
		}
	}
}

// runOnce executes a single instruction and prints the aggregated result.
func runOnce(ctx context.Context, proc *processor.Processor, instruction string, attachShots bool, saveDir string) error {
	observer := schemas.CallbackObserver{
		OnProgress: func(msg string) { fmt.Println("  " + msg) },
	}

	result, err := proc.Process(ctx, instruction, processor.Options{
		Observer:          observer,
		AttachScreenshots: attachShots || saveDir != "",
	})
	printResult(result)

	if saveDir != "" {
		if saveErr := saveScreenshots(saveDir, result.Screenshots); saveErr != nil {
			fmt.Fprintln(os.Stderr, "warning:", saveErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runInteractive drops into the instruction shell. Each line is one full
// pipeline run; the session shares the browser, audit trail and rate budget.
func runInteractive(ctx context.Context, cfg *config.Config, proc *processor.Processor, attachShots bool, saveDir string) error {
	historyFile := cfg.Session.HistoryFile
	if historyFile == "" {
		historyFile = filepath.Join(os.TempDir(), "screenpilot_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "screenpilot > ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start interactive shell: %w", err)
	}
	defer rl.Close()

	fmt.Println("ScreenPilot interactive mode. Type an instruction, or 'help'.")
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit" || line == "退出":
			fmt.Println("Exiting screenpilot.")
			return nil
		case line == "help" || line == "帮助":
			printHelp()
			continue
		case line == "look" || line == "看屏幕":
			if err := printScreen(ctx, proc); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			continue
		case line == "stats":
			printStats(proc.Stats())
			continue
		}

		if err := runOnce(ctx, proc, line, attachShots, saveDir); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// Errors are already part of the printed result; keep the shell alive.
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func printResult(result schemas.ProcessingResult) {
	status := "FAILED"
	if result.Success {
		status = "OK"
	}
	fmt.Printf("\n[%s] %s (plan: %s, confidence: %.2f)\n",
		status, result.Message, result.PlanSource, result.Confidence)
	for i, res := range result.Results {
		mark := "✗"
		if res.Success {
			mark = "✓"
		}
		fmt.Printf("  %s %d. %s %s (%.0fms)\n",
			mark, i+1, res.Action.Kind, res.Message, float64(res.Duration)/float64(time.Millisecond))
	}
	if result.AIAnalysis != "" {
		fmt.Println("  analysis:", result.AIAnalysis)
	}
	fmt.Println()
}

func printScreen(ctx context.Context, proc *processor.Processor) error {
	analysis, err := proc.AnalyzeScreen(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("screen %dx%d, %d text fragments (confidence %.2f)\n",
		analysis.Screenshot.Width, analysis.Screenshot.Height,
		len(analysis.OCR.Fragments), analysis.OCR.Confidence)
	if analysis.OCR.Text != "" {
		fmt.Println(analysis.OCR.Text)
	}
	return nil
}

func printStats(stats executor.Stats) {
	fmt.Printf("actions: %d total, %d succeeded, %d failed\n",
		stats.Total, stats.Succeeded, stats.Failed)
	for _, kind := range schemas.AllActionKinds() {
		if n := stats.PerKind[kind]; n > 0 {
			fmt.Printf("  %-12s %d\n", kind, n)
		}
	}
}

func printHelp() {
	fmt.Println(`Type a natural-language instruction, for example:
  click the Login button
  点击登录按钮
  type "hello world", then press enter
  向下滚动3次

Shell commands:
  look    capture the screen and show recognized text
  stats   show action counters for this session
  exit    leave the shell`)
}

func saveScreenshots(dir string, shots []schemas.Screenshot) error {
	if len(shots) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	for i, shot := range shots {
		name := fmt.Sprintf("shot_%s_%02d.png", shot.CapturedAt.Format("150405"), i)
		if err := os.WriteFile(filepath.Join(dir, name), shot.PNG, 0o640); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}
	}
	return nil
}
