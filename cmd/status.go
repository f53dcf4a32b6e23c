// File: cmd/status.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// newStatusCmd reports the resolved configuration and environment readiness
// without touching the screen.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Shows the resolved configuration and environment readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			fmt.Printf("screenpilot %s\n\n", Version)

			aiState := "disabled (rule-based planning only)"
			if cfg.LLM.Enabled {
				aiState = fmt.Sprintf("%s / %s", cfg.LLM.Provider, cfg.LLM.Model)
				if cfg.LLM.APIKey == "" {
					aiState += "  (warning: no API key; set SCREENPILOT_LLM_API_KEY)"
				}
			}
			fmt.Println("ai planner:   ", aiState)

			ocrState := "disabled"
			if cfg.OCR.Enabled {
				ocrState = fmt.Sprintf("tesseract (%v)", cfg.OCR.Languages)
			}
			fmt.Println("ocr:          ", ocrState)

			target := cfg.Screen.TargetURL
			if target == "" {
				target = "(blank page)"
			}
			fmt.Printf("screen:        %dx%d headless=%v target=%s\n",
				cfg.Screen.Width, cfg.Screen.Height, cfg.Screen.Headless, target)

			fmt.Printf("safety:        %d allowed kinds, %d denylist patterns, %d actions per %s\n",
				len(cfg.Safety.AllowedActions), len(cfg.Safety.Denylist),
				cfg.Safety.RateLimitMax, cfg.Safety.RateLimitWindow)

			auditState := cfg.Audit.Dir
			if err := os.MkdirAll(cfg.Audit.Dir, 0o750); err != nil {
				auditState += fmt.Sprintf("  (warning: not writable: %v)", err)
			}
			fmt.Println("audit dir:    ", auditState)
			if cfg.Audit.Postgres.Enabled {
				fmt.Printf("audit db:      postgres://%s@%s:%d/%s\n",
					cfg.Audit.Postgres.User, cfg.Audit.Postgres.Host,
					cfg.Audit.Postgres.Port, cfg.Audit.Postgres.DBName)
			}
			return nil
		},
	}
}
