// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// New creates the LLM client named by the configuration. Returns (nil, nil)
// when the LLM is disabled; callers treat a nil client as "rules only".
func New(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
