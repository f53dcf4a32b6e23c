// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Screen  ScreenConfig  `mapstructure:"screen" yaml:"screen"`
	OCR     OCRConfig     `mapstructure:"ocr" yaml:"ocr"`
	Safety  SafetyConfig  `mapstructure:"safety" yaml:"safety"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the planning model. When Enabled is
// false the pipeline skips the analyze stage entirely and plans with the
// rule-based parser only.
type LLMConfig struct {
	Enabled       bool              `mapstructure:"enabled" yaml:"enabled"`
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
	// RequestsPerMinute paces outbound API calls client-side. Zero disables
	// pacing.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ScreenConfig holds settings for the screen automation backend. The default
// backend drives a browser page over CDP; the target URL is the page treated
// as "the screen".
type ScreenConfig struct {
	Headless     bool          `mapstructure:"headless" yaml:"headless"`
	TargetURL    string        `mapstructure:"target_url" yaml:"target_url"`
	Width        int           `mapstructure:"width" yaml:"width"`
	Height       int           `mapstructure:"height" yaml:"height"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	DragDuration time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
	Args         []string      `mapstructure:"args" yaml:"args"`
}

// OCRConfig configures text recognition.
type OCRConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// SafetyConfig is the policy contract consumed by the safety validator.
type SafetyConfig struct {
	AllowedActions []string `mapstructure:"allowed_actions" yaml:"allowed_actions"`
	// Denylist patterns are matched case-insensitively against every
	// text-bearing action parameter.
	Denylist        []string      `mapstructure:"denylist" yaml:"denylist"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max" yaml:"rate_limit_max"`
	// MaxWait caps the duration of wait actions; longer waits are clamped,
	// not rejected.
	MaxWait           time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	MaxTypeLength     int           `mapstructure:"max_type_length" yaml:"max_type_length"`
	MaxInstructionLen int           `mapstructure:"max_instruction_len" yaml:"max_instruction_len"`
	MaxX              int           `mapstructure:"max_x" yaml:"max_x"`
	MaxY              int           `mapstructure:"max_y" yaml:"max_y"`
}

// AuditConfig controls the append-only audit trail.
type AuditConfig struct {
	Dir      string         `mapstructure:"dir" yaml:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for the optional persistent
// audit sink.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders a connection string for pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// SessionConfig tunes per-session behavior of the interactive mode.
type SessionConfig struct {
	HistoryFile string `mapstructure:"history_file" yaml:"history_file"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "screenpilot")
	v.SetDefault("logger.log_file", "screenpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "45s")
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)

	// -- Screen --
	v.SetDefault("screen.headless", true)
	v.SetDefault("screen.width", 1280)
	v.SetDefault("screen.height", 800)
	v.SetDefault("screen.nav_timeout", "30s")
	v.SetDefault("screen.drag_duration", "1s")

	// -- OCR --
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.languages", []string{"eng", "chi_sim"})

	// -- Safety --
	v.SetDefault("safety.allowed_actions", []string{
		"click", "type", "scroll", "press_key", "screenshot", "wait", "find_text",
	})
	v.SetDefault("safety.denylist", []string{
		"rm -rf", "format c:", "shutdown", "reboot", "sudo",
		"password", "credit card", "social security",
	})
	v.SetDefault("safety.rate_limit_window", "1m")
	v.SetDefault("safety.rate_limit_max", 60)
	v.SetDefault("safety.max_wait", "30s")
	v.SetDefault("safety.max_type_length", 1000)
	v.SetDefault("safety.max_instruction_len", 500)
	v.SetDefault("safety.max_x", 3840)
	v.SetDefault("safety.max_y", 2160)

	// -- Audit --
	v.SetDefault("audit.dir", defaultAuditDir())
	v.SetDefault("audit.postgres.enabled", false)
	v.SetDefault("audit.postgres.host", "localhost")
	v.SetDefault("audit.postgres.port", 5432)
	v.SetDefault("audit.postgres.user", "postgres")
	v.SetDefault("audit.postgres.dbname", "screenpilot_audit")
	v.SetDefault("audit.postgres.sslmode", "disable")
}

func defaultAuditDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "logs"
	}
	return filepath.Join(home, ".screenpilot", "audit")
}

// NewConfigFromViper creates a validated configuration instance from a viper
// object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "SCREENPILOT_LLM_API_KEY")
	v.BindEnv("audit.postgres.password", "SCREENPILOT_AUDIT_DB_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to unmarshal them is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Safety.RateLimitMax <= 0 {
		return fmt.Errorf("safety.rate_limit_max must be a positive integer")
	}
	if c.Safety.RateLimitWindow <= 0 {
		return fmt.Errorf("safety.rate_limit_window must be a positive duration")
	}
	if c.Safety.MaxWait <= 0 {
		return fmt.Errorf("safety.max_wait must be a positive duration")
	}
	if len(c.Safety.AllowedActions) == 0 {
		return fmt.Errorf("safety.allowed_actions must not be empty")
	}
	if c.LLM.Enabled {
		if c.LLM.Provider == "" {
			return fmt.Errorf("llm.provider is required when llm.enabled is true")
		}
	}
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return fmt.Errorf("screen.width and screen.height must be positive")
	}
	return nil
}
