// Package config provides configuration loading for codemage.
//
// All runtime switches are collected into one Config value resolved at
// startup. Defaults come from Default(), the YAML file overrides them and
// CODEMAGE_* environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the complete codemage configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Generation    GenerationConfig    `koanf:"generation"`
	LLM           LLMConfig           `koanf:"llm"`
	Host          HostConfig          `koanf:"host"`
	Installer     InstallerConfig     `koanf:"installer"`
	Artifact      ArtifactConfig      `koanf:"artifact"`
	Events        EventsConfig        `koanf:"events"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port" validate:"gte=1,lte=65535"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// GenerationConfig holds the switches that drive the generation pipeline.
type GenerationConfig struct {
	// StepByStep generates metadata and markdown in two model calls
	// instead of one combined call.
	StepByStep bool `koanf:"step_by_step"`

	// AutoApprove skips the confirmation gate.
	AutoApprove bool `koanf:"auto_approve"`

	// SatisfactionThreshold is the minimum review score (0-100).
	SatisfactionThreshold int `koanf:"satisfaction_threshold" validate:"gte=0,lte=100"`

	StrictReview bool `koanf:"strict_review"`

	// MaxRetries bounds fix+review rounds. -1 means unlimited, bounded only
	// by ReviewDeadline.
	MaxRetries int `koanf:"max_retries" validate:"gte=-1"`

	AllowDependencies bool `koanf:"allow_dependencies"`

	// ReviewAttempts is the inner retry count for a single review call.
	ReviewAttempts int `koanf:"review_attempts" validate:"gte=1,lte=10"`

	// ReviewDeadline bounds the review loop wall-clock time when MaxRetries is -1.
	ReviewDeadline Duration `koanf:"review_deadline"`

	BlockUnsafeCode bool `koanf:"block_unsafe_code"`
}

// Unlimited reports whether the review loop has no retry budget.
func (g GenerationConfig) Unlimited() bool {
	return g.MaxRetries == -1
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	Provider    string   `koanf:"provider" validate:"oneof=openai anthropic ollama"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url" validate:"omitempty,url"`
	APIKey      Secret   `koanf:"api_key"`
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit" validate:"gt=0"`
	Burst       int      `koanf:"burst" validate:"gte=1"`
	MaxRetries  int      `koanf:"max_retries" validate:"gte=0,lte=10"`
	Temperature float64  `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int      `koanf:"max_tokens" validate:"gte=1"`
}

// HostConfig locates the host platform installation.
type HostConfig struct {
	// Root is the host installation root. Detected when empty.
	Root string `koanf:"root"`

	// SearchFrom is where root detection starts. Defaults to the working directory.
	SearchFrom string `koanf:"search_from"`

	// PluginsDir overrides <root>/data/plugins.
	PluginsDir string `koanf:"plugins_dir"`
}

// InstallerConfig configures the host admin API client.
type InstallerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	URL             string   `koanf:"url" validate:"omitempty,url"`
	Username        string   `koanf:"username"`
	PasswordMD5     Secret   `koanf:"password_md5"`
	CredentialsFile string   `koanf:"credentials_file"`
	Timeout         Duration `koanf:"timeout"`
}

// ArtifactConfig controls how generated plugins are written to disk.
type ArtifactConfig struct {
	GitInit   bool   `koanf:"git_init"`
	GitAuthor string `koanf:"git_author"`
	GitEmail  string `koanf:"git_email"`
}

// EventsConfig configures progress event delivery.
type EventsConfig struct {
	Buffer      int    `koanf:"buffer" validate:"gte=1"`
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`
}

// LoggingConfig is the subset of logging settings exposed in the config file.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// ObservabilityConfig holds metrics configuration.
type ObservabilityConfig struct {
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	ServiceName    string `koanf:"service_name"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            6190,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Generation: GenerationConfig{
			StepByStep:            true,
			AutoApprove:           false,
			SatisfactionThreshold: 80,
			StrictReview:          true,
			MaxRetries:            3,
			AllowDependencies:     true,
			ReviewAttempts:        3,
			ReviewDeadline:        Duration(30 * time.Minute),
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Timeout:     Duration(120 * time.Second),
			RateLimit:   1,
			Burst:       2,
			MaxRetries:  3,
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Installer: InstallerConfig{
			Enabled:  true,
			URL:      "http://localhost:6185",
			Username: "astrbot",
			Timeout:  Duration(60 * time.Second),
		},
		Artifact: ArtifactConfig{
			GitAuthor: "CodeMage",
			GitEmail:  "codemage@localhost",
		},
		Events: EventsConfig{
			Buffer:      64,
			NATSSubject: "codemage.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			ServiceName:    "codemage",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
//
// Struct tags cover per-field ranges; cross-field rules are checked here.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Generation.Unlimited() && c.Generation.ReviewDeadline.Duration() <= 0 {
		return errors.New("generation.review_deadline must be positive when max_retries is -1")
	}
	if c.LLM.Provider != "ollama" && !c.LLM.APIKey.IsSet() && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.api_key required for provider %q", c.LLM.Provider)
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return errors.New("events.nats_subject required when events.nats_url is set")
	}

	return nil
}

// DefaultConfigDir returns ~/.config/codemage.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "codemage"), nil
}
