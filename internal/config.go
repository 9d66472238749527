package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Pipeline PipelineConfig    `yaml:"pipeline"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// PipelineConfig holds curation pipeline tuning.
//
// ApproveThreshold, RejectThreshold, and DuplicateThreshold may be
// hot-reloaded at runtime; all other fields are fixed for the life of a
// process.
type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	StageTimeout       time.Duration `yaml:"stage_timeout"`
	ApproveThreshold   float64       `yaml:"approve_threshold"`
	RejectThreshold    float64       `yaml:"reject_threshold"`
	DuplicateThreshold float64       `yaml:"duplicate_threshold"`
	EmbeddingDim       int           `yaml:"embedding_dim"`
	Strategy           string        `yaml:"strategy"`
	ExtractorVersion   string        `yaml:"extractor_version"`
	ScorerVersion      string        `yaml:"scorer_version"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.QueueCapacity, validation.Min(0)),
		validation.Field(&c.ApproveThreshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.RejectThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.DuplicateThreshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.EmbeddingDim, validation.Required, validation.Min(8), validation.Max(4096)),
		validation.Field(&c.Strategy, validation.Required),
		validation.Field(&c.ExtractorVersion, validation.Required),
		validation.Field(&c.ScorerVersion, validation.Required),
	); err != nil {
		return err
	}
	if c.RejectThreshold >= c.ApproveThreshold {
		return fmt.Errorf("pipeline: reject_threshold %.2f must be below approve_threshold %.2f",
			c.RejectThreshold, c.ApproveThreshold)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./laguz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Pipeline: PipelineConfig{
			Workers:            4,
			QueueCapacity:      256,
			StageTimeout:       10 * time.Second,
			ApproveThreshold:   0.60,
			RejectThreshold:    0.35,
			DuplicateThreshold: 0.90,
			EmbeddingDim:       256,
			Strategy:           "heuristic",
			ExtractorVersion:   "v1",
			ScorerVersion:      "v1",
		},
	}
}
