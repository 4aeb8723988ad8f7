// Package config loads the YAML configuration of the agentloop command.
//
// A file only needs the keys it wants to change; everything else keeps the
// values of Default. The loaded configuration is validated as a whole and
// every failure is reported with its YAML path.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/anthropic"
	"github.com/hupe1980/agentloop/model/openai"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the root of the configuration file.
type Config struct {
	Provider    string   `yaml:"provider" validate:"required,oneof=anthropic openai"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url" validate:"omitempty,url"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int64    `yaml:"max_tokens" validate:"gte=0"`
	MaxTurns    int      `yaml:"max_turns" validate:"gte=0"`
	System      string   `yaml:"system"`

	Retry  RetryConfig  `yaml:"retry"`
	Log    LogConfig    `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`
}

// RetryConfig configures retries around the model.
type RetryConfig struct {
	Disabled        bool          `yaml:"disabled"`
	MaxTries        uint          `yaml:"max_tries" validate:"lte=20"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" validate:"gte=0"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text tint"`
}

// EngineConfig configures concurrency and streaming.
type EngineConfig struct {
	MaxConcurrent int  `yaml:"max_concurrent" validate:"gte=0"`
	Stream        bool `yaml:"stream"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	retry := model.DefaultRetryOptions
	return &Config{
		Provider: ProviderAnthropic,
		MaxTurns: core.DefaultMaxTurns,
		Retry: RetryConfig{
			MaxTries:        retry.MaxTries,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			MaxElapsedTime:  retry.MaxElapsedTime,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "tint",
		},
		Engine: EngineConfig{
			MaxConcurrent: engine.DefaultConfig.MaxConcurrentConversations,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and returns a *core.ValidationErrors listing
// all failures.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &core.ValidationErrors{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe.Namespace()), message(fe))
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gtefield":
		return "must not be below " + snake(fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// snake turns a Go field name into its yaml key.
func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ModelOptions returns the request-level model options.
func (c *Config) ModelOptions() core.ModelOptions {
	return core.ModelOptions{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// RetryOptions returns the retry policy, or nil when retries are disabled.
func (c *Config) RetryOptions() *model.RetryOptions {
	if c.Retry.Disabled || c.Retry.MaxTries <= 1 {
		return nil
	}
	return &model.RetryOptions{
		MaxTries:        c.Retry.MaxTries,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxElapsedTime:  c.Retry.MaxElapsedTime,
	}
}

// EngineConfig returns the engine configuration.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig
	cfg.MaxConcurrentConversations = c.Engine.MaxConcurrent
	cfg.Stream = c.Engine.Stream
	cfg.MaxTurns = c.MaxTurns
	return cfg
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*logging.StructuredLogger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	cfg.Output = w
	cfg.AddSource = false
	cfg.Component = "agentloop"
	return logging.NewLogger(cfg), nil
}

// NewModel builds the adapter of the configured provider. An empty apiKey
// lets the SDK read its usual environment variable. SDK retries are switched
// off whenever the model is wrapped by our own retry policy.
func (c *Config) NewModel(apiKey string) (model.Model, error) {
	sdkRetries := -1
	if c.RetryOptions() != nil {
		sdkRetries = 0
	}

	switch c.Provider {
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if c.Model != "" {
				o.Model = c.Model
			}
			o.APIKey = apiKey
			o.BaseURL = c.BaseURL
			o.MaxRetries = sdkRetries
		}), nil
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if c.Model != "" {
				o.Model = c.Model
			}
			o.APIKey = apiKey
			o.BaseURL = c.BaseURL
			o.MaxRetries = sdkRetries
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}
