// Package config loads and validates the secrets proxy configuration.
//
// DESIGN: One YAML file, environment-expanded before unmarshal, layered
// over Defaults(). Provider entries are static data: the proxy reads them
// at startup and never mutates them at runtime. Provider API keys are
// resolved from the environment (api_key_env) or inline ${VAR} expansion;
// an absent key leaves the provider configured-but-unusable and requests
// to it are denied before any network call.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the secrets proxy.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Headers   HeaderConfig              `yaml:"headers"`
	Quota     QuotaConfig               `yaml:"quota"`
	Store     StoreConfig               `yaml:"store"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Bedrock   BedrockConfig             `yaml:"bedrock"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// HeaderConfig names the on-the-wire run identification headers.
// The exact names are a deployment choice, not a contract detail.
type HeaderConfig struct {
	RunID  string `yaml:"run_id"`
	RunKey string `yaml:"run_key"`
}

// QuotaConfig holds the platform-wide token ceiling.
type QuotaConfig struct {
	// DefaultTokenCeiling is the per-run input+output token ceiling used
	// when a run record carries no override. 0 falls back to the compiled
	// default.
	DefaultTokenCeiling int64 `yaml:"default_token_ceiling"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RateLimitConfig holds per-run rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// TelemetryConfig controls JSONL request telemetry.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// BedrockConfig enables AWS SigV4 signing for Bedrock provider entries.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
}

// ProviderConfig is one entry in the static provider table.
type ProviderConfig struct {
	// Upstream is the provider base URL, e.g. https://api.anthropic.com.
	Upstream string `yaml:"upstream"`

	// AuthScheme is one of "api_key", "bearer", "aws_sigv4".
	AuthScheme string `yaml:"auth_scheme"`

	// AuthHeader is the header carrying the credential (api_key scheme).
	// Bearer always uses Authorization; aws_sigv4 signs instead.
	AuthHeader string `yaml:"auth_header"`

	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv string `yaml:"api_key_env"`

	// APIKey is the inline key. Supports ${VAR} expansion; APIKeyEnv wins
	// when both are set and the variable is non-empty.
	APIKey string `yaml:"api_key"`

	// PassHeaders are provider-specific inbound headers forwarded upstream
	// in addition to Content-Type and Accept.
	PassHeaders []string `yaml:"pass_headers"`

	// Usage holds gjson paths into the provider's response body.
	Usage UsageFieldsConfig `yaml:"usage"`
}

// UsageFieldsConfig maps provider response fields to normalized usage.
type UsageFieldsConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Model  string `yaml:"model"`
}

// Defaults returns the built-in configuration, including the standard
// Anthropic and OpenAI provider entries.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Headers: HeaderConfig{
			RunID:  DefaultRunIDHeader,
			RunKey: DefaultRunKeyHeader,
		},
		Quota: QuotaConfig{
			DefaultTokenCeiling: DefaultTokenCeiling,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     DefaultRateLimit,
			Burst:   DefaultRateBurst,
		},
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Upstream:    "https://api.anthropic.com",
				AuthScheme:  "api_key",
				AuthHeader:  "x-api-key",
				APIKeyEnv:   "ANTHROPIC_API_KEY",
				PassHeaders: []string{"anthropic-version", "anthropic-beta"},
				Usage: UsageFieldsConfig{
					Input:  "usage.input_tokens",
					Output: "usage.output_tokens",
					Model:  "model",
				},
			},
			"openai": {
				Upstream:    "https://api.openai.com",
				AuthScheme:  "bearer",
				APIKeyEnv:   "OPENAI_API_KEY",
				PassHeaders: []string{"openai-beta", "openai-organization"},
				Usage: UsageFieldsConfig{
					Input:  "usage.prompt_tokens",
					Output: "usage.completion_tokens",
					Model:  "model",
				},
			},
		},
	}
}

// Load reads the YAML config at path over Defaults(). A missing file is
// not an error: the defaults stand alone. ${VAR} references are expanded
// from the environment before unmarshal.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Headers.RunID == "" || c.Headers.RunKey == "" {
		return fmt.Errorf("headers.run_id and headers.run_key must be set")
	}
	if c.Quota.DefaultTokenCeiling < 0 {
		return fmt.Errorf("quota.default_token_ceiling must be >= 0, got %d", c.Quota.DefaultTokenCeiling)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be > 0 when enabled")
	}
	for name, p := range c.Providers {
		if p.Upstream == "" {
			return fmt.Errorf("provider %s: upstream is required", name)
		}
		switch p.AuthScheme {
		case "api_key":
			if p.AuthHeader == "" {
				return fmt.Errorf("provider %s: auth_header is required for api_key scheme", name)
			}
		case "bearer":
		case "aws_sigv4":
			if !c.Bedrock.Enabled {
				return fmt.Errorf("provider %s: aws_sigv4 scheme requires bedrock.enabled", name)
			}
		default:
			return fmt.Errorf("provider %s: unknown auth_scheme %q", name, p.AuthScheme)
		}
	}
	return nil
}

// ResolveAPIKey returns the provider credential, or "" when not
// provisioned. APIKeyEnv takes precedence over the inline value.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}
