package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultRunIDHeader, cfg.Headers.RunID)
	assert.Equal(t, int64(DefaultTokenCeiling), cfg.Quota.DefaultTokenCeiling)
	assert.Contains(t, cfg.Providers, "anthropic")
	assert.Contains(t, cfg.Providers, "openai")
}

func TestLoad_OverlaysFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
  read_timeout: 30s
quota:
  default_token_ceiling: 500000
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(500000), cfg.Quota.DefaultTokenCeiling)
	// Untouched defaults survive the overlay.
	assert.Equal(t, DefaultRunKeyHeader, cfg.Headers.RunKey)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PROXY_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  anthropic:
    upstream: https://api.anthropic.com
    auth_scheme: api_key
    auth_header: x-api-key
    api_key: ${TEST_PROXY_KEY}
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers["anthropic"].APIKey)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"missing run header", func(c *Config) { c.Headers.RunID = "" }},
		{"negative ceiling", func(c *Config) { c.Quota.DefaultTokenCeiling = -1 }},
		{"rate limit without rps", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RPS = 0
		}},
		{"provider without upstream", func(c *Config) {
			c.Providers["bad"] = ProviderConfig{AuthScheme: "bearer"}
		}},
		{"api_key without header", func(c *Config) {
			c.Providers["bad"] = ProviderConfig{Upstream: "https://x.example", AuthScheme: "api_key"}
		}},
		{"unknown scheme", func(c *Config) {
			c.Providers["bad"] = ProviderConfig{Upstream: "https://x.example", AuthScheme: "hmac"}
		}},
		{"sigv4 without bedrock", func(c *Config) {
			c.Providers["bad"] = ProviderConfig{Upstream: "https://x.example", AuthScheme: "aws_sigv4"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_SigV4WithBedrockEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Bedrock.Enabled = true
	cfg.Bedrock.Region = "us-east-1"
	cfg.Providers["bedrock"] = ProviderConfig{
		Upstream:   "https://bedrock-runtime.us-east-1.amazonaws.com",
		AuthScheme: "aws_sigv4",
	}
	assert.NoError(t, cfg.Validate())
}

func TestResolveAPIKey_EnvWinsOverInline(t *testing.T) {
	t.Setenv("TEST_RESOLVE_KEY", "sk-env")

	p := ProviderConfig{APIKeyEnv: "TEST_RESOLVE_KEY", APIKey: "sk-inline"}
	assert.Equal(t, "sk-env", p.ResolveAPIKey())

	p = ProviderConfig{APIKeyEnv: "TEST_RESOLVE_KEY_UNSET", APIKey: "sk-inline"}
	assert.Equal(t, "sk-inline", p.ResolveAPIKey())

	p = ProviderConfig{}
	assert.Empty(t, p.ResolveAPIKey())
}
