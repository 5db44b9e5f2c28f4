// Package monitoring - types.go defines telemetry event types.
//
// DESIGN: One RequestEvent per inbound proxy call, denied or forwarded.
// Events never carry credential values — only the run identifier and the
// denial reason. The persistent usage audit trail lives in the store;
// these events are operational telemetry.
package monitoring

import "time"

// TelemetryConfig controls JSONL event recording.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// RequestEvent captures one request through the proxy.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	ClientIP         string    `json:"client_ip"`
	RunID            string    `json:"run_id,omitempty"`
	ProjectID        string    `json:"project_id,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	StatusCode       int       `json:"status_code"`
	DenialReason     string    `json:"denial_reason,omitempty"`
	InputTokens      int       `json:"input_tokens,omitempty"`
	OutputTokens     int       `json:"output_tokens,omitempty"`
	CostCents        int64     `json:"cost_cents,omitempty"`
	UsageRecorded    bool      `json:"usage_recorded"`
	Streaming        bool      `json:"streaming,omitempty"`
	Success          bool      `json:"success"`
	ForwardLatencyMs int64     `json:"forward_latency_ms"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
}

// InitEvent captures proxy startup configuration.
type InitEvent struct {
	Timestamp           time.Time      `json:"timestamp"`
	Event               string         `json:"event"`
	ServerPort          int            `json:"server_port"`
	DefaultTokenCeiling int64          `json:"default_token_ceiling"`
	RateLimitEnabled    bool           `json:"rate_limit_enabled"`
	Providers           []InitProvider `json:"providers,omitempty"`
	TelemetryPath       string         `json:"telemetry_path,omitempty"`
}

// InitProvider summarizes a provider entry without leaking secrets.
type InitProvider struct {
	Name       string `json:"name"`
	AuthScheme string `json:"auth_scheme"`
	Upstream   string `json:"upstream"`
	HasAPIKey  bool   `json:"has_api_key"`
}
