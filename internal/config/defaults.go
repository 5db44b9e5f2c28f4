// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultServerPort is the proxy listen port.
const DefaultServerPort = 8484

// DefaultServerReadTimeout bounds reading the inbound request.
const DefaultServerReadTimeout = 1 * time.Minute

// DefaultServerWriteTimeout must cover long-running LLM completions,
// including streaming responses.
const DefaultServerWriteTimeout = 15 * time.Minute

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultDialTimeout is the TCP dial timeout to upstream providers.
const DefaultDialTimeout = 30 * time.Second

// DefaultUpstreamTimeout is the total deadline for one upstream call.
// LLM completions run for minutes, not seconds.
const DefaultUpstreamTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed inbound request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxErrorBodyLogLen limits upstream error bodies in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultBufferSize is the standard I/O buffer size for streaming.
const DefaultBufferSize = 4096

// =============================================================================
// RUN IDENTIFICATION HEADERS
// =============================================================================

// DefaultRunIDHeader carries the run identifier on inbound requests.
const DefaultRunIDHeader = "X-Proxy-Run-Id"

// DefaultRunKeyHeader carries the per-run proxy credential.
const DefaultRunKeyHeader = "X-Proxy-Run-Key"

// =============================================================================
// QUOTA
// =============================================================================

// DefaultTokenCeiling is the platform-wide per-run token ceiling
// (input + output) before further upstream calls are blocked.
// Overridable per run via the run record.
const DefaultTokenCeiling = 10_000_000

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultRateLimit is requests per second per run.
const DefaultRateLimit = 100

// DefaultRateBurst is the token-bucket burst per run.
const DefaultRateBurst = 200

// MaxRateLimitBuckets prevents memory exhaustion from too many run buckets.
const MaxRateLimitBuckets = 10000

// =============================================================================
// STORE
// =============================================================================

// DefaultStorePath is the SQLite database file for runs, project
// aggregates, and the usage audit log.
const DefaultStorePath = "secretsproxy.db"
