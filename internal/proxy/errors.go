// Package proxy - errors.go defines the denial taxonomy and error mapper.
//
// DESIGN: Pipeline stages return an explicit *Denial instead of raising
// errors for control flow. Each denial carries a fixed reason from a
// closed set; the mapper converts reasons to HTTP statuses with
// first-match-wins precedence. Upstream application errors are not
// denials — provider statuses pass through verbatim.
package proxy

import (
	"encoding/json"
	"net/http"
)

// DenialReason classifies why the pipeline short-circuited.
type DenialReason string

const (
	ReasonMissingIdentifier    DenialReason = "missing_identifier"
	ReasonInvalidOrInactiveRun DenialReason = "invalid_or_inactive_run"
	ReasonInvalidCredential    DenialReason = "invalid_credential"
	ReasonUnknownProvider      DenialReason = "unknown_provider"
	ReasonQuotaExceeded        DenialReason = "quota_exceeded"
	ReasonProviderUnconfigured DenialReason = "provider_unconfigured"
	ReasonUpstreamUnreachable  DenialReason = "upstream_unreachable"
)

// Denial is a short-circuit result from a pipeline stage.
type Denial struct {
	Reason  DenialReason
	Message string
	Err     error // underlying cause, logged but never sent to the caller
}

// denialMessages are the caller-visible bodies, keyed by reason.
var denialMessages = map[DenialReason]string{
	ReasonMissingIdentifier:    "missing run identifier",
	ReasonInvalidOrInactiveRun: "invalid or inactive run",
	ReasonInvalidCredential:    "invalid run credential",
	ReasonUnknownProvider:      "unknown provider",
	ReasonQuotaExceeded:        "token quota exceeded",
	ReasonProviderUnconfigured: "provider credential not configured",
	ReasonUpstreamUnreachable:  "Upstream request failed",
}

// deny builds a Denial with its canonical message.
func deny(reason DenialReason) *Denial {
	return &Denial{Reason: reason, Message: denialMessages[reason]}
}

// denyErr builds a Denial wrapping an underlying cause.
func denyErr(reason DenialReason, err error) *Denial {
	d := deny(reason)
	d.Err = err
	return d
}

// StatusCode maps the denial to its HTTP response class.
func (d *Denial) StatusCode() int {
	switch d.Reason {
	case ReasonMissingIdentifier:
		return http.StatusUnauthorized
	case ReasonInvalidOrInactiveRun, ReasonInvalidCredential, ReasonUnknownProvider:
		return http.StatusForbidden
	case ReasonQuotaExceeded:
		return http.StatusTooManyRequests
	case ReasonProviderUnconfigured:
		return http.StatusServiceUnavailable
	case ReasonUpstreamUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDenial writes the structured JSON denial body.
func writeDenial(w http.ResponseWriter, d *Denial) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.StatusCode())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": d.Message})
}
