package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenialStatusCodes(t *testing.T) {
	cases := []struct {
		reason DenialReason
		status int
	}{
		{ReasonMissingIdentifier, http.StatusUnauthorized},
		{ReasonInvalidOrInactiveRun, http.StatusForbidden},
		{ReasonInvalidCredential, http.StatusForbidden},
		{ReasonUnknownProvider, http.StatusForbidden},
		{ReasonQuotaExceeded, http.StatusTooManyRequests},
		{ReasonProviderUnconfigured, http.StatusServiceUnavailable},
		{ReasonUpstreamUnreachable, http.StatusBadGateway},
		{DenialReason("mystery"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			assert.Equal(t, tc.status, deny(tc.reason).StatusCode())
		})
	}
}

func TestDenialMessages(t *testing.T) {
	assert.Equal(t, "missing run identifier", deny(ReasonMissingIdentifier).Message)
	assert.Equal(t, "invalid or inactive run", deny(ReasonInvalidOrInactiveRun).Message)
	assert.Equal(t, "invalid run credential", deny(ReasonInvalidCredential).Message)
	assert.Equal(t, "unknown provider", deny(ReasonUnknownProvider).Message)
	assert.Equal(t, "token quota exceeded", deny(ReasonQuotaExceeded).Message)
	assert.Equal(t, "provider credential not configured", deny(ReasonProviderUnconfigured).Message)
	assert.Equal(t, "Upstream request failed", deny(ReasonUpstreamUnreachable).Message)
}

func TestWriteDenial(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDenial(rec, deny(ReasonQuotaExceeded))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "token quota exceeded", body["error"])
}

func TestDenyErrKeepsCauseOutOfMessage(t *testing.T) {
	d := denyErr(ReasonInvalidOrInactiveRun, assert.AnError)
	assert.Equal(t, "invalid or inactive run", d.Message)
	assert.Equal(t, assert.AnError, d.Err)

	rec := httptest.NewRecorder()
	writeDenial(rec, d)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
