package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covegate/secrets-proxy/internal/store"
)

func TestQuotaGuard_UnderCeiling(t *testing.T) {
	q := NewQuotaGuard(1000)
	assert.Nil(t, q.Check(store.Run{ID: "r", TokensInput: 500, TokensOutput: 499}))
}

func TestQuotaGuard_AtCeiling(t *testing.T) {
	q := NewQuotaGuard(1000)
	d := q.Check(store.Run{ID: "r", TokensInput: 500, TokensOutput: 500})
	require.NotNil(t, d)
	assert.Equal(t, ReasonQuotaExceeded, d.Reason)
}

func TestQuotaGuard_RunCeilingOverridesDefault(t *testing.T) {
	q := NewQuotaGuard(1_000_000)

	d := q.Check(store.Run{ID: "r", TokenCeiling: 100, TokensInput: 60, TokensOutput: 50})
	require.NotNil(t, d)
	assert.Equal(t, ReasonQuotaExceeded, d.Reason)

	assert.Nil(t, q.Check(store.Run{ID: "r", TokenCeiling: 200, TokensInput: 60, TokensOutput: 50}))
}

func TestQuotaGuard_ZeroCeilingDisablesCheck(t *testing.T) {
	q := NewQuotaGuard(0)
	assert.Nil(t, q.Check(store.Run{ID: "r", TokensInput: 1 << 40}))
}
