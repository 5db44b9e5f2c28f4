package proxy

import (
	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/store"
)

// QuotaGuard decides whether a run may make further upstream calls.
//
// The check is advisory and pre-call: actual usage is only known after
// the upstream response, so a single in-flight call can push a run
// slightly over its ceiling. The ceiling bounds runaway loops; it does
// not guarantee billing precision.
type QuotaGuard struct {
	defaultCeiling int64
}

// NewQuotaGuard creates a guard with the platform-wide default ceiling.
func NewQuotaGuard(defaultCeiling int64) *QuotaGuard {
	return &QuotaGuard{defaultCeiling: defaultCeiling}
}

// Check denies when the run's cumulative tokens have reached its
// ceiling. A per-run ceiling on the record overrides the default; a
// ceiling of zero disables the check entirely.
func (q *QuotaGuard) Check(run store.Run) *Denial {
	ceiling := run.TokenCeiling
	if ceiling <= 0 {
		ceiling = q.defaultCeiling
	}
	if ceiling <= 0 {
		return nil
	}

	used := run.TokensInput + run.TokensOutput
	if used >= ceiling {
		log.Info().
			Str("run_id", run.ID).
			Int64("used", used).
			Int64("ceiling", ceiling).
			Msg("quota: ceiling reached")
		return deny(ReasonQuotaExceeded)
	}
	return nil
}
