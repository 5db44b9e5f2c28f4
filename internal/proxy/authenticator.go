package proxy

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/store"
)

// RunStore is the persistence surface the pipeline consumes.
type RunStore interface {
	GetRun(ctx context.Context, id string) (store.Run, error)
	ProvisionCredential(ctx context.Context, runID, credential string) error
	RecordUsage(ctx context.Context, rec store.UsageRecord) error
	Ping(ctx context.Context) error
}

// Authenticator validates a run identity and its presented per-run
// credential against the run store.
type Authenticator struct {
	store RunStore
}

// NewAuthenticator creates a run authenticator.
func NewAuthenticator(st RunStore) *Authenticator {
	return &Authenticator{store: st}
}

// NewCredential generates an opaque per-run proxy credential.
func NewCredential() string {
	return "rk-" + uuid.NewString()
}

// Authenticate resolves the run and verifies the presented credential.
//
// A run with no provisioned credential gets a fresh one persisted as a
// side effect and the request is still denied: the caller cannot present
// a value it was never issued, and a provisioning gap must never
// silently authorize a stale or absent credential. Issuance itself
// happens out-of-band at run start.
func (a *Authenticator) Authenticate(ctx context.Context, runID, presented string) (store.Run, *Denial) {
	if runID == "" {
		return store.Run{}, deny(ReasonMissingIdentifier)
	}

	run, err := a.store.GetRun(ctx, runID)
	if err != nil {
		return store.Run{}, denyErr(ReasonInvalidOrInactiveRun, err)
	}
	if run.Status != store.StatusRunning {
		log.Debug().Str("run_id", runID).Str("status", run.Status).Msg("auth: run not running")
		return store.Run{}, deny(ReasonInvalidOrInactiveRun)
	}

	if run.Credential == "" {
		fresh := NewCredential()
		if err := a.store.ProvisionCredential(ctx, runID, fresh); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("auth: credential provisioning failed")
		} else {
			log.Warn().Str("run_id", runID).Msg("auth: run had no credential, provisioned a new one")
		}
		return store.Run{}, deny(ReasonInvalidCredential)
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(run.Credential)) != 1 {
		log.Debug().Str("run_id", runID).Msg("auth: credential mismatch")
		return store.Run{}, deny(ReasonInvalidCredential)
	}

	return run, nil
}
