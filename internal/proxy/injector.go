package proxy

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/providers"
	"github.com/covegate/secrets-proxy/internal/utils"
)

// baseAllowlist is forwarded for every provider, on top of the
// provider's own pass-through headers.
var baseAllowlist = []string{"Content-Type", "Accept"}

// Injector builds the outbound header set: everything inbound is
// stripped except an explicit allowlist, then the provider credential is
// attached using the provider's declared scheme. The inbound run
// identifier and run credential never leave the proxy.
type Injector struct {
	signer *BedrockSigner
}

// NewInjector creates an auth injector. signer may be nil when no
// provider uses the aws_sigv4 scheme.
func NewInjector(signer *BedrockSigner) *Injector {
	return &Injector{signer: signer}
}

// Inject returns the outbound headers for a request to prov, or a
// configuration denial when the provider credential is absent. No
// network call is attempted on denial.
func (i *Injector) Inject(prov *providers.Provider, inbound http.Header) (http.Header, *Denial) {
	out := make(http.Header)
	for _, h := range baseAllowlist {
		if v := inbound.Get(h); v != "" {
			out.Set(h, v)
		}
	}
	for _, h := range prov.PassHeaders {
		if v := inbound.Get(h); v != "" {
			out.Set(h, v)
		}
	}

	switch prov.AuthScheme {
	case providers.AuthAPIKey:
		if prov.APIKey == "" {
			return nil, deny(ReasonProviderUnconfigured)
		}
		out.Set(prov.AuthHeader, prov.APIKey)
	case providers.AuthBearer:
		if prov.APIKey == "" {
			return nil, deny(ReasonProviderUnconfigured)
		}
		out.Set("Authorization", "Bearer "+prov.APIKey)
	case providers.AuthSigV4:
		// Signing happens at forward time over the final request; here we
		// only verify the signer has credentials.
		if i.signer == nil || !i.signer.IsConfigured() {
			return nil, deny(ReasonProviderUnconfigured)
		}
	default:
		return nil, deny(ReasonProviderUnconfigured)
	}

	log.Debug().
		Str("provider", prov.Name).
		Str("scheme", string(prov.AuthScheme)).
		Str("key", utils.MaskKey(prov.APIKey)).
		Msg("injector: outbound auth prepared")

	return out, nil
}
