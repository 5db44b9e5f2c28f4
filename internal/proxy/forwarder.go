package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/config"
	"github.com/covegate/secrets-proxy/internal/providers"
)

// Forwarder performs the single outbound HTTP call per inbound request.
// Connections to providers are pooled; timeouts are sized for LLM
// completions that run for minutes. The inbound request context is
// threaded through so a caller disconnect cancels the upstream call.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	signer  *BedrockSigner
}

// NewForwarder creates a forwarder with a pooled transport.
func NewForwarder(signer *BedrockSigner) *Forwarder {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Forwarder{
		// No client-level timeout: it would cut off streaming bodies.
		// The per-request context carries the overall deadline instead.
		client:  &http.Client{Transport: transport},
		timeout: config.DefaultUpstreamTimeout,
		signer:  signer,
	}
}

// Forward issues the outbound request. Network-level failures (DNS,
// refused connection, timeout) become an upstream_unreachable denial;
// any HTTP status from the provider is returned as-is for verbatim
// pass-through. The caller owns resp.Body.
func (f *Forwarder) Forward(ctx context.Context, prov *providers.Provider, method, upstreamPath, rawQuery string, headers http.Header, body []byte) (*http.Response, *Denial) {
	target := &url.URL{
		Scheme:   prov.Upstream.Scheme,
		Host:     prov.Upstream.Host,
		Path:     upstreamPath,
		RawQuery: rawQuery,
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, denyErr(ReasonUpstreamUnreachable, err)
	}
	req.Header = headers

	if prov.AuthScheme == providers.AuthSigV4 && f.signer != nil {
		if err := f.signer.SignRequest(ctx, req, body); err != nil {
			cancel()
			log.Error().Err(err).Str("provider", prov.Name).Msg("forwarder: sigv4 signing failed")
			return nil, denyErr(ReasonProviderUnconfigured, err)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		log.Warn().Err(err).
			Str("provider", prov.Name).
			Str("host", prov.Upstream.Host).
			Msg("forwarder: upstream request failed")
		return nil, denyErr(ReasonUpstreamUnreachable, err)
	}

	// Tie the deadline's cancel to body closure so streaming reads stay
	// valid until the caller is done.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
