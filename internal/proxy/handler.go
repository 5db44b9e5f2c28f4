// HTTP request handling for the secrets proxy.
//
// DESIGN: Main request flow:
//   - handleProxy():   Entry point for all agent LLM requests
//   - pipeline stages: Authenticator → QuotaGuard → Router → Injector → Forwarder
//   - relayResponse(): Verbatim pass-through, with usage metering on 2xx
//
// Any stage may short-circuit with a *Denial, which the error mapper
// turns into the structured JSON denial response. The provider
// credential is injected on the way out and never reaches the caller;
// the run credential is stripped and never reaches the provider.
package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/config"
	"github.com/covegate/secrets-proxy/internal/monitoring"
	"github.com/covegate/secrets-proxy/internal/providers"
	"github.com/covegate/secrets-proxy/internal/store"
	"github.com/covegate/secrets-proxy/internal/usage"
)

// Proxy wires the pipeline stages over shared configuration.
type Proxy struct {
	cfg       *config.Config
	registry  *providers.Registry
	store     RunStore
	auth      *Authenticator
	quota     *QuotaGuard
	injector  *Injector
	forwarder *Forwarder
	tracker   *monitoring.Tracker
}

// New assembles the proxy pipeline. signer may be nil when no provider
// uses SigV4.
func New(cfg *config.Config, registry *providers.Registry, st RunStore, tracker *monitoring.Tracker, signer *BedrockSigner) *Proxy {
	return &Proxy{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		auth:      NewAuthenticator(st),
		quota:     NewQuotaGuard(cfg.Quota.DefaultTokenCeiling),
		injector:  NewInjector(signer),
		forwarder: NewForwarder(signer),
		tracker:   tracker,
	}
}

// handleHealth returns proxy health, exercising the store.
func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := p.store.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(health)
}

// handleProxy runs the full pipeline for one inbound request.
func (p *Proxy) handleProxy(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.New().String()

	event := &monitoring.RequestEvent{
		RequestID: requestID,
		Timestamp: startTime,
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  r.RemoteAddr,
	}
	defer func() {
		event.TotalLatencyMs = time.Since(startTime).Milliseconds()
		p.tracker.RecordRequest(event)
	}()

	runID := r.Header.Get(p.cfg.Headers.RunID)
	presented := r.Header.Get(p.cfg.Headers.RunKey)
	event.RunID = runID

	run, denial := p.auth.Authenticate(r.Context(), runID, presented)
	if denial != nil {
		p.denyRequest(w, event, denial)
		return
	}
	event.ProjectID = run.ProjectID

	if denial := p.quota.Check(run); denial != nil {
		p.denyRequest(w, event, denial)
		return
	}

	prov, upstreamPath, ok := p.registry.Route(r.URL.Path)
	if !ok {
		p.denyRequest(w, event, deny(ReasonUnknownProvider))
		return
	}
	event.Provider = prov.Name

	headers, denial := p.injector.Inject(prov, r.Header)
	if denial != nil {
		p.denyRequest(w, event, denial)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		event.StatusCode = http.StatusBadRequest
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to read request"})
		return
	}

	forwardStart := time.Now()
	resp, denial := p.forwarder.Forward(r.Context(), prov, r.Method, upstreamPath, r.URL.RawQuery, headers, body)
	if denial != nil {
		event.ForwardLatencyMs = time.Since(forwardStart).Milliseconds()
		p.denyRequest(w, event, denial)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	p.relayResponse(w, r, resp, run, prov, event)
	event.ForwardLatencyMs = time.Since(forwardStart).Milliseconds()
}

// denyRequest maps the denial to its response and logs it. The presented
// and stored credential values are never logged.
func (p *Proxy) denyRequest(w http.ResponseWriter, event *monitoring.RequestEvent, d *Denial) {
	event.StatusCode = d.StatusCode()
	event.DenialReason = string(d.Reason)
	event.Success = false

	logEvent := log.Info()
	if d.Err != nil {
		logEvent = log.Warn().Err(d.Err)
	}
	logEvent.
		Str("request_id", event.RequestID).
		Str("run_id", event.RunID).
		Str("reason", string(d.Reason)).
		Int("status", d.StatusCode()).
		Msg("request denied")

	writeDenial(w, d)
}

// relayResponse passes the upstream response through verbatim and, on
// success-class statuses, meters usage. Streaming bodies are teed to the
// client while an SSE parser watches for usage events.
func (p *Proxy) relayResponse(w http.ResponseWriter, r *http.Request, resp *http.Response, run store.Run, prov *providers.Provider, event *monitoring.RequestEvent) {
	event.StatusCode = resp.StatusCode
	event.Success = resp.StatusCode < 400

	copyHeaders(w, resp.Header)

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !success {
		// Provider errors pass through untouched; nothing is metered.
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		return
	}

	if isEventStream(resp.Header) {
		event.Streaming = true
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(resp.StatusCode)
		u, ok := p.streamThrough(w, resp.Body, prov.Usage)
		if ok {
			p.recordUsage(r.Context(), run, prov, u, event)
		}
		return
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// Upstream died mid-body; relay what we have, skip metering.
		log.Warn().Err(err).Str("request_id", event.RequestID).Msg("relay: upstream body truncated")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(respBody)
		return
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)

	if u, ok := usage.Extract(prov.Usage, respBody); ok {
		p.recordUsage(r.Context(), run, prov, u, event)
	} else {
		log.Warn().
			Str("request_id", event.RequestID).
			Str("run_id", run.ID).
			Str("provider", prov.Name).
			Msg("relay: usage extraction failed, metering skipped")
	}
}

// streamThrough relays an SSE body chunk by chunk, feeding each chunk to
// the usage parser. A client disconnect stops the relay; tokens the
// provider billed before the disconnect are not recoverable and are not
// recorded.
func (p *Proxy) streamThrough(w http.ResponseWriter, reader io.Reader, fields usage.Fields) (usage.Usage, bool) {
	flusher, canFlush := w.(http.Flusher)
	parser := usage.NewSSEParser(fields)

	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			parser.Feed(chunk)
			if _, writeErr := w.Write(chunk); writeErr != nil {
				log.Debug().Err(writeErr).Msg("stream: client disconnected")
				return usage.Usage{}, false
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("stream: upstream read ended")
			}
			break
		}
	}
	return parser.Usage()
}

// recordUsage converts usage to cost and persists it atomically. A
// recording failure degrades the platform's bookkeeping, never the
// caller's request, so errors are logged and swallowed. The write uses a
// detached context: a client disconnect after a completed response must
// not lose the metering.
func (p *Proxy) recordUsage(ctx context.Context, run store.Run, prov *providers.Provider, u usage.Usage, event *monitoring.RequestEvent) {
	cost := usage.CostCents(u)

	event.Model = u.Model
	event.InputTokens = u.InputTokens
	event.OutputTokens = u.OutputTokens
	event.CostCents = cost

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := p.store.RecordUsage(recordCtx, store.UsageRecord{
		RunID:        run.ID,
		ProjectID:    run.ProjectID,
		Provider:     prov.Name,
		Model:        u.Model,
		InputTokens:  int64(u.InputTokens),
		OutputTokens: int64(u.OutputTokens),
		CostCents:    cost,
	})
	if err != nil {
		log.Error().Err(err).
			Str("run_id", run.ID).
			Str("provider", prov.Name).
			Int("input_tokens", u.InputTokens).
			Int("output_tokens", u.OutputTokens).
			Msg("usage recording failed")
		return
	}
	event.UsageRecorded = true

	log.Info().
		Str("run_id", run.ID).
		Str("provider", prov.Name).
		Str("model", u.Model).
		Int("input_tokens", u.InputTokens).
		Int("output_tokens", u.OutputTokens).
		Int64("cost_cents", cost).
		Msg("usage recorded")
}

func isEventStream(h http.Header) bool {
	return strings.HasPrefix(h.Get("Content-Type"), "text/event-stream")
}

// copyHeaders copies HTTP headers from source to destination.
func copyHeaders(w http.ResponseWriter, src http.Header) {
	for k, v := range src {
		w.Header()[k] = v
	}
}
