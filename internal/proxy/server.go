package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/providers"
)

// Server hosts the proxy's HTTP surface.
type Server struct {
	proxy *Proxy
	srv   *http.Server
}

// NewServer mounts the health endpoint and the provider-prefixed proxy
// route, with the rate limiter in front of the pipeline when enabled.
func NewServer(p *Proxy) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.handleHealth)

	var handler http.Handler = http.HandlerFunc(p.handleProxy)
	if p.cfg.RateLimit.Enabled {
		limiter := NewRateLimiter(p.cfg.RateLimit, p.cfg.Headers.RunID)
		handler = limiter.Middleware(handler)
	}
	mux.Handle(providers.RoutePrefix, handler)

	return &Server{
		proxy: p,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", p.cfg.Server.Port),
			Handler:      mux,
			ReadTimeout:  p.cfg.Server.ReadTimeout,
			WriteTimeout: p.cfg.Server.WriteTimeout,
		},
	}
}

// Handler exposes the mounted routes (tests drive this directly).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("secrets proxy listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
