// Command secretsproxy runs the credential-isolating reverse proxy that
// sits between agent workloads and LLM provider APIs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/covegate/secrets-proxy/internal/config"
	"github.com/covegate/secrets-proxy/internal/monitoring"
	"github.com/covegate/secrets-proxy/internal/providers"
	"github.com/covegate/secrets-proxy/internal/proxy"
	"github.com/covegate/secrets-proxy/internal/store"
)

func main() {
	configPath := flag.String("config", "secretsproxy.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer func() { _ = st.Close() }()

	registry, err := providers.NewRegistry(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("provider table invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var signer *proxy.BedrockSigner
	if cfg.Bedrock.Enabled {
		signer, err = proxy.NewBedrockSigner(ctx, cfg.Bedrock.Region)
		if err != nil {
			log.Fatal().Err(err).Msg("bedrock signer init failed")
		}
		log.Info().Str("region", cfg.Bedrock.Region).Bool("configured", signer.IsConfigured()).Msg("bedrock signing enabled")
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		LogPath:     cfg.Telemetry.LogPath,
		LogToStdout: cfg.Telemetry.LogToStdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry init failed")
	}
	tracker.RecordInit(buildInitEvent(cfg, registry))

	p := proxy.New(cfg, registry, st, tracker, signer)
	srv := proxy.NewServer(p)

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("secrets proxy stopped")
}

func buildInitEvent(cfg *config.Config, registry *providers.Registry) *monitoring.InitEvent {
	ev := &monitoring.InitEvent{
		Timestamp:           time.Now(),
		Event:               "proxy_init",
		ServerPort:          cfg.Server.Port,
		DefaultTokenCeiling: cfg.Quota.DefaultTokenCeiling,
		RateLimitEnabled:    cfg.RateLimit.Enabled,
		TelemetryPath:       cfg.Telemetry.LogPath,
	}
	for _, name := range registry.Names() {
		prov, _ := registry.Get(name)
		ev.Providers = append(ev.Providers, monitoring.InitProvider{
			Name:       prov.Name,
			AuthScheme: string(prov.AuthScheme),
			Upstream:   prov.Upstream.String(),
			HasAPIKey:  prov.APIKey != "",
		})
	}
	return ev
}
