package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dumpgw/internal/config"
	"dumpgw/internal/dump"
	"dumpgw/internal/exchange"
	"dumpgw/internal/handler"
	"dumpgw/internal/metrics"
	"dumpgw/internal/middleware"
	"dumpgw/internal/plugin"
	"dumpgw/internal/security"
	"dumpgw/internal/storedresponse"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg.Log)

	// metrics
	metricsRegistry := metrics.NewRegistry()

	// optional archive
	var archive *dump.RedisSink
	if cfg.Dump.RedisAddr != "" {
		archive, err = dump.NewRedisSink(context.Background(), cfg.Dump.RedisAddr, cfg.Dump.RedisKey, cfg.Dump.RedisMaxLen)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer archive.Close()
	}

	// handler plugins
	dumpBuilder := dump.NewBuilder(dumpOptions(cfg.Dump, metricsRegistry, archive))
	registry, err := plugin.NewRegistry(
		plugin.FormData{},
		plugin.StoredResponse{MaxBytes: cfg.StoredResponseMax},
		dumpBuilder,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register handlers")
	}
	plugins, err := plugin.Chain(registry, cfg.Handlers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build handler chain")
	}

	// handlers
	proxy, err := handler.NewProxyHandler(cfg.DownstreamURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid downstream")
	}
	health := &handler.HealthHandler{Dumpers: dumpBuilder.Dumpers}
	if archive != nil {
		health.Archive = archive
	}
	admin := handler.NewAdminHandler(registry, cfg.Handlers)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRegistry.Handler())
	mux.Handle("/admin/handlers", admin)
	mux.HandleFunc("/health", health.Liveness)
	mux.HandleFunc("/ready", health.Readiness)
	mux.HandleFunc("/status", health.Status)
	mux.Handle("/", proxy)

	mechanisms := buildMechanisms(cfg.Auth)
	log.Info().Int("mechanisms", len(mechanisms)).Bool("required", cfg.Auth.Required).Msg("authentication configured")

	// middleware chain, innermost first
	h := plugins(mux)
	h = security.Handler(security.Options{Mechanisms: mechanisms, Required: cfg.Auth.Required})(h)
	h = exchange.Handler(h)
	h = middleware.RequestSizeLimit(cfg.MaxRequestSize)(h)
	h = middleware.CountRequests(metricsRegistry)(h)
	h = middleware.Logging(h)
	h = middleware.RequestID(h)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: h}

	go func() {
		log.Info().Msgf("listening %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.GracefulShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	for _, d := range dumpBuilder.Dumpers() {
		d.Wait()
	}
	log.Info().Msg("server exited")
}

func setupLogging(c config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func dumpOptions(c config.DumpConfig, m *metrics.Registry, archive *dump.RedisSink) dump.Options {
	opts := dump.Options{
		Address:      c.Address,
		Port:         c.Port,
		Format:       dump.Format(c.Format),
		Framing:      dump.Framing(c.Framing),
		DialTimeout:  c.DialTimeout,
		WriteTimeout: c.WriteTimeout,
		Async:        c.Async,
		Metrics:      m,
		Stored:       storedresponse.Reader{},
	}
	if archive != nil {
		opts.Archive = archive
	}
	return opts
}

func buildMechanisms(c config.AuthConfig) []security.Mechanism {
	var mechanisms []security.Mechanism
	if len(c.APIKeys) > 0 {
		store := security.NewAPIKeyStore()
		for i := range c.APIKeys {
			store.AddKey(&c.APIKeys[i])
		}
		log.Info().Int("keys", store.Len()).Msg("api keys loaded")
		mechanisms = append(mechanisms, security.NewAPIKeyMechanism(store))
	}
	if c.JWKSURL != "" {
		client := security.NewJWKSClient(c.JWKSURL, 10*time.Minute)
		mechanisms = append(mechanisms, security.NewJWKSJWT(client, c.JWTIssuer, c.JWTAudience))
	} else if c.JWTSecret != "" {
		mechanisms = append(mechanisms, security.NewHMACJWT([]byte(c.JWTSecret), c.JWTIssuer))
	}
	if c.BasicUsers != "" {
		mechanisms = append(mechanisms, security.NewBasic("", security.ParseUsers(c.BasicUsers)))
	}
	return mechanisms
}
