// Command gateway runs the QWED verification gateway: the HTTP surface,
// the control-plane pipeline, and the background integrity/cleanup sweeps,
// wired together from environment configuration.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/QWED-AI/qwed-verification/internal/agent"
	"github.com/QWED-AI/qwed-verification/internal/audit"
	"github.com/QWED-AI/qwed-verification/internal/cache"
	"github.com/QWED-AI/qwed-verification/internal/config"
	"github.com/QWED-AI/qwed-verification/internal/controlplane"
	"github.com/QWED-AI/qwed-verification/internal/cron"
	"github.com/QWED-AI/qwed-verification/internal/dsl"
	"github.com/QWED-AI/qwed-verification/internal/engine"
	"github.com/QWED-AI/qwed-verification/internal/httpapi"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/metrics"
	"github.com/QWED-AI/qwed-verification/internal/policy"
	"github.com/QWED-AI/qwed-verification/internal/provider"
	"github.com/QWED-AI/qwed-verification/internal/ratelimit"
	"github.com/QWED-AI/qwed-verification/internal/reflection"
	"github.com/QWED-AI/qwed-verification/internal/sandbox"
	"github.com/QWED-AI/qwed-verification/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	tenantStore := postgres.NewTenantStore(db)
	auditStore := postgres.NewAuditStore(db)
	agentStore := postgres.NewAgentStore(db)

	gate := policy.New(policy.DefaultConfig(), logger)
	limiter := ratelimit.New(ratelimit.Config{
		PerKeyLimit:  cfg.RateLimitPerKey,
		PerKeyWindow: time.Minute,
		GlobalLimit:  cfg.RateLimitGlobal,
		GlobalWindow: time.Minute,
	}, logger)

	router := provider.New(provider.Config{}, logger)
	router.Register("local", provider.NewLocalTranslator(), provider.DefaultBreakerConfig())

	sandboxRunner := sandbox.New(sandbox.Config{
		MemoryLimitBytes: cfg.SandboxMemoryCap,
		Timeout:          cfg.SandboxTimeout,
	}, logger)

	dispatcher := engine.NewDispatcher(
		engine.NewMathAdapter(),
		engine.NewLogicAdapter(dsl.NewReferenceSolver(), cfg.SandboxTimeout),
		engine.NewStatsAdapter(sandboxRunner, httpapi.NewFrameSource()),
		engine.NewFactAdapter(engine.NewKeywordNLIChecker()),
		engine.NewCodeAdapter(nil),
		engine.NewSQLAdapter(),
		// No multimodal provider is wired in this deployment; image
		// verification fails closed with an ERROR verdict ("no multimodal
		// provider configured") rather than silently skipping the check.
		engine.NewImageAdapter(nil),
	)

	gatewayMetrics := metrics.New("gateway")

	reflectionLoop := reflection.New(logger)
	pipeline := controlplane.New(gate, limiter, router, dispatcher, reflectionLoop, logger)
	pipeline.Deadline = cfg.RequestDeadline
	pipeline.Metrics = gatewayMetrics

	auditWriter, err := audit.NewWriter(ctx, auditStore, []byte(cfg.AuditHMACKey), logger)
	if err != nil {
		log.Fatalf("build audit writer: %v", err)
	}
	pipeline.Audit = auditWriter

	l1, err := cache.NewLRUCache(cfg.CacheSize)
	if err != nil {
		log.Fatalf("build LRU cache: %v", err)
	}
	var tieredL2 cache.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse REDIS_URL: %v", err)
		}
		tieredL2 = cache.NewRedisCache(redis.NewClient(opts))
	}
	pipeline.Cache = cache.NewTieredCache(l1, tieredL2, logger)

	signingKey := attestationSigningKey(cfg.AttestationSeed, logger)

	srv := &httpapi.Server{
		Pipeline:   pipeline,
		Resolver:   tenantStore,
		AuditStore: auditStore,
		Agents:     agentStore,
		Logger:     logger,
		Metrics:    gatewayMetrics,
		SigningKey: signingKey,
	}

	routerCfg := httpapi.Config{
		ServiceName:     "gateway",
		CORSOrigins:     config.SplitAndTrimCSV(cfg.CORSOrigins),
		MaxRequestBytes: cfg.MaxRequestBytes,
		RequestTimeout:  cfg.RequestDeadline,
		MaxInFlight:     cfg.MaxInFlight,
	}
	mux := srv.NewRouter(routerCfg)

	scheduler := cron.New(logger)
	verifier := audit.NewVerifier(auditStore, []byte(cfg.AuditHMACKey))
	if err := scheduler.RegisterAuditIntegritySweep("@every 5m", verifier); err != nil {
		log.Fatalf("register audit sweep: %v", err)
	}
	if err := scheduler.RegisterRateLimiterCleanup("@every 1m", limiter); err != nil {
		log.Fatalf("register rate limiter cleanup: %v", err)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("gateway listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	<-scheduler.Stop().Done()
}

// attestationSigningKey derives an Ed25519 key from a hex-encoded 32-byte
// seed, matching the donor's JWT_SECRET-loading pattern: a hard failure
// on a malformed configured seed, and an insecure generated fallback
// whenever the seed is empty, in any environment, logged loudly so it is
// never mistaken for a deliberate choice.
func attestationSigningKey(hexSeed string, logger *logging.Logger) ed25519.PrivateKey {
	hexSeed = strings.TrimSpace(hexSeed)
	if hexSeed == "" {
		logger.Error(context.Background(), "ATTESTATION_SIGNING_SEED not set; generating an ephemeral key (tokens will not verify across restarts)", nil, nil)
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			log.Fatalf("generate ephemeral attestation key: %v", err)
		}
		return priv
	}

	seed, err := hex.DecodeString(hexSeed)
	if err != nil || len(seed) != ed25519.SeedSize {
		log.Fatalf("ATTESTATION_SIGNING_SEED must be a hex-encoded %d-byte seed", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed)
}
