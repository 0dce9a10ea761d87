package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	attestationmetrics "lexaudit/internal/attestation/metrics"
	attestationhandler "lexaudit/internal/attestation/handler"
	"lexaudit/internal/attestation/threshold"
	"lexaudit/internal/attestation/witness"
	"lexaudit/internal/ledger"
	"lexaudit/internal/ledger/adapters"
	ledgerhandler "lexaudit/internal/ledger/handler"
	ledgermetrics "lexaudit/internal/ledger/metrics"
	"lexaudit/internal/platform/config"
	"lexaudit/internal/platform/httpserver"
	"lexaudit/internal/platform/kafka"
	"lexaudit/internal/platform/logger"
	platformredis "lexaudit/internal/platform/redis"
	"lexaudit/internal/privacy"
	privacymetrics "lexaudit/internal/privacy/metrics"
	reporthandler "lexaudit/internal/report/handler"
	"lexaudit/internal/snapshot"
	snapshotstore "lexaudit/internal/snapshot/store"
	"lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/audit/publishers/compliance"
	auditmemory "lexaudit/pkg/platform/audit/store/memory"
	"lexaudit/pkg/platform/hashing"
	"lexaudit/pkg/platform/httputil"
	"lexaudit/pkg/platform/middleware/requesttime"
	"lexaudit/pkg/platform/signing"
)

// main wires the ledger, its attestation services and the privacy layer,
// serves the read-only report API and snapshots state on shutdown.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("lexaudit stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	reg       *prometheus.Registry
	auditor   audit.Emitter
	hasher    hashing.Hasher
	snapshots snapshot.Store
	redis     *platformredis.Client
	producer  *adapters.KafkaPublisher
	closers   []func()
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	ledgerOpts := []ledger.Option{
		ledger.WithHasher(deps.hasher),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New(deps.reg)),
		ledger.WithAuditEmitter(deps.auditor),
	}
	if deps.producer != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithAppendHook(deps.producer.Publish))
	}
	chain := ledger.New(ledgerOpts...)

	attMetrics := attestationmetrics.New(deps.reg)
	verifier := signing.Ed25519Verifier{}

	var coordinator *threshold.Coordinator
	if len(cfg.Threshold.Parties) > 0 {
		coordinator, err = buildCoordinator(cfg.Threshold, verifier, deps, attMetrics, log)
		if err != nil {
			return err
		}
	}

	registry := witness.NewRegistry(
		witness.WithVerifier(verifier),
		witness.WithLogger(log),
		witness.WithMetrics(attMetrics),
		witness.WithAuditEmitter(deps.auditor),
	)

	dpMetrics := privacymetrics.New(deps.reg)
	engineOpts := []privacy.EngineOption{privacy.WithEngineMetrics(dpMetrics)}
	if cfg.Privacy.SplitHistogramEpsilon {
		engineOpts = append(engineOpts, privacy.SplitHistogramEpsilon())
	}
	engine, err := privacy.NewEngine(cfg.Privacy.Epsilon, cfg.Privacy.Delta, engineOpts...)
	if err != nil {
		return err
	}
	budget, err := privacy.NewBudgetTracker(cfg.Privacy.TotalBudget,
		privacy.WithBudgetLogger(log),
		privacy.WithBudgetMetrics(dpMetrics),
		privacy.WithBudgetAuditEmitter(deps.auditor),
	)
	if err != nil {
		return err
	}
	dp := privacy.NewService(chain, engine, budget, privacy.WithServiceLogger(log))

	snaps := snapshot.New(deps.snapshots, snapshot.WithLogger(log), snapshot.WithAuditEmitter(deps.auditor))
	snaps.Register("ledger", chain)
	if coordinator != nil {
		snaps.Register("threshold", coordinator)
	}
	snaps.Register("witness", registry)

	restored, err := snaps.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	log.Info("snapshot restored", "parts", restored, "records", chain.Count())

	var thresholdStatus reporthandler.Threshold
	var thresholdSubmit attestationhandler.Threshold
	if coordinator != nil {
		thresholdStatus = coordinator
		thresholdSubmit = coordinator
	}
	policy := witness.NotarizationPolicy{
		MinSignatures:     cfg.Notarization.MinSignatures,
		RequiredWitnesses: cfg.Notarization.RequiredWitnesses,
		MaxSignatureAge:   cfg.Notarization.MaxSignatureAge,
	}
	reports := reporthandler.New(chain, thresholdStatus, registry, dp, policy, log)

	routes := []registrar{
		ledgerhandler.New(chain, log),
		attestationhandler.New(chain, thresholdSubmit, registry, log),
		reports,
	}
	srv := httpserver.New(cfg.Server, newRouter(routes, deps.redis, deps.reg, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		snaps.Run(gctx, cfg.Snapshot.Interval)
		return nil
	})
	serveErr := g.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := snaps.Save(saveCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("save snapshot on shutdown: %w", err))
	}
	return serveErr
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{reg: prometheus.NewRegistry()}
	deps.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps.auditor = compliance.New(auditmemory.NewInMemoryStore(auditmemory.WithCapacity(cfg.Audit.Capacity)),
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(deps.reg)),
	)

	hasher, err := hashing.New(hashing.Algorithm(cfg.Ledger.HashAlgorithm))
	if err != nil {
		return nil, err
	}
	deps.hasher = hasher

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		log.Info("snapshots stored in redis")
		deps.redis = redisClient
		deps.snapshots = snapshotstore.NewRedis(redisClient.Client)
		deps.closers = append(deps.closers, func() { _ = redisClient.Close() })
	} else {
		log.Warn("REDIS_URL not set; snapshots kept in memory only")
		deps.snapshots = snapshotstore.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka); err != nil {
			deps.close()
			return nil, err
		}
		log.Info("publishing ledger appends", "topic", cfg.Kafka.Topic)
		deps.producer = adapters.NewKafkaPublisher(client, cfg.Kafka.Topic)
	}
	return deps, nil
}

func buildCoordinator(
	cfg config.Threshold,
	verifier signing.Verifier,
	deps *infra,
	m *attestationmetrics.Metrics,
	log *slog.Logger,
) (*threshold.Coordinator, error) {
	parties := make([]threshold.Party, 0, len(cfg.Parties))
	for _, p := range cfg.Parties {
		parties = append(parties, threshold.Party(p))
	}
	tcfg, err := threshold.NewConfig(parties, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	return threshold.New(tcfg, verifier,
		threshold.WithHasher(deps.hasher),
		threshold.WithLogger(log),
		threshold.WithMetrics(m),
		threshold.WithAuditEmitter(deps.auditor),
	)
}

type registrar interface {
	Register(r chi.Router)
}

func newRouter(routes []registrar, redisClient *platformredis.Client, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requesttime.Middleware)

	r.Get("/health", healthHandler(redisClient, log))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	for _, h := range routes {
		h.Register(r)
	}
	return r
}

// healthHandler reports 503 while the snapshot store is unreachable.
func healthHandler(redisClient *platformredis.Client, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				log.WarnContext(r.Context(), "health check failed", "component", "redis", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"redis":  "unreachable",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
