package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	jwttoken "mobirides/internal/jwt_token"
	"mobirides/internal/platform/config"
	"mobirides/internal/platform/httpserver"
	"mobirides/internal/platform/kafka"
	"mobirides/internal/platform/logger"
	platformmetrics "mobirides/internal/platform/metrics"
	"mobirides/internal/platform/middleware"
	"mobirides/internal/platform/postgres"
	platformredis "mobirides/internal/platform/redis"
	"mobirides/internal/verification/controller"
	"mobirides/internal/verification/events"
	"mobirides/internal/verification/handler"
	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/review"
	"mobirides/internal/verification/sessions"
	"mobirides/internal/verification/store"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/platform/audit/publishers/compliance"
	"mobirides/pkg/platform/audit/publishers/ops"
	auditmemory "mobirides/pkg/platform/audit/store/memory"
	auditpostgres "mobirides/pkg/platform/audit/store/postgres"
	"mobirides/pkg/platform/httputil"
	adminmw "mobirides/pkg/platform/middleware/admin"
	authmw "mobirides/pkg/platform/middleware/auth"
	"mobirides/pkg/platform/middleware/metadata"
	"mobirides/pkg/platform/middleware/request"
	"mobirides/pkg/platform/middleware/requesttime"
	txcontext "mobirides/pkg/platform/tx"
)

const (
	shutdownTimeout = 10 * time.Second
	tokenIssuer     = "mobirides"
	tokenAudience   = "mobirides-app"
)

// main wires dependencies and runs the HTTP server, the session sweeper and
// the review consumer until a signal arrives.
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
		log.Error("mobirides stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("mobirides stopped")
}

type infra struct {
	db       *sql.DB
	redis    *platformredis.Client
	producer *kgo.Client
	consumer *kgo.Client
}

func (i *infra) close() {
	if i.consumer != nil {
		i.consumer.Close()
	}
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	verificationMetrics := metrics.New()
	httpMetrics := platformmetrics.New()

	deps := &infra{}
	defer deps.close()

	var err error
	if deps.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return err
	}
	if deps.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		return err
	}

	backend, auditStore, txRunner := buildStores(deps, cfg, log, verificationMetrics)
	auditor := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	activity := ops.New(auditStore, ops.WithLogger(log))

	publisher, err := buildPublisher(ctx, deps, cfg, log)
	if err != nil {
		return err
	}

	reviewOpts := []review.Option{
		review.WithStatusPublisher(publisher),
		review.WithMetrics(verificationMetrics),
		review.WithLogger(log),
	}
	if txRunner != nil {
		reviewOpts = append(reviewOpts, review.WithTxRunner(txRunner))
	}
	reviewer := review.New(backend, auditor, reviewOpts...)

	registry := sessions.New(func() *controller.Controller {
		return controller.New(backend,
			controller.WithLogger(log),
			controller.WithMetrics(verificationMetrics),
			controller.WithAuditPublisher(auditor),
			controller.WithStatusPublisher(publisher),
			controller.WithActivityRecorder(activity),
		)
	}, cfg.Sessions.IdleTTL,
		sessions.WithMetrics(verificationMetrics),
		sessions.WithLogger(log),
		sessions.WithWatch(cfg.Sessions.WatchInterval),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	router := newRouter(routerDeps{
		log:       log,
		metrics:   httpMetrics,
		handler:   handler.New(registry, reviewer, log),
		validator: jwtService.Middleware(),
		adminKey:  cfg.AdminAPIToken,
		health:    healthCheck(deps),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting mobirides verification service",
			"addr", cfg.Addr,
			"environment", cfg.Environment,
			"postgres", deps.db != nil,
			"redis", deps.redis != nil,
			"kafka", cfg.Kafka.Enabled(),
		)
		return httpserver.Run(gctx, srv, shutdownTimeout)
	})
	g.Go(func() error {
		return ignoreCanceled(registry.Run(gctx, cfg.Sessions.SweepInterval))
	})
	g.Go(func() error {
		return ignoreCanceled(activity.Run(gctx))
	})
	if cfg.Kafka.Enabled() {
		if deps.consumer, err = kafka.NewConsumer(cfg.Kafka); err != nil {
			return err
		}
		consumer := events.NewReviewConsumer(deps.consumer, reviewer, log)
		g.Go(func() error {
			return ignoreCanceled(consumer.Run(gctx))
		})
	}
	return g.Wait()
}

func buildStores(deps *infra, cfg config.Server, log *slog.Logger, m *metrics.Metrics) (store.Backend, audit.Store, review.TxRunner) {
	var (
		backend    store.Backend
		auditStore audit.Store
		txRunner   review.TxRunner
	)
	if deps.db != nil {
		backend = store.NewPostgres(deps.db, store.WithPostgresMetrics(m))
		auditStore = auditpostgres.New(deps.db)
		txRunner = txcontext.NewRunner(deps.db)
	} else {
		log.Warn("DATABASE_URL not set; verification records are kept in memory")
		backend = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}
	if deps.redis != nil {
		backend = store.NewRedisCache(backend, deps.redis.Client, cfg.Redis.CacheTTL, store.WithCacheLogger(log))
	}
	return backend, auditStore, txRunner
}

func buildPublisher(ctx context.Context, deps *infra, cfg config.Server, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		return events.NewLogPublisher(log), nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	deps.producer = producer
	if err := kafka.EnsureTopics(ctx, producer, 3, 1, cfg.Kafka.StatusTopic, cfg.Kafka.ReviewTopic); err != nil {
		return nil, err
	}
	return events.NewKafkaPublisher(producer, cfg.Kafka.StatusTopic), nil
}

type routerDeps struct {
	log       *slog.Logger
	metrics   *platformmetrics.Metrics
	handler   *handler.Handler
	validator authmw.JWTValidator
	adminKey  string
	health    func(context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(d.log))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Latency(d.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.health(r.Context()); err != nil {
			d.log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.validator, d.log))
		d.handler.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(d.adminKey, d.log))
		d.handler.RegisterAdmin(r)
	})
	return r
}

func healthCheck(deps *infra) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if deps.db != nil {
			if err := deps.db.PingContext(ctx); err != nil {
				return err
			}
		}
		if deps.redis != nil {
			if err := deps.redis.Health(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
