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
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"armora/internal/armory"
	armoryhandler "armora/internal/armory/handler"
	armoryservice "armora/internal/armory/service"
	"armora/internal/directory"
	"armora/internal/distribution"
	distributionhandler "armora/internal/distribution/handler"
	distributionservice "armora/internal/distribution/service"
	jwttoken "armora/internal/jwt_token"
	"armora/internal/platform/config"
	"armora/internal/platform/database"
	"armora/internal/platform/httpserver"
	"armora/internal/platform/logger"
	"armora/internal/platform/metrics"
	"armora/internal/platform/middleware"
	platformredis "armora/internal/platform/redis"
	"armora/pkg/platform/audit"
	auditkafka "armora/pkg/platform/audit/kafka"
	auditpublisher "armora/pkg/platform/audit/publisher"
	auditmemory "armora/pkg/platform/audit/store/memory"
	auditpostgres "armora/pkg/platform/audit/store/postgres"
	"armora/pkg/platform/lock"
)

const (
	jwtIssuer   = "armora"
	jwtAudience = "armora-api"
)

// jwtValidatorAdapter bridges the token service to the middleware contract.
type jwtValidatorAdapter struct {
	svc *jwttoken.JWTService
}

func (a jwtValidatorAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{ActorID: claims.ActorID, Role: claims.Role}, nil
}

// main wires storage, locking, audit, and HTTP. Business logic lives in the
// internal service packages; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		db                *sql.DB
		armoryStore       armory.Store
		distributionStore distribution.Store
		officerDirectory  directory.Directory
		auditStore        audit.Store
		engineTx          distributionservice.Tx
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}

		armoryStore = armory.NewPostgres(db)
		distributionStore = distribution.NewPostgres(db)
		officerDirectory = directory.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		engineTx = newDistributionPostgresTx(db, distributionservice.Stores{
			Armories:      armoryStore,
			Distributions: distributionStore,
		})
		log.Info("storage: postgres")
	} else {
		armoryStore = armory.NewInMemory()
		distributionStore = distribution.NewInMemory()
		officerDirectory = directory.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		engineTx = distributionservice.NewMemoryTx(distributionservice.Stores{
			Armories:      armoryStore,
			Distributions: distributionStore,
		})
		log.Warn("storage: in-memory, data will not survive restarts")
	}

	// Per-armory serialization: Redis when configured so multiple replicas
	// share the scope, in-process otherwise.
	var locker lock.Locker = lock.NewKeyed()
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient.Client)
		log.Info("locking: redis")
	}

	// Audit: Kafka stream with store fallback when brokers are configured,
	// store-only otherwise. The store-only path emits inside the engine
	// transaction, so audit rows commit with the movement they describe.
	var auditor distributionservice.AuditPublisher
	if len(cfg.KafkaBrokers) > 0 {
		opts := []auditkafka.Option{auditkafka.WithLogger(log)}
		if cfg.KafkaTopic != "" {
			opts = append(opts, auditkafka.WithTopic(cfg.KafkaTopic))
		}
		kafkaPublisher, err := auditkafka.New(cfg.KafkaBrokers, auditStore, opts...)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		auditor = kafkaPublisher
		log.Info("audit: kafka", "brokers", cfg.KafkaBrokers)
	} else {
		storePublisher := auditpublisher.NewPublisher(auditStore, auditpublisher.WithLogger(log))
		defer storePublisher.Close()
		auditor = storePublisher
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)
	validator := jwtValidatorAdapter{svc: jwtService}

	distributionSvc, err := distributionservice.New(
		engineTx,
		distributionservice.Stores{Armories: armoryStore, Distributions: distributionStore},
		locker,
		officerDirectory,
		distributionservice.WithLogger(log),
		distributionservice.WithAuditPublisher(auditor),
		distributionservice.WithMetrics(m),
		distributionservice.WithRenewalInterval(cfg.RenewalInterval),
	)
	if err != nil {
		return err
	}

	armorySvc, err := armoryservice.New(
		armoryStore,
		locker,
		armoryservice.WithLogger(log),
		armoryservice.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	distributionhandler.New(distributionSvc, log, m, validator).Register(router)
	armoryhandler.New(armorySvc, log, m, validator).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting armora", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
