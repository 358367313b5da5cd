// Command loanserved runs the loan servicing engine: the payment pipeline
// consumers, the outbox dispatcher, reconciliation and ACH return intake,
// and the daily servicing cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cschwartz85032/loanserve-sub003/internal/ach"
	"github.com/cschwartz85032/loanserve-sub003/internal/collections"
	"github.com/cschwartz85032/loanserve-sub003/internal/config"
	"github.com/cschwartz85032/loanserve-sub003/internal/escrow"
	"github.com/cschwartz85032/loanserve-sub003/internal/ledger"
	"github.com/cschwartz85032/loanserve-sub003/internal/loan"
	"github.com/cschwartz85032/loanserve-sub003/internal/payments"
	"github.com/cschwartz85032/loanserve-sub003/internal/reconcile"
	"github.com/cschwartz85032/loanserve-sub003/internal/scheduler"
	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
	"github.com/cschwartz85032/loanserve-sub003/pkg/kafka"
	"github.com/cschwartz85032/loanserve-sub003/pkg/observability"
	pgpkg "github.com/cschwartz85032/loanserve-sub003/pkg/postgres"
)

const migrationsDir = "file://./migrations"

// brokerPublisher adapts the kafka producer to the outbox dispatcher's
// publisher port and counts what goes out.
type brokerPublisher struct {
	producer *kafka.Producer
	metrics  *observability.EngineMetrics
}

func (p brokerPublisher) Publish(ctx context.Context, topic string, key, payload []byte) error {
	if err := p.producer.Publish(ctx, topic, kafka.Message{Key: key, Value: payload}); err != nil {
		return err
	}
	p.metrics.OutboxPublished.Add(ctx, 1)
	return nil
}

// cycleOutbox lets the scheduler write fan-out entries on the shared pool.
type cycleOutbox struct {
	pool *pgxpool.Pool
	repo *payments.OutboxRepo
}

func (o cycleOutbox) InsertOutbox(ctx context.Context, entry events.OutboxEntry) error {
	return o.repo.Insert(ctx, o.pool, entry)
}

func main() {
	cfg := config.Load()
	cfg.Validate()

	logger := observability.InitLogger(observability.LogConfig{
		Service: cfg.ServiceName,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, metricsHandler, err := observability.InitMetrics(observability.MetricsConfig{
		ServiceName: cfg.ServiceName,
		Port:        cfg.MetricsPort,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer provider.Shutdown(context.Background())

	metrics, err := observability.NewEngineMetrics(provider.Meter(cfg.ServiceName))
	if err != nil {
		return err
	}

	dbCfg := pgpkg.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}
	if err := pgpkg.RunMigrations(dbCfg.DSN(), migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgpkg.NewPool(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	kafkaCfg := kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}
	producer := kafka.NewProducer(kafkaCfg)
	defer producer.Close()
	publisher := brokerPublisher{producer: producer, metrics: metrics}

	// Repositories.
	loanRepo := loan.NewRepo(pool)
	ledgerRepo := ledger.NewRepo(pool)
	paymentsRepo := payments.NewRepo(pool)
	outboxRepo := payments.NewOutboxRepo(pool)
	escrowRepo := escrow.NewRepo(pool)
	collectionsRepo := collections.NewRepo(pool)
	reconRepo := reconcile.NewRepo(pool)
	achRepo := ach.NewRepo(pool)

	// Services.
	ledgerSvc := ledger.NewService(ledgerRepo, logger)
	policies := payments.NewStoredPolicies(loanRepo)
	dues := collections.NewDues(collectionsRepo, loanRepo, escrowRepo)

	intake := payments.NewIntake(pool, paymentsRepo, outboxRepo, logger)
	validator := payments.NewValidator(pool, paymentsRepo, outboxRepo, loanRepo, loanRepo, logger)
	poster := payments.NewPoster(pool, paymentsRepo, outboxRepo, ledgerSvc, loanRepo, loanRepo, policies, dues, loanRepo, logger)
	audit := payments.NewAudit(pool, logger)
	dispatcher := payments.NewDispatcher(outboxRepo, publisher, cfg.OutboxBatch, time.Second, logger)

	escrowPolicy := escrow.DefaultPolicy()
	forecaster := escrow.NewForecaster(escrowRepo, logger)
	disburser := escrow.NewDisburser(pool, escrowRepo, ledgerSvc, outboxRepo, escrowPolicy, logger)
	analyzer := escrow.NewAnalyzer(escrowRepo, escrowPolicy, logger)

	tracker := collections.NewTracker(collectionsRepo, loanRepo, paymentsRepo, loanRepo, logger)
	assessor := collections.NewAssessor(pool, collectionsRepo, ledgerSvc, logger)
	plans := collections.NewPlanManager(collectionsRepo, logger)

	reconSvc := reconcile.NewService(reconRepo, ledgerRepo, ledgerSvc,
		cfg.Reconcile.MatchThreshold, cfg.Reconcile.DateWindowDays, logger)
	reconConsumer := reconcile.NewConsumer(reconSvc, logger)

	returns := ach.NewReturnProcessor(achRepo, logger)
	originator := ach.NewOriginator(achRepo, cfg.ACH, logger)

	worker := scheduler.NewWorker(loanRepo, collectionsRepo, loanRepo, loanRepo, ledgerSvc,
		forecaster, disburser, analyzer, tracker, assessor, plans, logger)
	cycle := scheduler.NewCycle(loanRepo, cycleOutbox{pool: pool, repo: outboxRepo}, 24*time.Hour, logger)

	// Consumers, one per topic.
	stages := []struct {
		name    string
		topic   string
		handler kafka.Handler
		opts    kafka.ConsumerOptions
	}{
		{"payment_intake", events.TopicPaymentsGateway, intake.Handler(),
			consumerOpts(cfg, cfg.Prefetch.PaymentValidation, events.TopicPaymentsGateway)},
		{"payment_validator", events.TopicPaymentsValidation, validator.Handler(),
			consumerOpts(cfg, cfg.Prefetch.PaymentValidation, events.TopicPaymentsValidation)},
		{"payment_poster", events.TopicPaymentsSaga, poster.Handler(),
			consumerOpts(cfg, cfg.Prefetch.PaymentProcessing, events.TopicPaymentsSaga)},
		{"audit_journal", events.TopicPaymentsAudit, audit.Handler(),
			consumerOpts(cfg, cfg.Prefetch.AuditLog, events.TopicPaymentsAudit)},
		{"statement_ingest", events.TopicCashStatements, reconConsumer.Handler(),
			consumerOpts(cfg, cfg.Prefetch.Reconcile, events.TopicCashStatements)},
		{"ach_returns", events.TopicACHReturns, returns.Handler(),
			consumerOpts(cfg, cfg.Prefetch.ACHReturns, events.TopicACHReturns)},
		{"servicing_worker", events.TopicServicingCycle, worker.Handler(),
			consumerOpts(cfg, cfg.Prefetch.ServicingCycle, events.TopicServicingCycle)},
	}

	var wg sync.WaitGroup
	for _, stage := range stages {
		stage := stage
		handler := countConsumed(stage.handler, metrics)
		consumer := kafka.NewConsumer(kafkaCfg, stage.topic, handler, stage.opts, logger.With(slog.String("stage", stage.name)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Start(ctx); err != nil {
				logger.Error("consumer stopped", slog.String("stage", stage.name), slog.String("error", err.Error()))
				stop()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	cycle.Start(ctx)
	defer cycle.Stop()

	if cfg.ACH.OutputDir != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runACHCutoff(ctx, originator, cfg.ACH.OutputDir, logger)
		}()
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux(metricsHandler, pool),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	logger.Info("loanserved started",
		slog.Int("consumers", len(stages)),
		slog.Int("metrics_port", cfg.MetricsPort))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
	}

	wg.Wait()
	logger.Info("loanserved stopped")
	return nil
}

const achCutoffInterval = time.Hour

// runACHCutoff periodically renders sealed batches into a NACHA file in the
// output directory. An empty queue is not an error.
func runACHCutoff(ctx context.Context, originator *ach.Originator, dir string, logger *slog.Logger) {
	ticker := time.NewTicker(achCutoffInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			file, err := originator.GenerateFile(ctx, now.UTC())
			if errors.Is(err, ach.ErrNoSealedBatches) {
				continue
			}
			if err != nil {
				logger.Error("ach cutoff failed", slog.String("error", err.Error()))
				continue
			}
			name := filepath.Join(dir, fmt.Sprintf("ach-%s.ach", now.UTC().Format("20060102-150405")))
			if err := os.WriteFile(name, []byte(file), 0o644); err != nil {
				logger.Error("write nacha file", slog.String("path", name), slog.String("error", err.Error()))
				continue
			}
			logger.Info("nacha file written", slog.String("path", name))
		}
	}
}

func countConsumed(h kafka.Handler, m *observability.EngineMetrics) kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		m.MessagesConsumed.Add(ctx, 1)
		return h(ctx, msg)
	}
}

func consumerOpts(cfg config.Config, prefetch int, topic string) kafka.ConsumerOptions {
	return kafka.ConsumerOptions{
		MaxInFlight:     prefetch,
		MessageTimeout:  30 * time.Second,
		DeliveryLimit:   cfg.DeliveryLimit,
		DeadLetterTopic: events.DeadLetterTopic(topic),
	}
}

func metricsMux(metricsHandler http.Handler, pool *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pgpkg.HealthCheck(r.Context(), pool); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
