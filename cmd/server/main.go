package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"govern/internal/audit"
	"govern/internal/auth"
	"govern/internal/coverage"
	"govern/internal/decision"
	decisionmetrics "govern/internal/decision/metrics"
	"govern/internal/guard/approval"
	"govern/internal/guard/idempotency"
	"govern/internal/guard/spending"
	"govern/internal/ledger"
	"govern/internal/ledger/hashchain"
	ledgermetrics "govern/internal/ledger/metrics"
	"govern/internal/platform/config"
	"govern/internal/platform/httpserver"
	"govern/internal/platform/logger"
	platformredis "govern/internal/platform/redis"
	"govern/internal/policy"
	"govern/internal/signature"
	httptransport "govern/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry, err := policy.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}

	store, err := buildReceiptStore(ctx, cfg)
	if err != nil {
		return err
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()),
	}
	if cfg.SigningKeyPath != "" {
		key, err := signature.LoadPrivateKey(cfg.SigningKeyPath)
		if err != nil {
			return err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithSigner(signature.NewSigner(key)))
	}
	receipts, err := ledger.New(store, ledgerOpts...)
	if err != nil {
		return err
	}

	var caps spending.Caps
	if cfg.SpendingCapsPath != "" {
		caps, err = spending.LoadCaps(cfg.SpendingCapsPath)
		if err != nil {
			return err
		}
	}
	spendSvc, err := spending.New(caps, spending.NewInMemoryStore(), spending.WithLogger(log))
	if err != nil {
		return err
	}

	approvalSvc, err := buildApprovals(cfg, log)
	if err != nil {
		return err
	}

	idemGuard, err := buildIdempotency(cfg)
	if err != nil {
		return err
	}

	publisher := audit.NewPublisher(cfg.AuditBuffer, log)
	var sinks []audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}
	worker := audit.NewWorker(audit.NewInMemoryStore(), publisher.Inbox(), sinks...)
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	decisionOpts := []decision.Option{
		decision.WithLogger(log),
		decision.WithMetrics(decisionmetrics.New()),
		decision.WithApprovals(approvalSvc),
		decision.WithAuditPublisher(publisher),
	}
	if cfg.CoverageLogPath != "" {
		coverageLog, closer, err := coverage.OpenLogFile(cfg.CoverageLogPath)
		if err != nil {
			return err
		}
		defer closer.Close()
		decisionOpts = append(decisionOpts, decision.WithCoverageWriter(coverageLog))
	}
	engine := decision.NewEngine(registry)
	if caps.ApprovalThresholdCents > 0 {
		engine = engine.WithApprovalPolicy(decision.AmountThresholdPolicy{
			Attribute:      "amountCents",
			ThresholdCents: caps.ApprovalThresholdCents,
		})
	}
	decisionSvc, err := decision.NewService(engine, receipts, decisionOpts...)
	if err != nil {
		return err
	}

	var authMiddleware func(http.Handler) http.Handler
	if cfg.JWTSigningKey != "" {
		tokens := auth.NewTokenService(cfg.JWTSigningKey, "govern")
		authMiddleware = httptransport.RequireAuth(tokens, log)
	}

	handler := httptransport.NewHandler(decisionSvc, spendSvc, approvalSvc, receipts, idemGuard)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, authMiddleware))

	log.Info("starting govern server", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildReceiptStore selects the backing store: postgres when configured,
// otherwise the date-partitioned file tree, otherwise process memory.
func buildReceiptStore(ctx context.Context, cfg config.Server) (ledger.Store, error) {
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return ledger.NewPostgresStore(ctx, pool)
	}
	if cfg.ReceiptRoot != "" {
		store, err := ledger.NewFileStore(cfg.ReceiptRoot)
		if err != nil {
			return nil, err
		}
		if cfg.RunLedgerDir != "" {
			recorder := hashchain.New(cfg.RunLedgerDir, cfg.ReceiptRoot, true)
			store = store.WithRunLedger(recorder, uuid.NewString())
		}
		return store, nil
	}
	return ledger.NewInMemoryStore(), nil
}

func buildApprovals(cfg config.Server, log *slog.Logger) (*approval.Service, error) {
	opts := []approval.Option{approval.WithLogger(log)}
	if cfg.ApproverSecretHash != "" {
		opts = append(opts, approval.WithApproverSecret(cfg.ApproverSecretHash))
	}
	return approval.New(approval.NewInMemoryStore(), opts...)
}

func buildIdempotency(cfg config.Server) (*idempotency.Guard, error) {
	if cfg.RedisURL != "" {
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return idempotency.NewGuard(idempotency.NewRedisStore(client.Client, "govern:idem:"))
	}
	return idempotency.NewGuard(idempotency.NewInMemoryStore())
}
