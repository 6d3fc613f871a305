package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc/internal/agreement"
	agreementhttp "github.com/veridoc/veridoc/internal/agreement/http"
	"github.com/veridoc/veridoc/internal/app"
	"github.com/veridoc/veridoc/internal/audit"
	audithttp "github.com/veridoc/veridoc/internal/audit/http"
	"github.com/veridoc/veridoc/internal/capital"
	capitalhttp "github.com/veridoc/veridoc/internal/capital/http"
	"github.com/veridoc/veridoc/internal/ledger"
	ledgerhttp "github.com/veridoc/veridoc/internal/ledger/http"
	"github.com/veridoc/veridoc/internal/platform/cache"
	"github.com/veridoc/veridoc/internal/platform/db"
	"github.com/veridoc/veridoc/internal/shared"
	"github.com/veridoc/veridoc/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLog := audit.NewLog()
	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	broker := audit.NewBroker()

	agreementRepo := agreement.NewRepository(pool, auditLog)
	agreementService := agreement.NewService(agreementRepo, auditRepo, broker)

	locker := shared.NewLocker(redisClient)
	ledgerRepo := ledger.NewRepository(pool, auditLog)
	ledgerService := ledger.NewService(ledgerRepo, auditRepo, locker, broker)

	capitalRepo := capital.NewRepository(pool, auditLog)
	capitalService := capital.NewService(capitalRepo, broker)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuditHandler:     audithttp.NewHandler(logger, auditService),
		AgreementHandler: agreementhttp.NewHandler(logger, agreementService),
		LedgerHandler:    ledgerhttp.NewHandler(logger, ledgerService),
		CapitalHandler:   capitalhttp.NewHandler(logger, capitalService),
	})

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	events, unsubscribe := broker.Subscribe(cfg.BrokerBuffer)
	defer unsubscribe()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				_, err := jobClient.EnqueueAuditDispatch(gctx, jobs.AuditDispatchPayload{
					EventID:    ev.ID.String(),
					CompanyID:  ev.CompanyID,
					Type:       string(ev.Type),
					Entity:     string(ev.Entity),
					EntityID:   ev.EntityID,
					ActorID:    ev.ActorID,
					OccurredAt: ev.OccurredAt,
				})
				if err != nil {
					logger.Warn("enqueue audit dispatch", slog.Any("error", err))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
