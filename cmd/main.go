package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/db"
	"github.com/senyabanana/rfq-service/internal/directory"
	"github.com/senyabanana/rfq-service/internal/handlers"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/notify"
	"github.com/senyabanana/rfq-service/internal/repository"
	"github.com/senyabanana/rfq-service/internal/router"
	"github.com/senyabanana/rfq-service/internal/router/config"
	"github.com/senyabanana/rfq-service/internal/services"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := db.RunMigrations(cfg.MigrationURL, cfg.PostgresConn); err != nil {
		return err
	}
	logging.Info(ctx, "db migrated successfully")

	dbPool, err := db.InitDb(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	clk := clock.NewSystem()

	var dir services.Directory = directory.NewPostgres(dbPool)
	if cfg.DirectoryFile != "" {
		static, err := directory.LoadStatic(cfg.DirectoryFile)
		if err != nil {
			return err
		}
		dir = static
		logging.Info(ctx, "using static provider directory", slog.String("file", cfg.DirectoryFile))
	}

	txManager := repository.NewTxManager(dbPool)
	rfqRepo := repository.NewPostgresRfqRepository(dbPool)
	quoteRepo := repository.NewPostgresQuoteRepository(dbPool)
	outboxRepo := repository.NewPostgresOutboxRepository(dbPool)
	notificationRepo := repository.NewPostgresNotificationRepository(dbPool)
	matchRepo := repository.NewPostgresMatchRepository(dbPool)
	ratingRepo := repository.NewPostgresRatingRepository(dbPool)

	hub := notify.NewHub()
	defer hub.Close()
	sinks := []services.Sink{hub}
	if cfg.NatsURL != "" {
		natsSink, err := notify.ConnectNats(cfg.NatsURL, cfg.NatsSubjectPrefix)
		if err != nil {
			return err
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
		logging.Info(ctx, "publishing notifications to nats", slog.String("subject_prefix", cfg.NatsSubjectPrefix))
	}

	engine := services.NewMatchingEngine(txManager, dir, matchRepo, outboxRepo, clk,
		services.WithFanout(cfg.MatchFanout),
		services.WithRadiusKm(cfg.MatchRadiusKm))
	rfqService := services.NewRfqService(rfqRepo, quoteRepo, matchRepo, engine, clk, services.WithRfqTTL(cfg.RfqDefaultTTL))
	quoteService := services.NewQuoteService(txManager, rfqRepo, quoteRepo, outboxRepo, clk)
	coordinator := services.NewAcceptanceCoordinator(txManager, rfqRepo, quoteRepo, outboxRepo, clk)
	notificationService := services.NewNotificationService(notificationRepo)
	ratingGate := services.NewRatingGate(txManager, ratingRepo, rfqRepo, quoteRepo, clk)

	reaper := services.NewExpiryReaper(txManager, rfqRepo, quoteRepo, outboxRepo, clk,
		services.WithReaperInterval(cfg.ReaperInterval),
		services.WithReaperBatch(cfg.ReaperBatch))
	dispatcher := services.NewDispatcher(outboxRepo, notificationRepo, clk,
		services.WithDispatchInterval(cfg.DispatchInterval),
		services.WithDispatchBatch(cfg.DispatchBatch),
		services.WithDispatchLease(cfg.DispatchLease),
		services.WithDispatchMaxTries(cfg.DispatchMaxTries),
		services.WithSinks(sinks...))

	routes := router.InitRoutes(router.Handlers{
		Rfq:          handlers.NewRfqHandler(rfqService, coordinator, logger, cfg.RequestTimeout),
		Quote:        handlers.NewQuoteHandler(quoteService, coordinator, logger, cfg.RequestTimeout),
		Notification: handlers.NewNotificationHandler(notificationService, hub, logger, cfg.RequestTimeout),
		Rating:       handlers.NewRatingHandler(ratingGate, logger, cfg.RequestTimeout),
	}, logger)

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info(gctx, "server is listening", slog.String("address", cfg.ServerAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })

	return g.Wait()
}
