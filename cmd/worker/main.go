// The worker binary: consumes jobs from the broker, executes registered
// task handlers, writes status back to Postgres, and serves health and
// metrics probes for the orchestrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskforge/internal/broker"
	"taskforge/internal/config"
	"taskforge/internal/health"
	"taskforge/internal/logging"
	"taskforge/internal/registry"
	"taskforge/internal/store/postgres"
	"taskforge/internal/sweeper"
	"taskforge/internal/tasks"
	"taskforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel).With("instance", cfg.Instance)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statuses, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("status store unavailable", "error", err)
		os.Exit(1)
	}
	defer statuses.Close()

	rb, err := broker.NewRabbitMQ(broker.Config{
		URL:                cfg.Broker.URL,
		Exchange:           cfg.Broker.Exchange,
		Queue:              cfg.Broker.Queue,
		RoutingKey:         cfg.Broker.RoutingKey,
		DeadLetterExchange: cfg.Broker.DeadLetterExchange,
		DeadLetterQueue:    cfg.Broker.DeadLetterQueue,
		Prefetch:           cfg.Broker.Prefetch,
		PublishAttempts:    cfg.Broker.PublishAttempts,
		ReconnectBase:      cfg.Broker.ReconnectBase,
		ReconnectCeiling:   cfg.Broker.ReconnectCeiling,
	}, logger)
	if err != nil {
		logger.Error("broker unavailable", "error", err)
		os.Exit(1)
	}
	defer rb.Close()

	reg := registry.New()
	mailer := tasks.NewMailer(cfg.Mail.Server, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	if err := reg.Register(tasks.TaskSendEmail, mailer.SendEmail, cfg.Worker.Concurrency(tasks.TaskSendEmail)); err != nil {
		logger.Error("task registration failed", "error", err)
		os.Exit(1)
	}

	pool := worker.New(worker.Config{
		Queue:         cfg.Broker.Queue,
		RoutingKey:    cfg.Broker.RoutingKey,
		ShutdownGrace: cfg.Worker.ShutdownGrace,
	}, rb, reg, statuses, logger)

	supervisor := health.NewSupervisor()
	supervisor.Register("worker",
		func(ctx context.Context) error {
			if !pool.Running() {
				return errors.New("consume loop not running")
			}
			return nil
		}, nil)
	supervisor.Register("broker",
		// The reconnect loop counts as progress; only readiness gates on
		// an open connection.
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			if !rb.Connected() {
				return fmt.Errorf("broker disconnected: %v", rb.LastError())
			}
			return nil
		})
	supervisor.Register("store", nil, statuses.Ping)

	opsRouter := chi.NewRouter()
	opsRouter.Mount("/", health.Routes(supervisor))
	opsRouter.Handle("/metrics", promhttp.Handler())
	opsServer := &http.Server{Addr: cfg.HTTP.OpsAddr, Handler: opsRouter}
	go func() {
		logger.Info("ops server listening", "addr", cfg.HTTP.OpsAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "error", err)
		}
	}()

	sw := sweeper.New(statuses, cfg.Sweep.StaleAge, logger)
	if err := sw.Start(cfg.Sweep.Schedule); err != nil {
		logger.Error("sweeper start failed", "error", err)
		os.Exit(1)
	}
	defer sw.Stop()

	logger.Info("worker starting", "queue", cfg.Broker.Queue, "tasks", reg.Names())
	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker pool stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", "error", err)
	}
	logger.Info("worker shut down")
}
