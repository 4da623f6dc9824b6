// The api binary: the submit/status HTTP surface in front of the task
// subsystem. It publishes envelopes and reads status rows; it never
// executes handlers itself.
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

	"taskforge/internal/api"
	"taskforge/internal/broker"
	"taskforge/internal/config"
	"taskforge/internal/dispatch"
	"taskforge/internal/health"
	"taskforge/internal/logging"
	"taskforge/internal/store/postgres"
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

	dispatcher := dispatch.New(rb, statuses, cfg.Broker.RoutingKey, logger)

	supervisor := health.NewSupervisor()
	supervisor.Register("broker",
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			if !rb.Connected() {
				return fmt.Errorf("broker disconnected: %v", rb.LastError())
			}
			return nil
		})
	supervisor.Register("store", nil, statuses.Ping)

	router := chi.NewRouter()
	router.Mount("/", health.Routes(supervisor))
	router.Mount("/api", api.NewServer(dispatcher, statuses, logger).Router())

	server := &http.Server{Addr: cfg.HTTP.APIAddr, Handler: router}
	go func() {
		logger.Info("api listening", "addr", cfg.HTTP.APIAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	logger.Info("api shut down")
}
