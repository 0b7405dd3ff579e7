package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/gridpoll2mqtt/internal/adapter/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/adapter/vendor"
	"github.com/berfenger/gridpoll2mqtt/internal/config"
	"github.com/berfenger/gridpoll2mqtt/internal/core/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/berfenger/gridpoll2mqtt/internal/server"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	"github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// metrics
	provider, err := telemetry.NewProvider(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.Error("telemetry disabled", zap.Error(err))
		provider = nil
	}
	var metrics *telemetry.Metrics
	if provider != nil && cfg.Telemetry.Enabled {
		metrics = provider.Metrics()
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	deps := vendor.Deps{Logger: logger, Metrics: metrics}
	lookup := func(name string) (port.Vendor, error) {
		return vendor.Lookup(name, deps)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, lookup, mqttActorProvider(cfg, logger), metrics, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not start master", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done

	// tears down every integration
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	log.Println("Graceful shutdown complete.")
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg.MQTT, logger)
	}
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", cfg.Redacted())
}
