package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/api/handlers"
	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/telemetry"
)

const serviceName = "benefits-access-api"

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	shutdownTracing := telemetry.Setup(serviceName, a.Config.OTLPEndpoint)

	if err := a.Initialize(); err != nil { //initialize database and router
		zap.S().Fatalw("failed to initialize", "error", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		zap.S().Fatalw("failed to start scheduler", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           otelhttp.NewHandler(a.Router, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infow("benefits-access-api is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	zap.S().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("failed to drain connections", "error", err)
	}
	a.Scheduler.Stop()
	if err := a.Close(ctx); err != nil {
		zap.S().Errorw("failed to close the database", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		zap.S().Errorw("failed to flush traces", "error", err)
	}
	zap.L().Sync()
}
