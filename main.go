package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/di"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	appLog := container.Logger
	appLog.Info("Starting seatwise...")

	if err := container.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start background workers: %v", err))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           container.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info(fmt.Sprintf("seatwise listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down seatwise...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shut down: %v", err))
	}
	container.Shutdown(shutdownCtx)
	appLog.Info("seatwise stopped")
}
