package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/kasflow/payment-batch/internal"
	"github.com/kasflow/payment-batch/internal/batch"
	"github.com/kasflow/payment-batch/internal/core/events"
	"github.com/kasflow/payment-batch/internal/notification"
	"github.com/kasflow/payment-batch/internal/transport/rest"
	"github.com/kasflow/payment-batch/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that serves the batch dashboard API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	Logger  *slog.Logger
	Client  *batch.Client
	Service *batch.Service
	Center  *notification.Center
	Router  *chi.Mux
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Service.Close()

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	if deps.Config.Poller.Enabled {
		poller := batch.NewPoller(deps.Service, batch.Filter{}, deps.Config.Poller.IntervalOrDefault(), deps.Logger)
		go poller.Run(pollerCtx)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		stopPoller()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	batchHandler := batch.NewHandler(deps.Service)
	notificationHandler := notification.NewHandler(deps.Center)
	rest.RegisterAllRoutes(deps.Router, deps.Client, batchHandler, notificationHandler, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.L()

	client := batch.NewClient(config.Upstream.BaseURL, config.Upstream.APIKey, config.Upstream.RequestTimeout, lg)

	bus := events.NewEventBus(lg)
	center := notification.NewCenter(bus, lg, 200)
	service := batch.NewService(client, bus, lg, config.Cache.TTLOrDefault())

	return &Dependencies{
		Config:  config,
		Logger:  lg,
		Client:  client,
		Service: service,
		Center:  center,
		Router:  chi.NewRouter(),
	}, nil
}
