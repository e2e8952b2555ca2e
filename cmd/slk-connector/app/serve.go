package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/mooring-labs/searchlink/internal/auth"
	"github.com/mooring-labs/searchlink/internal/config"
	"github.com/mooring-labs/searchlink/internal/index"
	"github.com/mooring-labs/searchlink/internal/logger"
	"github.com/mooring-labs/searchlink/internal/reconcile"
	"github.com/mooring-labs/searchlink/internal/telemetry"
	"github.com/mooring-labs/searchlink/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lifecycle webhook server",
	Long: `Start the webhook server that receives connection lifecycle notifications
from the index service admin surface and reconciles index connections to
their desired state.

The server requires a configuration file (--config) that specifies:
- Index service endpoint and credentials
- Webhook path and proof-token validation settings
- Telemetry settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // enough to drain in-flight reconciliations
	serverRequestTimeout   = 10 * time.Second // deliveries are acknowledged immediately
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}

	// Mark config as required
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	// The validator's key cache refreshes in the background for as long as
	// this context lives.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	address := viper.GetString("address")
	logger.Infof("Starting connector webhook server on %s", address)

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Webhook == nil {
		return fmt.Errorf("webhook configuration is required to serve")
	}
	logger.Infof("Loaded configuration from %s (connector: %s, index: %s)",
		configPath, cfg.GetConnectorName(), cfg.IndexService.Endpoint)

	// No-op providers when telemetry is not configured
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	validator, err := auth.NewValidator(ctx, cfg.Webhook.Auth.Issuer, cfg.Webhook.Auth.Audience,
		auth.WithRefreshPolicy(cfg.Webhook.Auth.KeyRefresh.GetPolicy()),
		auth.WithMinRefreshInterval(cfg.Webhook.Auth.KeyRefresh.GetMinInterval()),
	)
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}

	indexToken, err := cfg.IndexService.GetToken()
	if err != nil {
		return err
	}
	operationMetrics, err := telemetry.NewOperationMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create operation metrics: %w", err)
	}
	indexClient, err := index.NewClient(cfg.IndexService.Endpoint,
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: indexToken}),
		index.WithPollInterval(cfg.IndexService.GetPollInterval()),
		index.WithPollDeadline(cfg.IndexService.GetPollDeadline()),
		index.WithOperationMetrics(operationMetrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create index client: %w", err)
	}

	reconcileMetrics, err := telemetry.NewReconcileMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create reconcile metrics: %w", err)
	}
	reconciler := reconcile.NewReconciler(indexClient, validator,
		reconcile.WithConnectionName(cfg.GetConnectorName()),
		reconcile.WithMetrics(reconcileMetrics),
	)

	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	// Create the webhook server with middleware
	server := webhook.NewServer(address, reconciler,
		webhook.WithLifecyclePath(cfg.Webhook.GetPath()),
		webhook.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.TracingMiddleware(tel.TracerProvider()),
			metricsMiddleware,
			webhook.LoggingMiddleware,
		),
	)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Telemetry shutdown failed: %v", err)
	}

	logger.Info("Server shutdown complete")
	return nil
}
