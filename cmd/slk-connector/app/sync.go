package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/mooring-labs/searchlink/internal/config"
	"github.com/mooring-labs/searchlink/internal/github"
	"github.com/mooring-labs/searchlink/internal/index"
	"github.com/mooring-labs/searchlink/internal/logger"
	slksync "github.com/mooring-labs/searchlink/internal/sync"
	"github.com/mooring-labs/searchlink/internal/telemetry"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot synchronization into an index connection",
	Long: `Synchronize the configured GitHub owner's records into an existing index
connection and exit.

The connection must already exist; connections are provisioned through
lifecycle notifications handled by the serve command. Record kinds, the
retry budget and content fetching come from the configuration file
(--config).`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	syncCmd.Flags().String("connection", "", "ID of the index connection to sync into (required)")

	if err := syncCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
	if err := syncCmd.MarkFlagRequired("connection"); err != nil {
		logger.Fatalf("Failed to mark connection flag as required: %v", err)
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	// Interrupts cancel the context; in-flight fetches and polls abort on it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	connectionID, err := cmd.Flags().GetString("connection")
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Infof("Loaded configuration from %s (owner: %s, connection: %s)",
		configPath, cfg.Source.GitHub.Owner, connectionID)

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Errorf("Telemetry shutdown failed: %v", err)
		}
	}()

	githubToken, err := cfg.Source.GitHub.GetToken()
	if err != nil {
		return err
	}
	var sourceOpts []github.Option
	if cfg.Source.GitHub.APIBaseURL != "" {
		sourceOpts = append(sourceOpts, github.WithBaseURL(cfg.Source.GitHub.APIBaseURL))
	}
	source, err := github.NewClient(ctx, githubToken, sourceOpts...)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	indexToken, err := cfg.IndexService.GetToken()
	if err != nil {
		return err
	}
	operationMetrics, err := telemetry.NewOperationMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create operation metrics: %w", err)
	}
	writer, err := index.NewClient(cfg.IndexService.Endpoint,
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: indexToken}),
		index.WithPollInterval(cfg.IndexService.GetPollInterval()),
		index.WithPollDeadline(cfg.IndexService.GetPollDeadline()),
		index.WithOperationMetrics(operationMetrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create index client: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	pipeline := slksync.NewPipeline(source, writer, connectionID, cfg.Source.GitHub.Owner,
		slksync.WithRetryBudget(cfg.Sync.GetRetryBudget()),
		slksync.WithContentFetching(cfg.Sync.FetchContent()),
		slksync.WithMetrics(syncMetrics),
	)

	failed := 0
	for _, kind := range cfg.Sync.GetKinds() {
		report, err := pipeline.SyncAll(ctx, kind)
		if err != nil {
			return fmt.Errorf("sync %s: %w", kind, err)
		}
		fmt.Println(report.Summary())
		for _, outcome := range report.Failures() {
			fmt.Printf("  failed %s (%s): %v\n", outcome.ItemID, outcome.Title, outcome.Err)
		}
		failed += report.Failed()
	}

	if failed > 0 {
		return fmt.Errorf("%d records failed to sync", failed)
	}
	return nil
}
