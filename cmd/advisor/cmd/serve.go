package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/softcane/cloud-cost-advisor/internal/api"
	"github.com/softcane/cloud-cost-advisor/internal/cloudapi"
	"github.com/softcane/cloud-cost-advisor/internal/config"
	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/ingest"
	"github.com/softcane/cloud-cost-advisor/internal/llm"
	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/model"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the advisor HTTP API server",
	Long: `Serve starts the advisor API.

The server exposes the instance registry, recommendations, cost trends,
analytics, right-sizing actions and model metadata. A missing trained
model is not fatal: the affected endpoints report the model as
untrained until an artifact appears.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// unavailableScorer stands in when no trained artifact is loaded. Every
// scoring request reports the model as unavailable.
type unavailableScorer struct{}

func (unavailableScorer) ModelVersion() string { return "unknown" }

func (unavailableScorer) Score(ctx context.Context, m engine.FeatureMatrix) ([]float64, error) {
	return nil, engine.ErrModelUnavailable
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}

	st, err := store.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	counters := engine.NewCounters()
	aggregator := engine.NewAggregator(st.Metrics, logger)
	trends := engine.NewTrendSimulator(st.Instances, aggregator, logger)

	var (
		scorer     engine.Scorer = unavailableScorer{}
		attributor engine.Attributor
		modelSrc   api.ModelSource
	)
	classifier, err := model.Load(model.Config{Dir: cfg.Model.Dir, Logger: logger})
	switch {
	case err == nil:
		defer classifier.Close()
		scorer = classifier
		attributor = model.NewExplainer(classifier)
		modelSrc = classifier
		metrics.SetModelInfo(classifier.ModelVersion())
	case errors.Is(err, engine.ErrModelUnavailable):
		logger.Warn("no trained model artifact; recommendations disabled until one is trained",
			"dir", cfg.Model.Dir,
			"error", err,
		)
	default:
		return fmt.Errorf("failed to load model: %w", err)
	}

	recommender := engine.NewRecommender(aggregator, scorer, attributor, counters, logger)

	deps := api.Dependencies{
		Registry:    st.Instances,
		Metrics:     st.Metrics,
		Actions:     st.Actions,
		Recommender: recommender,
		Trends:      trends,
		Aggregator:  aggregator,
		Model:       modelSrc,
		Counters:    counters,
		DB:          st,
		Logger:      logger,
	}

	if client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
		Logger:  logger,
	}); client != nil {
		deps.LLM = client
		logger.Info("LLM explanations enabled")
	} else {
		logger.Info("LLM explanations disabled; no API key configured")
	}

	provider := newInventoryProvider(ctx, cfg, logger)
	if provider != nil {
		deps.Verifier = cloudapi.NewVerifierWrapper(cloudapi.VerifierWrapperConfig{
			Provider: provider,
			Logger:   logger,
		})
	}

	poller, err := startIngestJobs(cfg, st, provider, logger)
	if err != nil {
		return err
	}
	if poller != nil {
		defer poller.Stop()
	}

	server := api.NewServer(&api.ServerConfig{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
		EnableCORS:      true,
		AllowedOrigins:  cfg.Server.CORSOrigins,
		MaxBodySize:     cfg.Server.MaxBodySize,
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("advisor API listening", "port", cfg.Server.Port)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// newInventoryProvider builds the cloud provider used for inventory
// sync and type verification. Missing credentials are not fatal; the
// affected features degrade gracefully.
func newInventoryProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) cloudapi.InventoryProvider {
	provider, cloud, err := cloudapi.NewAutoDetectedInventoryProvider(ctx, logger)
	if err == nil {
		logger.Info("cloud provider detected", "cloud", cloud)
		return provider
	}
	logger.Debug("cloud auto-detection failed", "error", err)

	if cfg.AWS.Region != "" {
		provider, err := cloudapi.NewAWSInventoryProvider(ctx, cfg.AWS.Region, logger)
		if err == nil {
			return provider
		}
		logger.Warn("failed to initialize AWS provider", "error", err)
	}
	if cfg.GCP.ProjectID != "" {
		provider, err := cloudapi.NewGCPInventoryProvider(ctx, cfg.GCP.ProjectID, logger)
		if err == nil {
			return provider
		}
		logger.Warn("failed to initialize GCP provider", "error", err)
	}

	logger.Info("no cloud provider configured; inventory sync and verification disabled")
	return nil
}

// startIngestJobs schedules the configured background ingestion jobs.
// Returns nil when nothing is enabled.
func startIngestJobs(cfg *config.Config, st *store.Store, provider cloudapi.InventoryProvider, logger *slog.Logger) (*ingest.Poller, error) {
	var jobs []ingest.Job

	if cfg.Ingest.Sync.Enabled && provider != nil {
		syncer := ingest.NewInventorySyncer(provider, st.Instances, logger)
		jobs = append(jobs, ingest.Job{
			Name: "inventory-sync",
			Spec: cfg.Ingest.Sync.Schedule,
			Run: func(ctx context.Context) error {
				_, err := syncer.Sync(ctx)
				return err
			},
		})
	}

	if cfg.Ingest.CloudWatch.Enabled {
		ingestor, err := ingest.NewCloudWatchIngestor(context.Background(), ingest.CloudWatchConfig{
			Region:    cfg.AWS.Region,
			Instances: st.Instances,
			Samples:   st.Metrics,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch ingestor: %w", err)
		}
		lookback := cfg.Ingest.CloudWatch.LookbackHours
		jobs = append(jobs, ingest.Job{
			Name: "cloudwatch-ingest",
			Spec: cfg.Ingest.CloudWatch.Schedule,
			Run: func(ctx context.Context) error {
				ids, err := cloudInstanceIDs(ctx, st, "aws")
				if err != nil {
					return err
				}
				_, err = ingestor.Ingest(ctx, ids, lookback)
				return err
			},
		})
	}

	if cfg.Ingest.Prometheus.Enabled() {
		ingestor, err := ingest.NewPromIngestor(ingest.PromConfig{
			PrometheusURL: cfg.Ingest.Prometheus.URL,
			Instances:     st.Instances,
			Samples:       st.Metrics,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Prometheus ingestor: %w", err)
		}
		jobs = append(jobs, ingest.Job{
			Name: "prometheus-ingest",
			Spec: cfg.Ingest.Prometheus.Schedule,
			Run: func(ctx context.Context) error {
				_, err := ingestor.Ingest(ctx)
				return err
			},
		})
	}

	if len(jobs) == 0 {
		return nil, nil
	}

	poller := ingest.NewPoller(cron.New(), logger)
	for _, job := range jobs {
		if err := poller.Register(job); err != nil {
			return nil, err
		}
		logger.Info("ingest job scheduled", "job", job.Name, "schedule", job.Spec)
	}
	poller.Start()
	return poller, nil
}

// cloudInstanceIDs lists the registered cloud instance IDs for one
// provider, for metric ingestion.
func cloudInstanceIDs(ctx context.Context, st *store.Store, cloudProvider string) ([]string, error) {
	instances, err := st.Instances.List(ctx, engine.Filters{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		if inst.CloudProvider == cloudProvider {
			ids = append(ids, inst.CloudInstanceID)
		}
	}
	return ids, nil
}
