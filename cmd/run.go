package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/api"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/clock/system"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/config"
	dockerengine "github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/engine/docker"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/id/uuid"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/logging"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress/sinks"
	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/supervisor"
)

// newRunCmd creates the 'run' subcommand, which supervises one collection to
// a terminal outcome.
func newRunCmd() *cobra.Command {
	var statusAddr string

	cmd := &cobra.Command{
		Use:   "run CONFIG COLLECTION",
		Short: "Run one collection's crawl to completion or exhaustion",
		Long: `Stages CONFIG into COLLECTION's working directory and invokes the crawl
engine until the crawl completes, the attempt ceiling is reached, or an
attempt leaves no log behind. The process exit status is zero only for a
completed crawl.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCommand(cmd, args, statusAddr)
		},
	}
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "listen address for the live-status server (overrides server.status_addr)")

	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string, statusAddr string) error {
	srcConfig, collection := args[0], args[1]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if statusAddr != "" {
		cfg.Server.StatusAddr = statusAddr
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := superviseCollection(ctx, cfg, srcConfig, collection, logger)
	if err != nil {
		logger.Error("run failed",
			zap.String("collection", collection),
			zap.String("outcome", string(report.Outcome)),
			zap.Int("attempts", report.Attempts),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// superviseCollection builds the wiring for one collection run and drives it
// to a terminal outcome, optionally alongside the live-status server.
func superviseCollection(
	ctx context.Context,
	cfg config.Config,
	srcConfig, collection string,
	logger *zap.Logger,
) (supervisor.RunReport, error) {
	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return supervisor.RunReport{}, fmt.Errorf("init metrics: %w", err)
	}
	hub := progress.NewHub(
		progress.HubConfig{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("crawl")),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	engine, err := dockerengine.New(dockerengine.Config{
		Binary:    cfg.Engine.Binary,
		Image:     cfg.Engine.Image,
		ExtraArgs: cfg.Engine.ExtraArgs,
	}, logger.Named("engine"))
	if err != nil {
		return supervisor.RunReport{}, fmt.Errorf("init engine: %w", err)
	}

	var classifier supervisor.Classifier
	switch cfg.Supervisor.Strategy {
	case config.StrategyExitCode:
		classifier = supervisor.ExitCodeClassifier{}
	default:
		classifier = supervisor.NewLogTailClassifier(cfg.Supervisor.Marker, cfg.Supervisor.TailLines)
	}

	controller, err := supervisor.NewController(supervisor.ControllerConfig{
		Layout:       supervisor.Layout{Root: cfg.Supervisor.WorkRoot, Collection: collection},
		SourceConfig: srcConfig,
		Policy: supervisor.RetryPolicy{
			MaxAttempts: cfg.Supervisor.MaxAttempts,
			Delay:       cfg.Supervisor.Delay,
		},
		Engine:     engine,
		Classifier: classifier,
		Clock:      system.New(),
		Emitter:    hub,
		IDs:        uuid.New(),
		Logger:     logger.Named("supervisor"),
	})
	if err != nil {
		return supervisor.RunReport{}, fmt.Errorf("init controller: %w", err)
	}

	var report supervisor.RunReport
	group, groupCtx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.Server.StatusAddr != "" {
		statusServer := api.NewServer(
			map[string]api.StateSource{collection: controller},
			registry,
			logger.Named("api"),
		)
		srv = &http.Server{
			Addr:              cfg.Server.StatusAddr,
			Handler:           statusServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			logger.Info("status server started", zap.String("addr", cfg.Server.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		var runErr error
		report, runErr = controller.Run(groupCtx)
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}
		return runErr
	})

	err = group.Wait()
	return report, err
}
