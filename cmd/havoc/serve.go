package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/steadystate/havoc/pkg/actions"
	"github.com/steadystate/havoc/pkg/api"
	"github.com/steadystate/havoc/pkg/catalog"
	"github.com/steadystate/havoc/pkg/config"
	"github.com/steadystate/havoc/pkg/coordinator"
	"github.com/steadystate/havoc/pkg/events"
	"github.com/steadystate/havoc/pkg/history"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/safety"
	"github.com/steadystate/havoc/pkg/scheduler"
	"github.com/steadystate/havoc/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: scheduler, coordinator, and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the engine config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	configureLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.OTelExporterEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, cfg.Telemetry.OTelExporterEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Errorf("unable to shutdown telemetry, err: %v", err)
			}
		}()
	}

	// external collaborators, swapped for real integrations by
	// configuration as they land
	inventory := providers.NewStaticInventory()
	metricsSource := providers.NewStaticMetrics()
	incidents := providers.NewStaticIncidents()
	disruptor := providers.NewLocalProvider()

	reg := registry.New(inventory)
	actions.RegisterAll(reg, disruptor, actions.NewNoopLatencyApplier())

	runs := runregistry.New()
	evaluator := safety.NewEvaluator(metricsSource, incidents, runs, safety.NewHTTPProber(), cfg.Safety)
	store := history.New(cfg.Engine.HistorySize)
	recorder := events.NewRecorder(providers.NewRecordingNotifier())

	coord := coordinator.New(reg, evaluator, runs, store, recorder,
		coordinator.WithPollInterval(cfg.Engine.PollInterval),
		coordinator.WithCleanupTimeout(cfg.Engine.CleanupTimeout),
	)
	sched := scheduler.New(coord, runs,
		scheduler.WithTickInterval(cfg.Engine.TickInterval),
		scheduler.WithWorkers(cfg.Engine.Workers),
	)

	cat := catalog.New()
	cat.Subscribe(func(changes catalog.ChangeSet) {
		for _, definition := range changes.Added {
			if err := sched.Schedule(definition); err != nil {
				log.Errorf("unable to schedule '%v', err: %v", definition.ID, err)
			}
		}
		for _, definition := range changes.Updated {
			if err := sched.Schedule(definition); err != nil {
				log.Errorf("unable to reschedule '%v', err: %v", definition.ID, err)
			}
		}
		for _, removed := range changes.Removed {
			sched.Cancel(removed)
		}
	})
	if err := cat.LoadFile(cfg.Catalog.Path); err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		go func() {
			if err := cat.Watch(ctx, cfg.Catalog.Path); err != nil {
				log.Errorf("catalog watcher stopped, err: %v", err)
			}
		}()
	}

	server, err := api.NewServer(cfg.Server.Address, cat, coord, sched, store)
	if err != nil {
		return err
	}
	go func() {
		if err := server.Serve(); err != nil {
			log.Errorf("admin server stopped, err: %v", err)
			stop()
		}
	}()

	log.Infof("[Engine]: %v experiment(s) loaded, scheduler running", len(cat.All()))
	sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func configureLogging(cfg config.LoggingConfig) {
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
}
