package cli

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	geocatserver "github.com/geodatahub/geocat/internal/server"
	esStore "github.com/geodatahub/geocat/internal/store/elasticsearch"
	"github.com/geodatahub/geocat/internal/workermanager"
	"github.com/spf13/cobra"
)

func serverCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server <command>",
		Aliases: []string{"s"},
		Short:   "Run geocat server",
		Long:    "Server management commands.",
		Example: heredoc.Doc(`
			$ geocat server start
			$ geocat server start -c ./config.yaml
		`),
	}

	cmd.AddCommand(serverStartCommand(cfg))

	return cmd
}

func serverStartCommand(cfg *Config) *cobra.Command {
	c := &cobra.Command{
		Use:     "start",
		Short:   "Start server on default port 8080",
		Example: "geocat server start",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFlag(cmd, cfg); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	return c
}

func runServer(ctx context.Context, cfg *Config) error {
	logger := initLogger(cfg.LogLevel)
	logger.Info("geocat starting", "version", Version)

	esClient, err := initElasticsearch(logger, cfg.Elasticsearch)
	if err != nil {
		return err
	}
	discoveryRepo := esStore.NewDiscoveryRepository(esClient)

	var dispatcher jobDispatcher
	if cfg.Worker.Enabled {
		mgr, err := workermanager.New(ctx, workermanager.Deps{
			Config:        cfg.Worker,
			DiscoveryRepo: discoveryRepo,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("create worker manager: %w", err)
		}
		defer func() {
			if err := mgr.Close(); err != nil {
				logger.Error("close worker manager", "err", err)
			}
		}()
		dispatcher = mgr
	} else {
		logger.Warn("async worker is disabled, jobs run in-situ")
		dispatcher = workermanager.NewInSituWorker(workermanager.Deps{
			DiscoveryRepo: discoveryRepo,
			Logger:        logger,
		})
	}

	recordSvc, resourceSvc, err := buildServices(ctx, cfg, logger, dispatcher)
	if err != nil {
		return err
	}

	return geocatserver.Serve(ctx, geocatserver.Deps{
		Config:       cfg.Service,
		RecordSvc:    recordSvc,
		ResourceSvc:  resourceSvc,
		Discovery:    discoveryRepo,
		LinkNotifier: dispatcher,
		Logger:       logger,
	})
}
