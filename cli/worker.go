package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	esStore "github.com/geodatahub/geocat/internal/store/elasticsearch"
	"github.com/geodatahub/geocat/internal/workermanager"
	"github.com/spf13/cobra"
)

func workerCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker <command>",
		Short: "Run geocat worker",
		Long:  "Worker management commands.",
		Example: heredoc.Doc(`
			$ geocat worker start
			$ geocat worker start -c ./config.yaml
		`),
	}

	cmd.AddCommand(workerStartCommand(cfg))

	return cmd
}

func workerStartCommand(cfg *Config) *cobra.Command {
	c := &cobra.Command{
		Use:     "start",
		Short:   "Start processing jobs and a web server for dead job management",
		Example: "geocat worker start",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFlag(cmd, cfg); err != nil {
				return err
			}
			if err := runWorker(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("run worker: %w", err)
			}
			return nil
		},
	}

	return c
}

func runWorker(ctx context.Context, cfg *Config) error {
	if !cfg.Worker.Enabled {
		return errors.New("worker is disabled")
	}

	logger := initLogger(cfg.LogLevel)
	logger.Info("geocat worker starting", "version", Version)

	esClient, err := initElasticsearch(logger, cfg.Elasticsearch)
	if err != nil {
		return err
	}

	mgr, err := workermanager.New(ctx, workermanager.Deps{
		Config:        cfg.Worker,
		DiscoveryRepo: esStore.NewDiscoveryRepository(esClient),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("close worker manager", "err", err)
		}
	}()

	if _, _, err := buildServices(ctx, cfg, logger, mgr); err != nil {
		return err
	}

	return mgr.Run(ctx)
}
