package cli

import (
	"context"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/goto/salt/log"
	"github.com/spf13/cobra"
)

const esMigrationTimeout = 5 * time.Second

func migrateCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run storage migration",
		Example: heredoc.Doc(`
			$ geocat migrate
		`),
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			"group:core": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFlag(cmd, cfg); err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg)
		},
	}
}

func runMigrations(ctx context.Context, cfg *Config) error {
	logger := initLogger(cfg.LogLevel)
	logger.Info("geocat is migrating", "version", Version)

	logger.Info("migrating postgres...")
	if err := migratePostgres(logger, cfg); err != nil {
		return err
	}
	logger.Info("migrating postgres done")

	logger.Info("migrating elasticsearch...")
	if err := migrateElasticsearch(ctx, logger, cfg); err != nil {
		return err
	}
	logger.Info("migrating elasticsearch done")
	return nil
}

func migratePostgres(logger log.Logger, cfg *Config) error {
	pgClient, err := initPostgres(logger, cfg.DB)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	ver, err := pgClient.Migrate(cfg.DB)
	if err != nil {
		return err
	}
	logger.Info("postgres migrated", "version", ver)
	return nil
}

func migrateElasticsearch(ctx context.Context, logger log.Logger, cfg *Config) error {
	esClient, err := initElasticsearch(logger, cfg.Elasticsearch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, esMigrationTimeout)
	defer cancel()
	return esClient.Migrate(ctx)
}
