package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	esStore "github.com/geodatahub/geocat/internal/store/elasticsearch"
	"github.com/geodatahub/geocat/internal/store/postgres"
	"github.com/geodatahub/geocat/internal/workermanager"
	"github.com/geodatahub/geocat/pkg/lock"
	"github.com/goto/salt/log"
)

// jobDispatcher is the surface shared by the async worker manager and the
// in-situ worker.
type jobDispatcher interface {
	record.Worker
	resource.Worker
	EnqueueLinkCheckedJob(ctx context.Context, linkID string) error
	BindServices(workermanager.RecordService, workermanager.ResourceService)
}

func initLogger(logLevel string) *log.Logrus {
	logger := log.NewLogrus(
		log.LogrusWithLevel(logLevel),
		log.LogrusWithWriter(os.Stdout),
	)
	return logger
}

func initElasticsearch(logger log.Logger, cfg esStore.Config) (*esStore.Client, error) {
	esClient, err := esStore.NewClient(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	info, err := esClient.Init()
	if err != nil {
		return nil, fmt.Errorf("initialize elasticsearch client: %w", err)
	}
	logger.Info("connected to elasticsearch cluster", "config", info)

	return esClient, nil
}

func initPostgres(logger log.Logger, cfg postgres.Config) (*postgres.Client, error) {
	pgClient, err := postgres.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres client: %w", err)
	}
	logger.Info("connected to postgres server", "host", cfg.Host, "port", cfg.Port)

	return pgClient, nil
}

// buildServices wires the repositories and domain services. The dispatcher is
// bound back into the worker handlers before returning.
func buildServices(ctx context.Context, cfg *Config, logger log.Logger, dispatcher jobDispatcher) (*record.Service, *resource.Service, error) {
	pgClient, err := initPostgres(logger, cfg.DB)
	if err != nil {
		return nil, nil, err
	}

	recordRepo, err := postgres.NewRecordRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create record repository: %w", err)
	}
	catalogRepo, err := postgres.NewCatalogRecordRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create catalog record repository: %w", err)
	}
	revisionRepo, err := postgres.NewRevisionRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create revision repository: %w", err)
	}
	publicationRepo, err := postgres.NewPublicationRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create publication repository: %w", err)
	}
	resourceRepo, err := postgres.NewResourceRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource repository: %w", err)
	}
	remoteRepo, err := postgres.NewRemoteResourceRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create remote resource repository: %w", err)
	}
	serviceRepo, err := postgres.NewServiceRepository(pgClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create service repository: %w", err)
	}

	lockManager, err := lock.NewManager(ctx, cfg.Lock)
	if err != nil {
		return nil, nil, fmt.Errorf("create lock manager: %w", err)
	}

	recordSvc := record.NewService(record.ServiceDeps{
		Repo:            recordRepo,
		CatalogRepo:     catalogRepo,
		RevisionRepo:    revisionRepo,
		PublicationRepo: publicationRepo,
		Resources:       resourceRepo,
		Locks:           workermanager.NewLocker(lockManager),
		Worker:          dispatcher,
		Logger:          logger,
	})

	resourceSvc := resource.NewService(resource.ServiceDeps{
		Repo:        resourceRepo,
		RemoteRepo:  remoteRepo,
		ServiceRepo: serviceRepo,
		Worker:      dispatcher,
		Trigger:     recordSvc,
		Logger:      logger,
	})

	dispatcher.BindServices(recordSvc, resourceSvc)
	return recordSvc, resourceSvc, nil
}
