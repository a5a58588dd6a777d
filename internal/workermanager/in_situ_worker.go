package workermanager

import (
	"context"
	"fmt"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/goto/salt/log"
)

// InSituWorker runs every job synchronously in the caller, for deployments
// without the async worker process.
type InSituWorker struct {
	recordSvc     RecordService
	resourceSvc   ResourceService
	discoveryRepo record.DiscoveryRepository
	logger        log.Logger
}

func NewInSituWorker(deps Deps) *InSituWorker {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	return &InSituWorker{
		discoveryRepo: deps.DiscoveryRepo,
		logger:        logger,
	}
}

func (w *InSituWorker) BindServices(recordSvc RecordService, resourceSvc ResourceService) {
	w.recordSvc = recordSvc
	w.resourceSvc = resourceSvc
}

func (w *InSituWorker) EnqueueConsolidateJob(ctx context.Context, recordID, reason string, freshness record.Freshness) error {
	result, err := w.recordSvc.Consolidate(ctx, recordID, freshness)
	if err != nil {
		return fmt.Errorf("consolidate record '%s': %w", recordID, err)
	}

	if result == record.ResultConsolidated {
		rec, err := w.recordSvc.GetByID(ctx, recordID)
		if err != nil {
			return fmt.Errorf("load record '%s' for indexing: %w", recordID, err)
		}
		if err := w.discoveryRepo.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("index record '%s': %w", recordID, err)
		}
	}
	return nil
}

func (w *InSituWorker) EnqueueLinkCheckedJob(ctx context.Context, linkID string) error {
	failed, err := w.recordSvc.OnLinkChecked(ctx, linkID)
	if err != nil {
		return fmt.Errorf("react to checked link '%s': %w", linkID, err)
	}
	if len(failed) > 0 {
		w.logger.Warn("some consolidation triggers failed", "link", linkID, "failed", failed)
	}
	return nil
}

func (w *InSituWorker) EnqueueRemoteEnrichmentJob(ctx context.Context, res resource.Resource) error {
	if err := w.resourceSvc.EnrichRemoteResource(ctx, res); err != nil {
		return fmt.Errorf("enrich remote resource: %w: record '%s'", err, res.RecordID)
	}
	return nil
}

func (w *InSituWorker) EnqueueServiceMatchJob(ctx context.Context, res resource.Resource) error {
	if err := w.resourceSvc.MatchFeatureType(ctx, res); err != nil {
		return fmt.Errorf("match feature type: %w: record '%s'", err, res.RecordID)
	}
	return nil
}

func (*InSituWorker) Close() error { return nil }
