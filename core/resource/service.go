package resource

import (
	"context"
	"fmt"

	"github.com/goto/salt/log"
)

//go:generate mockery --name=Worker -r --case underscore --with-expecter --structname Worker --filename worker_mock.go --output=./mocks

// Worker dispatches phase-2 enrichment jobs. Enrichment runs outside the
// consolidation critical path and is idempotent, so a job may be re-invoked
// safely.
type Worker interface {
	EnqueueRemoteEnrichmentJob(ctx context.Context, res Resource) error
	EnqueueServiceMatchJob(ctx context.Context, res Resource) error
}

// ConsolidationTrigger re-triggers consolidation of the owning dataset once
// a resource changed.
type ConsolidationTrigger interface {
	TriggerUpdated(ctx context.Context, recordID, reason string) error
}

type Service struct {
	repo     Repository
	remotes  RemoteResourceRepository
	services ServiceRepository
	worker   Worker
	trigger  ConsolidationTrigger
	logger   log.Logger
}

type ServiceDeps struct {
	Repo        Repository
	RemoteRepo  RemoteResourceRepository
	ServiceRepo ServiceRepository
	Worker      Worker
	Trigger     ConsolidationTrigger
	Logger      log.Logger
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Service{
		repo:     deps.Repo,
		remotes:  deps.RemoteRepo,
		services: deps.ServiceRepo,
		worker:   deps.Worker,
		trigger:  deps.Trigger,
		logger:   logger,
	}
}

// Upsert stores a discovered related resource. The first phase is a single
// atomic insert-or-touch keyed by the resource identity; re-discovering the
// same resource never creates a duplicate. On first sighting, the matching
// secondary store row is created, and when that row already existed an
// asynchronous enrichment job copies its data back onto the resource.
// Enrichment failures never fail this call.
func (s *Service) Upsert(ctx context.Context, res *Resource) (UpsertResult, error) {
	if res == nil {
		return "", ErrNilResource
	}
	if err := res.Validate(); err != nil {
		return "", err
	}
	res.Type = res.VariantType()
	if res.RemoteResource != nil {
		res.RemoteResource.HashedLocation = res.RemoteResource.HashLocation()
	}

	result, err := s.repo.Upsert(ctx, res)
	if err != nil {
		return "", fmt.Errorf("upsert related resource: %w", err)
	}

	if result == UpsertCreated {
		if res.RemoteResource != nil {
			s.resolveRemoteResource(ctx, *res)
		} else {
			s.resolveFeatureType(ctx, *res)
		}
	}

	return result, nil
}

// TriggerConsolidation asks for re-consolidation of the resource's dataset.
func (s *Service) TriggerConsolidation(ctx context.Context, res Resource) error {
	if res.RecordID == "" {
		return InvalidError{Err: fmt.Errorf("record not set on related resource")}
	}
	return s.trigger.TriggerUpdated(ctx, res.RecordID, "related resource updated")
}

// MarkAsChecking flags all resources of an origin as being re-verified. The
// external link checker calls it before re-probing the origin's locations;
// results come back through ApplyLinkCheck.
func (s *Service) MarkAsChecking(ctx context.Context, recordID, originID string) error {
	return s.repo.MarkAsChecking(ctx, recordID, originID)
}

// GetByRecord lists all related resources of a dataset.
func (s *Service) GetByRecord(ctx context.Context, recordID string) ([]Resource, error) {
	return s.repo.GetByRecord(ctx, recordID)
}

// ApplyLinkCheck stores what the link checker found about a location and fans
// the result out to every related resource pointing at it. Consolidation of
// the affected datasets is triggered separately, by the link-checked job.
func (s *Service) ApplyLinkCheck(ctx context.Context, remote RemoteResource) error {
	if remote.Location == "" {
		return InvalidError{Err: fmt.Errorf("link check result must carry a location")}
	}
	remote.HashedLocation = remote.HashLocation()

	if err := s.remotes.StoreCheckResult(ctx, &remote); err != nil {
		return fmt.Errorf("store link check result: %w", err)
	}
	if err := s.repo.ApplyRemoteEnrichmentByLocation(ctx, remote); err != nil {
		return fmt.Errorf("apply link check result: %w", err)
	}
	return nil
}

// EnrichRemoteResource is the RemoteResourceJob body: copy availability, type
// and archive layers from the deduplicated remote resource row onto the
// related resource.
func (s *Service) EnrichRemoteResource(ctx context.Context, res Resource) error {
	if res.RemoteResource == nil {
		return InvalidError{Err: fmt.Errorf("resource has no remote resource variant")}
	}

	remote, err := s.remotes.GetByLocation(ctx, res.RemoteResource.Location)
	if err != nil {
		return fmt.Errorf("enrich remote resource: %w", err)
	}

	if err := s.repo.ApplyRemoteEnrichment(ctx, &res, remote); err != nil {
		return fmt.Errorf("enrich remote resource: %w", err)
	}

	return s.TriggerConsolidation(ctx, res)
}

// MatchFeatureType is the FeatureTypeJob body: record the id of the service
// matching the feature type candidate location.
func (s *Service) MatchFeatureType(ctx context.Context, res Resource) error {
	if res.FeatureType == nil {
		return InvalidError{Err: fmt.Errorf("resource has no feature type variant")}
	}

	svc, err := s.services.GetByLocation(ctx, res.FeatureType.CandidateLocation, "wfs")
	if err != nil {
		return fmt.Errorf("match feature type: %w", err)
	}

	if err := s.repo.ApplyMatchingService(ctx, &res, svc.ID); err != nil {
		return fmt.Errorf("match feature type: %w", err)
	}

	return s.TriggerConsolidation(ctx, res)
}

func (s *Service) resolveRemoteResource(ctx context.Context, res Resource) {
	remote := RemoteResource{
		Location:       res.RemoteResource.Location,
		HashedLocation: res.RemoteResource.HashLocation(),
		Type:           res.RemoteResource.Type,
	}

	status, err := s.remotes.Upsert(ctx, &remote)
	if err != nil {
		s.logger.Error("upsert remote resource",
			"location", remote.Location, "record", res.RecordID, "err", err)
		return
	}
	if status == UpsertCreated {
		// The link checker will verify the fresh row and the next upsert
		// re-evaluates enrichment.
		return
	}

	if err := s.worker.EnqueueRemoteEnrichmentJob(ctx, res); err != nil {
		s.logger.Error("enqueue remote enrichment",
			"location", remote.Location, "record", res.RecordID, "err", err)
	}
}

func (s *Service) resolveFeatureType(ctx context.Context, res Resource) {
	candidate := ServiceRecord{
		Location: res.FeatureType.CandidateLocation,
		Protocol: "wfs",
	}

	status, err := s.services.Upsert(ctx, &candidate)
	if err != nil {
		s.logger.Error("upsert candidate service",
			"location", candidate.Location, "record", res.RecordID, "err", err)
		return
	}
	if status == UpsertCreated {
		return
	}

	if err := s.worker.EnqueueServiceMatchJob(ctx, res); err != nil {
		s.logger.Error("enqueue service match",
			"location", candidate.Location, "record", res.RecordID, "err", err)
	}
}
