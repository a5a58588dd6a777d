package workermanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/geodatahub/geocat/pkg/lock"
	"github.com/geodatahub/geocat/pkg/worker"
)

const (
	jobConsolidateRecord    = "consolidate-record"
	jobLinkChecked          = "link-checked"
	jobEnrichRemoteResource = "enrich-remote-resource"
	jobMatchFeatureType     = "match-feature-type"
	jobIndexRecord          = "index-record"
)

type consolidatePayload struct {
	RecordID string        `json:"record_id"`
	Reason   string        `json:"reason"`
	MaxAge   time.Duration `json:"max_age,omitempty"`
}

type linkCheckedPayload struct {
	LinkID string `json:"link_id"`
}

type indexRecordPayload struct {
	RecordID string `json:"record_id"`
}

// EnqueueConsolidateJob implements record.Worker.
func (m *Manager) EnqueueConsolidateJob(ctx context.Context, recordID, reason string, freshness record.Freshness) error {
	payload, err := json.Marshal(consolidatePayload{
		RecordID: recordID,
		Reason:   reason,
		MaxAge:   freshness.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("enqueue consolidate job: %w", err)
	}

	err = m.worker.Enqueue(ctx, worker.JobSpec{
		Type:    jobConsolidateRecord,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue consolidate job: %w: record '%s'", err, recordID)
	}
	return nil
}

// EnqueueLinkCheckedJob schedules the fan-out reaction to a link check event.
func (m *Manager) EnqueueLinkCheckedJob(ctx context.Context, linkID string) error {
	payload, err := json.Marshal(linkCheckedPayload{LinkID: linkID})
	if err != nil {
		return fmt.Errorf("enqueue link checked job: %w", err)
	}

	err = m.worker.Enqueue(ctx, worker.JobSpec{
		Type:    jobLinkChecked,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue link checked job: %w: link '%s'", err, linkID)
	}
	return nil
}

// EnqueueRemoteEnrichmentJob implements resource.Worker.
func (m *Manager) EnqueueRemoteEnrichmentJob(ctx context.Context, res resource.Resource) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("enqueue remote enrichment job: %w", err)
	}

	err = m.worker.Enqueue(ctx, worker.JobSpec{
		Type:    jobEnrichRemoteResource,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue remote enrichment job: %w: record '%s'", err, res.RecordID)
	}
	return nil
}

// EnqueueServiceMatchJob implements resource.Worker.
func (m *Manager) EnqueueServiceMatchJob(ctx context.Context, res resource.Resource) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("enqueue service match job: %w", err)
	}

	err = m.worker.Enqueue(ctx, worker.JobSpec{
		Type:    jobMatchFeatureType,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue service match job: %w: record '%s'", err, res.RecordID)
	}
	return nil
}

// EnqueueIndexRecordJob schedules re-indexing of a consolidated record.
func (m *Manager) EnqueueIndexRecordJob(ctx context.Context, recordID string) error {
	payload, err := json.Marshal(indexRecordPayload{RecordID: recordID})
	if err != nil {
		return fmt.Errorf("enqueue index record job: %w", err)
	}

	err = m.worker.Enqueue(ctx, worker.JobSpec{
		Type:    jobIndexRecord,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue index record job: %w: record '%s'", err, recordID)
	}
	return nil
}

func (m *Manager) consolidateRecordHandler() worker.JobHandler {
	return worker.JobHandler{
		Handle: func(ctx context.Context, job worker.JobSpec) error {
			var payload consolidatePayload
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("consolidate record: unmarshal payload: %w", err)
			}

			result, err := m.recordSvc.Consolidate(ctx, payload.RecordID, record.Freshness{MaxAge: payload.MaxAge})
			if err != nil {
				if errors.Is(err, lock.ErrNotObtained) {
					// Another worker holds the dataset; retry after backoff.
					return &worker.RetryableError{Cause: err}
				}
				var notFound record.NotFoundError
				if errors.As(err, &notFound) {
					// Nothing to consolidate from; retrying cannot help.
					return fmt.Errorf("consolidate record '%s': %w", payload.RecordID, err)
				}
				return &worker.RetryableError{
					Cause: fmt.Errorf("consolidate record '%s': %w", payload.RecordID, err),
				}
			}

			if result == record.ResultConsolidated {
				if err := m.EnqueueIndexRecordJob(ctx, payload.RecordID); err != nil {
					m.logger.Error("enqueue index after consolidation",
						"record", payload.RecordID, "err", err)
				}
			}
			return nil
		},
		JobOpts: worker.JobOptions{
			MaxAttempts: 5,
			Timeout:     30 * time.Second,
		},
	}
}

func (m *Manager) linkCheckedHandler() worker.JobHandler {
	return worker.JobHandler{
		Handle: func(ctx context.Context, job worker.JobSpec) error {
			var payload linkCheckedPayload
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("link checked: unmarshal payload: %w", err)
			}

			failed, err := m.recordSvc.OnLinkChecked(ctx, payload.LinkID)
			if err != nil {
				return &worker.RetryableError{
					Cause: fmt.Errorf("react to checked link '%s': %w", payload.LinkID, err),
				}
			}
			if len(failed) > 0 {
				m.logger.Warn("some consolidation triggers failed",
					"link", payload.LinkID, "failed", failed)
			}
			return nil
		},
		JobOpts: worker.JobOptions{
			MaxAttempts: 3,
			Timeout:     time.Minute,
		},
	}
}

func (m *Manager) enrichRemoteResourceHandler() worker.JobHandler {
	return worker.JobHandler{
		Handle: func(ctx context.Context, job worker.JobSpec) error {
			var res resource.Resource
			if err := json.Unmarshal(job.Payload, &res); err != nil {
				return fmt.Errorf("enrich remote resource: unmarshal payload: %w", err)
			}

			if err := m.resourceSvc.EnrichRemoteResource(ctx, res); err != nil {
				var notFound resource.NotFoundError
				if errors.As(err, &notFound) {
					return err
				}
				return &worker.RetryableError{Cause: err}
			}
			return nil
		},
		JobOpts: worker.JobOptions{
			MaxAttempts: 3,
			Timeout:     15 * time.Second,
		},
	}
}

func (m *Manager) matchFeatureTypeHandler() worker.JobHandler {
	return worker.JobHandler{
		Handle: func(ctx context.Context, job worker.JobSpec) error {
			var res resource.Resource
			if err := json.Unmarshal(job.Payload, &res); err != nil {
				return fmt.Errorf("match feature type: unmarshal payload: %w", err)
			}

			if err := m.resourceSvc.MatchFeatureType(ctx, res); err != nil {
				var notFound resource.NotFoundError
				if errors.As(err, &notFound) {
					return err
				}
				return &worker.RetryableError{Cause: err}
			}
			return nil
		},
		JobOpts: worker.JobOptions{
			MaxAttempts: 3,
			Timeout:     15 * time.Second,
		},
	}
}

func (m *Manager) indexRecordHandler() worker.JobHandler {
	return worker.JobHandler{
		Handle: func(ctx context.Context, job worker.JobSpec) error {
			var payload indexRecordPayload
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("index record: unmarshal payload: %w", err)
			}

			rec, err := m.recordSvc.GetByID(ctx, payload.RecordID)
			if err != nil {
				var notFound record.NotFoundError
				if errors.As(err, &notFound) {
					// The record vanished between consolidation and indexing;
					// drop it from the index as well.
					return m.discoveryRepo.Delete(ctx, payload.RecordID)
				}
				return &worker.RetryableError{Cause: err}
			}

			if err := m.discoveryRepo.Upsert(ctx, rec); err != nil {
				return &worker.RetryableError{
					Cause: fmt.Errorf("index record '%s': %w", payload.RecordID, err),
				}
			}
			return nil
		},
		JobOpts: worker.JobOptions{
			MaxAttempts: 3,
			Timeout:     15 * time.Second,
		},
	}
}
