package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/geodatahub/geocat/core/validator"
)

// Resource types.
const (
	TypeFeatureType    = "feature-type"
	TypeRemoteResource = "remote-resource"
	TypeAtomFeed       = "atom-feed"
)

// Origin types, i.e. the metadata element a resource was discovered in.
const (
	OriginCoupledResource = "srv:coupledResource"
	OriginOnLine          = "gmd:onLine"
)

// Remote resource types, determined by the link checker.
const (
	RemoteTypePage             = "page"
	RemoteTypeFileDistribution = "file-distribution"
	RemoteTypeUnknownArchive   = "unknown-archive"
)

type Repository interface {
	// Upsert inserts the resource if its identity is unseen, otherwise only
	// touches updated_at and clears the checking flag. Creation stamps are
	// written on insert only.
	Upsert(ctx context.Context, res *Resource) (UpsertResult, error)
	GetByRecord(ctx context.Context, recordID string) ([]Resource, error)
	MarkAsChecking(ctx context.Context, recordID, originID string) error
	ApplyRemoteEnrichment(ctx context.Context, res *Resource, remote RemoteResource) error
	// ApplyRemoteEnrichmentByLocation fans the snapshot out to every resource
	// pointing at the remote's hashed location, across datasets.
	ApplyRemoteEnrichmentByLocation(ctx context.Context, remote RemoteResource) error
	ApplyMatchingService(ctx context.Context, res *Resource, serviceID string) error
}

// RemoteResourceRepository is the secondary store of deduplicated remote
// resources, keyed by hashed location.
type RemoteResourceRepository interface {
	Upsert(ctx context.Context, remote *RemoteResource) (UpsertResult, error)
	GetByLocation(ctx context.Context, location string) (RemoteResource, error)
	// StoreCheckResult overwrites the row with what the link checker found,
	// creating it if the location was never seen.
	StoreCheckResult(ctx context.Context, remote *RemoteResource) error
}

// ServiceRepository is the secondary store of deduplicated OGC services.
type ServiceRepository interface {
	Upsert(ctx context.Context, svc *ServiceRecord) (UpsertResult, error)
	GetByLocation(ctx context.Context, location, protocol string) (ServiceRecord, error)
}

type UpsertResult string

const (
	UpsertCreated UpsertResult = "created"
	UpsertUpdated UpsertResult = "updated"
)

// Resource is an auxiliary entity discovered while consolidating a dataset.
// Exactly one of FeatureType or RemoteResource must be set.
type Resource struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`

	// Origin identity.
	OriginType string `json:"origin_type" validate:"required,oneof=srv:coupledResource gmd:onLine"`
	OriginID   string `json:"origin_id" validate:"required"`
	OriginHash string `json:"origin_hash" validate:"required"`

	// Owning dataset.
	RecordID string `json:"record_id" validate:"required"`

	// Checking marks in-flight asynchronous verification.
	Checking  bool      `json:"checking"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FeatureType    *FeatureType    `json:"feature_type,omitempty"`
	RemoteResource *RemoteResource `json:"remote_resource,omitempty"`
}

// FeatureType points at a service believed to expose the feature type.
type FeatureType struct {
	CandidateName     string `json:"candidate_name"`
	CandidateLocation string `json:"candidate_location"`
	MatchingService   string `json:"matching_service,omitempty"`
}

// RemoteResource is a file, archive or page reachable at a URL. As the
// secondary store row it is deduplicated by hashed location; embedded in a
// Resource it carries the enrichment snapshot copied from that row.
type RemoteResource struct {
	Location       string   `json:"location"`
	HashedLocation string   `json:"hashed_location,omitempty"`
	Type           string   `json:"type,omitempty"`
	Available      bool     `json:"available"`
	Layers         []string `json:"layers,omitempty"`
}

// ServiceRecord is a deduplicated OGC service endpoint.
type ServiceRecord struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Protocol string `json:"protocol"`
}

// Validate checks identity fields and the variant payload. A resource with
// neither or both variants is invalid.
func (r *Resource) Validate() error {
	if err := validator.ValidateStruct(r); err != nil {
		return InvalidError{Err: err}
	}

	switch {
	case r.RemoteResource != nil && r.FeatureType != nil:
		return InvalidError{Err: fmt.Errorf("resource carries both variants")}
	case r.RemoteResource != nil:
		return r.validateRemoteResource()
	case r.FeatureType != nil:
		return r.validateFeatureType()
	default:
		return InvalidError{Err: fmt.Errorf("unknown related resource format")}
	}
}

func (r *Resource) validateRemoteResource() error {
	if r.RemoteResource.Location == "" {
		return InvalidError{Err: fmt.Errorf("remote resource must carry a location")}
	}
	return nil
}

func (r *Resource) validateFeatureType() error {
	if r.FeatureType.CandidateName == "" || r.FeatureType.CandidateLocation == "" {
		return InvalidError{Err: fmt.Errorf("feature type must carry candidate name and location")}
	}
	return nil
}

// UniqueKey derives the variant discriminator part of the resource identity.
// It is a pure function: query construction stays separate from the store
// call using it.
func (r *Resource) UniqueKey() string {
	switch {
	case r.RemoteResource != nil:
		return strings.Join([]string{
			TypeRemoteResource, r.OriginType, r.OriginID, r.OriginHash, r.RemoteResource.Location,
		}, "|")
	case r.FeatureType != nil:
		return strings.Join([]string{
			TypeFeatureType, r.OriginType, r.OriginID, r.OriginHash,
			r.FeatureType.CandidateName, r.FeatureType.CandidateLocation,
		}, "|")
	default:
		return ""
	}
}

// VariantType returns the resource type implied by the variant payload.
func (r *Resource) VariantType() string {
	if r.RemoteResource != nil {
		return TypeRemoteResource
	}
	if r.FeatureType != nil {
		return TypeFeatureType
	}
	return ""
}

// HashedLocation returns the content address of the remote resource variant.
func (r *RemoteResource) HashLocation() string {
	if r.HashedLocation != "" {
		return r.HashedLocation
	}
	return dataset.HashLocation(r.Location)
}
