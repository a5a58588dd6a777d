package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/geodatahub/geocat/core/resource"
)

const (
	relatedResourcesTable = "related_resources"
	remoteResourcesTable  = "remote_resources"
	servicesTable         = "services"
)

// ResourceRepository persists related resources keyed by their owning record
// and uniqueness discriminator.
type ResourceRepository struct {
	client *Client
}

func NewResourceRepository(c *Client) (*ResourceRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &ResourceRepository{client: c}, nil
}

// Upsert inserts the resource or, when the same identity already exists,
// refreshes updated_at and clears the checking flag without touching the
// descriptive fields written at creation. The returned result tells the two
// outcomes apart via the row's xmax system column: zero means the row was
// inserted by this statement.
func (r *ResourceRepository) Upsert(ctx context.Context, res *resource.Resource) (resource.UpsertResult, error) {
	if res == nil {
		return "", resource.ErrNilResource
	}

	m, err := buildResourceModel(*res)
	if err != nil {
		return "", err
	}

	query, args, err := sq.Insert(relatedResourcesTable).
		Columns(
			"type", "name", "origin_type", "origin_id", "origin_hash", "record_id", "uniq_key",
			"ft_candidate_name", "ft_candidate_location", "ft_matching_service",
			"remote_location", "remote_hashed_location", "remote_type", "remote_available", "remote_layers",
		).
		Values(
			m.Type, m.Name, m.OriginType, m.OriginID, m.OriginHash, m.RecordID, m.UniqKey,
			m.FtCandidateName, m.FtCandidateLocation, m.FtMatchingService,
			m.RemoteLocation, m.RemoteHashedLocation, m.RemoteType, m.RemoteAvailable, m.RemoteLayers,
		).
		Suffix(`ON CONFLICT (record_id, uniq_key) DO UPDATE SET
			updated_at = current_timestamp,
			checking = false
			RETURNING (xmax = 0) AS inserted, created_at, updated_at`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return "", err
	}

	var inserted bool
	err = r.client.QueryRowxContext(ctx, query, args...).Scan(&inserted, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return "", checkPostgresError(err)
	}

	res.Checking = false
	if inserted {
		return resource.UpsertCreated, nil
	}
	return resource.UpsertUpdated, nil
}

func (r *ResourceRepository) GetByRecord(ctx context.Context, recordID string) ([]resource.Resource, error) {
	query, args, err := sq.Select("*").From(relatedResourcesTable).
		Where(sq.Eq{"record_id": recordID}).
		OrderBy("uniq_key ASC").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	var models []ResourceModel
	if err := r.client.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, err
	}

	resources := make([]resource.Resource, 0, len(models))
	for _, m := range models {
		res, err := m.toResource()
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// MarkAsChecking flags every resource of a record sharing the origin as
// undergoing asynchronous verification.
func (r *ResourceRepository) MarkAsChecking(ctx context.Context, recordID, originID string) error {
	query, args, err := sq.Update(relatedResourcesTable).
		Set("checking", true).
		Set("updated_at", sq.Expr("current_timestamp")).
		Where(sq.Eq{"record_id": recordID, "origin_id": originID}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}
	return nil
}

// ApplyRemoteEnrichment copies the deduplicated remote resource snapshot onto
// the related resource row and clears the checking flag.
func (r *ResourceRepository) ApplyRemoteEnrichment(ctx context.Context, res *resource.Resource, remote resource.RemoteResource) error {
	if res == nil {
		return resource.ErrNilResource
	}

	layers, err := json.Marshal(remote.Layers)
	if err != nil {
		return fmt.Errorf("marshal remote layers: %w", err)
	}

	query, args, err := sq.Update(relatedResourcesTable).
		Set("remote_type", nullString(remote.Type)).
		Set("remote_available", remote.Available).
		Set("remote_layers", layers).
		Set("checking", false).
		Set("updated_at", sq.Expr("current_timestamp")).
		Where(sq.Eq{"record_id": res.RecordID, "uniq_key": res.UniqueKey()}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}

	if res.RemoteResource != nil {
		res.RemoteResource.Type = remote.Type
		res.RemoteResource.Available = remote.Available
		res.RemoteResource.Layers = remote.Layers
	}
	res.Checking = false
	return nil
}

// ApplyRemoteEnrichmentByLocation updates every resource of any dataset that
// points at the remote's hashed location.
func (r *ResourceRepository) ApplyRemoteEnrichmentByLocation(ctx context.Context, remote resource.RemoteResource) error {
	layers, err := json.Marshal(remote.Layers)
	if err != nil {
		return fmt.Errorf("marshal remote layers: %w", err)
	}

	query, args, err := sq.Update(relatedResourcesTable).
		Set("remote_type", nullString(remote.Type)).
		Set("remote_available", remote.Available).
		Set("remote_layers", layers).
		Set("checking", false).
		Set("updated_at", sq.Expr("current_timestamp")).
		Where(sq.Eq{"remote_hashed_location": remote.HashLocation()}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}
	return nil
}

// ApplyMatchingService binds a feature type resource to the service found to
// expose it.
func (r *ResourceRepository) ApplyMatchingService(ctx context.Context, res *resource.Resource, serviceID string) error {
	if res == nil {
		return resource.ErrNilResource
	}

	query, args, err := sq.Update(relatedResourcesTable).
		Set("ft_matching_service", nullString(serviceID)).
		Set("updated_at", sq.Expr("current_timestamp")).
		Where(sq.Eq{"record_id": res.RecordID, "uniq_key": res.UniqueKey()}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}

	if res.FeatureType != nil {
		res.FeatureType.MatchingService = serviceID
	}
	return nil
}

// RemoteResourceRepository deduplicates remote resources by hashed location.
type RemoteResourceRepository struct {
	client *Client
}

func NewRemoteResourceRepository(c *Client) (*RemoteResourceRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &RemoteResourceRepository{client: c}, nil
}

func (r *RemoteResourceRepository) Upsert(ctx context.Context, remote *resource.RemoteResource) (resource.UpsertResult, error) {
	if remote == nil || remote.Location == "" {
		return "", resource.InvalidError{Err: errors.New("remote resource must carry a location")}
	}

	layers, err := json.Marshal(remote.Layers)
	if err != nil {
		return "", fmt.Errorf("marshal remote layers: %w", err)
	}

	query, args, err := sq.Insert(remoteResourcesTable).
		Columns("location", "hashed_location", "type", "available", "layers").
		Values(remote.Location, remote.HashLocation(), nullString(remote.Type), remote.Available, layers).
		Suffix(`ON CONFLICT (hashed_location) DO UPDATE SET
			updated_at = current_timestamp
			RETURNING (xmax = 0) AS inserted, type, available, layers`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return "", err
	}

	var (
		inserted  bool
		curType   sql.NullString
		available sql.NullBool
		curLayers []byte
	)
	err = r.client.QueryRowxContext(ctx, query, args...).Scan(&inserted, &curType, &available, &curLayers)
	if err != nil {
		return "", checkPostgresError(err)
	}

	remote.HashedLocation = remote.HashLocation()
	if inserted {
		return resource.UpsertCreated, nil
	}

	// Report the stored state back so callers see what the link checker
	// already learned about this location.
	remote.Type = curType.String
	remote.Available = available.Bool
	if len(curLayers) > 0 {
		if err := json.Unmarshal(curLayers, &remote.Layers); err != nil {
			return "", fmt.Errorf("unmarshal remote layers: %w", err)
		}
	}
	return resource.UpsertUpdated, nil
}

// StoreCheckResult overwrites the deduplicated row with the checked state.
func (r *RemoteResourceRepository) StoreCheckResult(ctx context.Context, remote *resource.RemoteResource) error {
	if remote == nil || remote.Location == "" {
		return resource.InvalidError{Err: errors.New("remote resource must carry a location")}
	}

	layers, err := json.Marshal(remote.Layers)
	if err != nil {
		return fmt.Errorf("marshal remote layers: %w", err)
	}

	query, args, err := sq.Insert(remoteResourcesTable).
		Columns("location", "hashed_location", "type", "available", "layers").
		Values(remote.Location, remote.HashLocation(), nullString(remote.Type), remote.Available, layers).
		Suffix(`ON CONFLICT (hashed_location) DO UPDATE SET
			type = EXCLUDED.type,
			available = EXCLUDED.available,
			layers = EXCLUDED.layers,
			updated_at = current_timestamp`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}

	remote.HashedLocation = remote.HashLocation()
	return nil
}

func (r *RemoteResourceRepository) GetByLocation(ctx context.Context, location string) (resource.RemoteResource, error) {
	query, args, err := sq.Select("*").From(remoteResourcesTable).
		Where(sq.Or{
			sq.Eq{"location": location},
			sq.Eq{"hashed_location": location},
		}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return resource.RemoteResource{}, err
	}

	var m RemoteResourceModel
	if err := r.client.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resource.RemoteResource{}, resource.NotFoundError{Location: location}
		}
		return resource.RemoteResource{}, err
	}
	return m.toRemoteResource()
}

// ServiceRepository deduplicates OGC service endpoints by location and
// protocol.
type ServiceRepository struct {
	client *Client
}

func NewServiceRepository(c *Client) (*ServiceRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &ServiceRepository{client: c}, nil
}

func (r *ServiceRepository) Upsert(ctx context.Context, svc *resource.ServiceRecord) (resource.UpsertResult, error) {
	if svc == nil || svc.Location == "" || svc.Protocol == "" {
		return "", resource.InvalidError{Err: errors.New("service must carry a location and a protocol")}
	}

	query, args, err := sq.Insert(servicesTable).
		Columns("location", "protocol").
		Values(svc.Location, svc.Protocol).
		Suffix(`ON CONFLICT (location, protocol) DO UPDATE SET
			updated_at = current_timestamp
			RETURNING (xmax = 0) AS inserted, id`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return "", err
	}

	var inserted bool
	err = r.client.QueryRowxContext(ctx, query, args...).Scan(&inserted, &svc.ID)
	if err != nil {
		return "", checkPostgresError(err)
	}

	if inserted {
		return resource.UpsertCreated, nil
	}
	return resource.UpsertUpdated, nil
}

func (r *ServiceRepository) GetByLocation(ctx context.Context, location, protocol string) (resource.ServiceRecord, error) {
	query, args, err := sq.Select("*").From(servicesTable).
		Where(sq.Eq{"location": location, "protocol": protocol}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return resource.ServiceRecord{}, err
	}

	var m ServiceModel
	if err := r.client.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resource.ServiceRecord{}, resource.NotFoundError{Location: location, Protocol: protocol}
		}
		return resource.ServiceRecord{}, err
	}
	return m.toServiceRecord(), nil
}
