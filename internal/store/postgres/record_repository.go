package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/geodatahub/geocat/core/record"
)

const (
	recordsTable         = "records"
	catalogRecordsTable  = "catalog_records"
	recordRevisionsTable = "record_revisions"
	publicationsTable    = "publications"
	catalogsTable        = "catalogs"
)

// RecordRepository persists consolidated records and serves the read side of
// consolidation: catalog copies, revisions and publications.
type RecordRepository struct {
	client *Client
}

func NewRecordRepository(c *Client) (*RecordRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &RecordRepository{client: c}, nil
}

func (r *RecordRepository) GetByID(ctx context.Context, recordID string) (record.Record, error) {
	query, args, err := sq.Select("*").From(recordsTable).
		Where(sq.Eq{"record_id": recordID}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return record.Record{}, err
	}

	var m RecordModel
	if err := r.client.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, record.NotFoundError{RecordID: recordID}
		}
		return record.Record{}, err
	}
	return m.toRecord()
}

// Upsert overwrites the consolidated record, creating it on first
// consolidation. The creation stamp survives overwrites.
func (r *RecordRepository) Upsert(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.RecordID == "" {
		return record.ErrEmptyRecordID
	}

	m, err := buildRecordModel(*rec)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert(recordsTable).
		Columns(
			"record_id", "record_hash", "revision_date", "metadata", "organizations",
			"catalogs", "distributions", "alternate_resources", "facets", "link_ids",
		).
		Values(
			m.RecordID, m.RecordHash, m.RevisionDate, m.Metadata, m.Organizations,
			m.Catalogs, m.Distributions, m.AlternateResources, m.Facets, m.LinkIDs,
		).
		Suffix(`ON CONFLICT (record_id) DO UPDATE SET
			record_hash = EXCLUDED.record_hash,
			revision_date = EXCLUDED.revision_date,
			metadata = EXCLUDED.metadata,
			organizations = EXCLUDED.organizations,
			catalogs = EXCLUDED.catalogs,
			distributions = EXCLUDED.distributions,
			alternate_resources = EXCLUDED.alternate_resources,
			facets = EXCLUDED.facets,
			link_ids = EXCLUDED.link_ids,
			updated_at = current_timestamp
			RETURNING created_at, updated_at`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	err = r.client.QueryRowxContext(ctx, query, args...).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return checkPostgresError(err)
	}
	return nil
}

// GetIDsByLink returns the IDs of all datasets whose persisted link set
// references the given link.
func (r *RecordRepository) GetIDsByLink(ctx context.Context, linkID string) ([]string, error) {
	needle, err := json.Marshal([]string{linkID})
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Select("record_id").From(recordsTable).
		Where(sq.Expr("link_ids @> ?::jsonb", string(needle))).
		OrderBy("record_id ASC").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	var recordIDs []string
	if err := r.client.SelectContext(ctx, &recordIDs, query, args...); err != nil {
		return nil, err
	}
	return recordIDs, nil
}

// CatalogRecordRepository reads the per-source harvested copies. The
// harvester writes these rows before triggering consolidation.
type CatalogRecordRepository struct {
	client *Client
}

func NewCatalogRecordRepository(c *Client) (*CatalogRecordRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &CatalogRecordRepository{client: c}, nil
}

// GetByRecord returns all copies of a dataset, most recent revision first,
// ties broken by last-touched. The first row is the consolidation winner.
func (r *CatalogRecordRepository) GetByRecord(ctx context.Context, recordID string) ([]record.CatalogRecord, error) {
	query, args, err := sq.Select(
		"cr.record_id", "cr.record_hash", "cr.revision_date", "cr.touched_at",
		"cr.catalog_id", "c.name AS catalog_name",
	).
		From(catalogRecordsTable+" cr").
		Join(catalogsTable+" c ON c.id = cr.catalog_id").
		Where(sq.Eq{"cr.record_id": recordID}).
		OrderBy("cr.revision_date DESC NULLS LAST", "cr.touched_at DESC").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	var models []CatalogRecordModel
	if err := r.client.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, err
	}

	copies := make([]record.CatalogRecord, 0, len(models))
	for _, m := range models {
		copies = append(copies, m.toCatalogRecord())
	}
	return copies, nil
}

// Upsert records a harvested copy, refreshing touched_at when the same copy
// is seen again.
func (r *CatalogRecordRepository) Upsert(ctx context.Context, cr record.CatalogRecord) error {
	query, args, err := sq.Insert(catalogRecordsTable).
		Columns("record_id", "record_hash", "revision_date", "catalog_id").
		Values(cr.RecordID, cr.RecordHash, nullTime(cr.RevisionDate), cr.CatalogID).
		Suffix(`ON CONFLICT (record_id, catalog_id) DO UPDATE SET
			record_hash = EXCLUDED.record_hash,
			revision_date = EXCLUDED.revision_date,
			touched_at = current_timestamp`).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}
	return nil
}

// RevisionRepository stores immutable content-addressed snapshots.
type RevisionRepository struct {
	client *Client
}

func NewRevisionRepository(c *Client) (*RevisionRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &RevisionRepository{client: c}, nil
}

func (r *RevisionRepository) Get(ctx context.Context, recordID, recordHash string) (record.Revision, error) {
	query, args, err := sq.Select("*").From(recordRevisionsTable).
		Where(sq.Eq{"record_id": recordID, "record_hash": recordHash}).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return record.Revision{}, err
	}

	var m RevisionModel
	if err := r.client.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Revision{}, record.NotFoundError{RecordID: recordID, RecordHash: recordHash}
		}
		return record.Revision{}, err
	}
	return m.toRevision()
}

// Create stores a snapshot. Re-creating an existing (record, hash) pair is a
// no-op: content-addressed rows never change.
func (r *RevisionRepository) Create(ctx context.Context, rev record.Revision) error {
	content, err := json.Marshal(rev.Content)
	if err != nil {
		return fmt.Errorf("marshal revision content: %w", err)
	}

	query, args, err := sq.Insert(recordRevisionsTable).
		Columns("record_id", "record_hash", "record_type", "revision_date", "content").
		Values(rev.RecordID, rev.RecordHash, rev.RecordType, nullTime(rev.RevisionDate), content).
		Suffix("ON CONFLICT (record_id, record_hash) DO NOTHING").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.client.ExecContext(ctx, query, args...); err != nil {
		return checkPostgresError(err)
	}
	return nil
}

// PublicationRepository reads where datasets are published downstream.
type PublicationRepository struct {
	client *Client
}

func NewPublicationRepository(c *Client) (*PublicationRepository, error) {
	if c == nil {
		return nil, errNilPostgresClient
	}
	return &PublicationRepository{client: c}, nil
}

func (r *PublicationRepository) GetByRecord(ctx context.Context, recordID string) ([]record.Publication, error) {
	query, args, err := sq.Select("*").From(publicationsTable).
		Where(sq.Eq{"record_id": recordID}).
		OrderBy("target ASC").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	var models []PublicationModel
	if err := r.client.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, err
	}

	publications := make([]record.Publication, 0, len(models))
	for _, m := range models {
		publications = append(publications, m.toPublication())
	}
	return publications, nil
}
