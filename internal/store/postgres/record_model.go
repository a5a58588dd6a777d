package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geodatahub/geocat/core/record"
)

type RecordModel struct {
	RecordID           string       `db:"record_id"`
	RecordHash         string       `db:"record_hash"`
	RevisionDate       sql.NullTime `db:"revision_date"`
	Metadata           []byte       `db:"metadata"`
	Organizations      []byte       `db:"organizations"`
	Catalogs           []byte       `db:"catalogs"`
	Distributions      []byte       `db:"distributions"`
	AlternateResources []byte       `db:"alternate_resources"`
	Facets             []byte       `db:"facets"`
	LinkIDs            []byte       `db:"link_ids"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func buildRecordModel(rec record.Record) (RecordModel, error) {
	m := RecordModel{
		RecordID:   rec.RecordID,
		RecordHash: rec.RecordHash,
	}
	if !rec.RevisionDate.IsZero() {
		m.RevisionDate = sql.NullTime{Time: rec.RevisionDate, Valid: true}
	}

	// Link IDs are projected into their own column so that the link-check
	// reactor can query referencing datasets without unpacking metadata.
	linkIDs := make([]string, 0, len(rec.Metadata.Links))
	for _, link := range rec.Metadata.Links {
		if link.ID != "" {
			linkIDs = append(linkIDs, link.ID)
		}
	}

	for _, col := range []struct {
		dst *[]byte
		src interface{}
	}{
		{&m.Metadata, rec.Metadata},
		{&m.Organizations, rec.Organizations},
		{&m.Catalogs, rec.Catalogs},
		{&m.Distributions, rec.Distributions},
		{&m.AlternateResources, rec.AlternateResources},
		{&m.Facets, rec.Facets},
		{&m.LinkIDs, linkIDs},
	} {
		buf, err := json.Marshal(col.src)
		if err != nil {
			return RecordModel{}, fmt.Errorf("marshal record column: %w", err)
		}
		*col.dst = buf
	}

	return m, nil
}

func (m RecordModel) toRecord() (record.Record, error) {
	rec := record.Record{
		RecordID:   m.RecordID,
		RecordHash: m.RecordHash,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.RevisionDate.Valid {
		rec.RevisionDate = m.RevisionDate.Time
	}

	for _, col := range []struct {
		src []byte
		dst interface{}
	}{
		{m.Metadata, &rec.Metadata},
		{m.Organizations, &rec.Organizations},
		{m.Catalogs, &rec.Catalogs},
		{m.Distributions, &rec.Distributions},
		{m.AlternateResources, &rec.AlternateResources},
		{m.Facets, &rec.Facets},
	} {
		if len(col.src) == 0 {
			continue
		}
		if err := json.Unmarshal(col.src, col.dst); err != nil {
			return record.Record{}, fmt.Errorf("unmarshal record column: %w", err)
		}
	}

	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

type CatalogRecordModel struct {
	RecordID     string       `db:"record_id"`
	RecordHash   string       `db:"record_hash"`
	RevisionDate sql.NullTime `db:"revision_date"`
	TouchedAt    time.Time    `db:"touched_at"`
	CatalogID    string       `db:"catalog_id"`
	CatalogName  string       `db:"catalog_name"`
}

func (m CatalogRecordModel) toCatalogRecord() record.CatalogRecord {
	cr := record.CatalogRecord{
		RecordID:    m.RecordID,
		RecordHash:  m.RecordHash,
		TouchedAt:   m.TouchedAt,
		CatalogID:   m.CatalogID,
		CatalogName: m.CatalogName,
	}
	if m.RevisionDate.Valid {
		cr.RevisionDate = m.RevisionDate.Time
	}
	return cr
}

type RevisionModel struct {
	RecordID     string       `db:"record_id"`
	RecordHash   string       `db:"record_hash"`
	RecordType   string       `db:"record_type"`
	RevisionDate sql.NullTime `db:"revision_date"`
	Content      []byte       `db:"content"`
	CreatedAt    time.Time    `db:"created_at"`
}

func (m RevisionModel) toRevision() (record.Revision, error) {
	rev := record.Revision{
		RecordID:   m.RecordID,
		RecordHash: m.RecordHash,
		RecordType: m.RecordType,
		CreatedAt:  m.CreatedAt,
	}
	if m.RevisionDate.Valid {
		rev.RevisionDate = m.RevisionDate.Time
	}
	if len(m.Content) > 0 {
		if err := json.Unmarshal(m.Content, &rev.Content); err != nil {
			return record.Revision{}, fmt.Errorf("unmarshal revision content: %w", err)
		}
	}
	return rev, nil
}

type PublicationModel struct {
	RecordID    string         `db:"record_id"`
	Target      string         `db:"target"`
	RemoteID    sql.NullString `db:"remote_id"`
	PublishedAt time.Time      `db:"published_at"`
}

func (m PublicationModel) toPublication() record.Publication {
	return record.Publication{
		RecordID:    m.RecordID,
		Target:      m.Target,
		RemoteID:    m.RemoteID.String,
		PublishedAt: m.PublishedAt,
	}
}
