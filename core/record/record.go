package record

import (
	"context"
	"time"

	"github.com/geodatahub/geocat/core/dataset"
)

//go:generate mockery --name=Repository -r --case underscore --with-expecter --structname RecordRepository --filename record_repository.go --output=./mocks

type Repository interface {
	// GetByID returns the consolidated record, or NotFoundError if the
	// dataset was never consolidated.
	GetByID(ctx context.Context, recordID string) (Record, error)
	// Upsert overwrites the consolidated record for its dataset. At most one
	// row exists per record ID.
	Upsert(ctx context.Context, rec *Record) error
	// GetIDsByLink returns the IDs of every dataset whose persisted links
	// reference the given link.
	GetIDsByLink(ctx context.Context, linkID string) ([]string, error)
}

type CatalogRecordRepository interface {
	// GetByRecord returns all catalog copies of a dataset ordered by revision
	// date descending, then last-touched descending.
	GetByRecord(ctx context.Context, recordID string) ([]CatalogRecord, error)
}

type RevisionRepository interface {
	// Get returns the content snapshot for a (record ID, content hash) pair.
	Get(ctx context.Context, recordID, recordHash string) (Revision, error)
}

type PublicationRepository interface {
	GetByRecord(ctx context.Context, recordID string) ([]Publication, error)
}

// Record is the canonical consolidated view of one logical dataset.
type Record struct {
	RecordID     string        `json:"record_id"`
	RecordHash   string        `json:"record_hash"`
	RevisionDate time.Time     `json:"revision_date"`
	Metadata     dataset.Model `json:"metadata"`

	Organizations      []string                    `json:"organizations,omitempty"`
	Catalogs           []string                    `json:"catalogs,omitempty"`
	Distributions      []dataset.Distribution      `json:"distributions,omitempty"`
	AlternateResources []dataset.AlternateResource `json:"alternate_resources,omitempty"`
	Facets             []dataset.Facet             `json:"facets,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Freshness is the staleness threshold under which consolidation is skipped.
// The zero value never considers a record fresh, so callers that want a
// forced run simply pass Freshness{}.
type Freshness struct {
	MaxAge time.Duration `json:"max_age"`
}

// IsFresh reports whether the record's current state satisfies the policy.
// A record without a content hash has never been consolidated and is never
// fresh.
func (r Record) IsFresh(f Freshness) bool {
	if f.MaxAge <= 0 || r.RecordHash == "" {
		return false
	}
	return time.Since(r.UpdatedAt) <= f.MaxAge
}

// CatalogRecord is one source catalog's harvested copy of a dataset.
type CatalogRecord struct {
	RecordID     string    `json:"record_id"`
	RecordHash   string    `json:"record_hash"`
	RevisionDate time.Time `json:"revision_date"`
	TouchedAt    time.Time `json:"touched_at"`
	CatalogID    string    `json:"catalog_id"`
	CatalogName  string    `json:"catalog_name"`
}

// Revision is the immutable, content-addressed snapshot of a harvested
// record. The same hash always maps to the same content.
type Revision struct {
	RecordID     string                 `json:"record_id"`
	RecordHash   string                 `json:"record_hash"`
	RecordType   string                 `json:"record_type"`
	RevisionDate time.Time              `json:"revision_date"`
	Content      map[string]interface{} `json:"content"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Publication describes where a dataset is published downstream. Read-only
// input to facet computation.
type Publication struct {
	RecordID    string    `json:"record_id"`
	Target      string    `json:"target"`
	RemoteID    string    `json:"remote_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
