package record

import (
	"context"
	"fmt"
)

// DiscoveryRepository indexes consolidated records for full text search. It
// is written to after every successful consolidation and is rebuildable from
// the primary store.
type DiscoveryRepository interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, recordID string) error
	Search(ctx context.Context, cfg SearchConfig) ([]SearchResult, error)
}

type SearchConfig struct {
	// Text to search for in the indexed metadata.
	Text string

	// Filters restrict results to records carrying the given facet values,
	// e.g. "organization" or "catalog".
	Filters map[string][]string

	MaxResults int
	Offset     int
}

// SearchResult is a projection of an indexed record.
type SearchResult struct {
	RecordID      string   `json:"record_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Organizations []string `json:"organizations"`
	Catalogs      []string `json:"catalogs"`
}

// DiscoveryError wraps failures of the search index so callers can tell them
// apart from primary store failures.
type DiscoveryError struct {
	Op  string
	Err error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("discovery error: %s: %s", e.Op, e.Err)
}

func (e DiscoveryError) Unwrap() error { return e.Err }
