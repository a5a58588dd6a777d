package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/geodatahub/geocat/core/record"
)

const (
	defaultMaxResults = 200
	defaultMinScore   = 0.01
)

// DiscoveryRepository implements record.DiscoveryRepository with
// elasticsearch as the backing store.
type DiscoveryRepository struct {
	cli *Client
}

func NewDiscoveryRepository(cli *Client) *DiscoveryRepository {
	return &DiscoveryRepository{
		cli: cli,
	}
}

// recordDocument is the indexed projection of a consolidated record.
type recordDocument struct {
	RecordID      string          `json:"record_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Keywords      []string        `json:"keywords,omitempty"`
	Organizations []string        `json:"organizations,omitempty"`
	Catalogs      []string        `json:"catalogs,omitempty"`
	Facets        []dataset.Facet `json:"facets,omitempty"`
	RevisionDate  *time.Time      `json:"revision_date,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func buildRecordDocument(rec record.Record) recordDocument {
	doc := recordDocument{
		RecordID:      rec.RecordID,
		Title:         rec.Metadata.Title,
		Description:   rec.Metadata.Description,
		Keywords:      rec.Metadata.Keywords,
		Organizations: rec.Organizations,
		Catalogs:      rec.Catalogs,
		Facets:        rec.Facets,
		UpdatedAt:     rec.UpdatedAt,
	}
	if !rec.RevisionDate.IsZero() {
		revisionDate := rec.RevisionDate
		doc.RevisionDate = &revisionDate
	}
	return doc
}

func (repo *DiscoveryRepository) Upsert(ctx context.Context, rec record.Record) error {
	if rec.RecordID == "" {
		return record.ErrEmptyRecordID
	}

	body := new(bytes.Buffer)
	if err := json.NewEncoder(body).Encode(buildRecordDocument(rec)); err != nil {
		return record.DiscoveryError{Op: "Upsert", Err: fmt.Errorf("serialise document: %w", err)}
	}

	index := repo.cli.client.Index
	res, err := index(
		recordsIndex,
		body,
		index.WithDocumentID(rec.RecordID),
		index.WithRefresh("true"),
		index.WithContext(ctx),
	)
	if err != nil {
		return record.DiscoveryError{Op: "Upsert", Err: elasticSearchError(err)}
	}
	defer res.Body.Close()
	if res.IsError() {
		return record.DiscoveryError{Op: "Upsert", Err: fmt.Errorf("%s", errorReasonFromResponse(res))}
	}
	return nil
}

func (repo *DiscoveryRepository) Delete(ctx context.Context, recordID string) error {
	if recordID == "" {
		return record.ErrEmptyRecordID
	}

	del := repo.cli.client.Delete
	res, err := del(
		recordsIndex,
		recordID,
		del.WithContext(ctx),
	)
	if err != nil {
		return record.DiscoveryError{Op: "Delete", Err: elasticSearchError(err)}
	}
	defer res.Body.Close()
	// a 404 means the record was never indexed, which deletion is fine with
	if res.IsError() && res.StatusCode != 404 {
		return record.DiscoveryError{Op: "Delete", Err: fmt.Errorf("%s", errorReasonFromResponse(res))}
	}
	return nil
}

func (repo *DiscoveryRepository) Search(ctx context.Context, cfg record.SearchConfig) ([]record.SearchResult, error) {
	if strings.TrimSpace(cfg.Text) == "" {
		return nil, record.DiscoveryError{Op: "Search", Err: fmt.Errorf("search text cannot be empty")}
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	offset := cfg.Offset
	if offset < 0 {
		offset = 0
	}

	query, err := buildSearchQuery(cfg)
	if err != nil {
		return nil, record.DiscoveryError{Op: "Search", Err: fmt.Errorf("build query: %w", err)}
	}

	search := repo.cli.client.Search
	res, err := search(
		search.WithBody(query),
		search.WithIndex(recordsIndex),
		search.WithSize(maxResults),
		search.WithFrom(offset),
		search.WithIgnoreUnavailable(true),
		search.WithContext(ctx),
	)
	if err != nil {
		return nil, record.DiscoveryError{Op: "Search", Err: fmt.Errorf("execute search: %w", err)}
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, record.DiscoveryError{Op: "Search", Err: fmt.Errorf("execute search: %s", errorReasonFromResponse(res))}
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source recordDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, record.DiscoveryError{Op: "Search", Err: fmt.Errorf("decode search response: %w", err)}
	}

	results := make([]record.SearchResult, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		doc := hit.Source
		results = append(results, record.SearchResult{
			RecordID:      doc.RecordID,
			Title:         doc.Title,
			Description:   doc.Description,
			Organizations: doc.Organizations,
			Catalogs:      doc.Catalogs,
		})
	}
	return results, nil
}

// buildSearchQuery assembles a bool query: the text must match one of the
// indexed text fields, facet filters narrow with exact terms on keyword
// subfields.
func buildSearchQuery(cfg record.SearchConfig) (*bytes.Buffer, error) {
	must := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     cfg.Text,
				"fields":    []string{"title^5", "keywords^3", "description", "organizations"},
				"fuzziness": "AUTO",
			},
		},
	}

	var filters []interface{}
	for field, values := range cfg.Filters {
		if len(values) == 0 {
			continue
		}
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{
				field + ".keyword": values,
			},
		})
	}

	body := map[string]interface{}{
		"min_score": defaultMinScore,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filters,
			},
		},
	}

	payload := new(bytes.Buffer)
	if err := json.NewEncoder(payload).Encode(body); err != nil {
		return nil, err
	}
	return payload, nil
}
