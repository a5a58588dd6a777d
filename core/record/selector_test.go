package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestRevisionRef(t *testing.T) {
	t.Run("should pick the first catalog copy when copies exist", func(t *testing.T) {
		copies := []record.CatalogRecord{
			{RecordID: "fr-123", RecordHash: "newest", RevisionDate: time.Now()},
			{RecordID: "fr-123", RecordHash: "older"},
		}

		recordID, recordHash := record.BestRevisionRef(copies, record.Record{RecordID: "fr-123", RecordHash: "stored"})
		assert.Equal(t, "fr-123", recordID)
		assert.Equal(t, "newest", recordHash)
	})

	t.Run("should fall back to the stored hash without copies", func(t *testing.T) {
		recordID, recordHash := record.BestRevisionRef(nil, record.Record{RecordID: "fr-123", RecordHash: "stored"})
		assert.Equal(t, "fr-123", recordID)
		assert.Equal(t, "stored", recordHash)
	})
}

func TestSelectBestRevision(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail with not found when no hash can be derived", func(t *testing.T) {
		_, err := record.SelectBestRevision(ctx, &fakeRevisionRepo{}, nil, record.Record{RecordID: "fr-123"})
		assert.ErrorAs(t, err, &record.NotFoundError{})
	})

	t.Run("should load the revision behind the best reference", func(t *testing.T) {
		repo := &fakeRevisionRepo{
			GetFunc: func(ctx context.Context, recordID, recordHash string) (record.Revision, error) {
				assert.Equal(t, "fr-123", recordID)
				assert.Equal(t, "abc", recordHash)
				return record.Revision{RecordID: recordID, RecordHash: recordHash}, nil
			},
		}

		copies := []record.CatalogRecord{{RecordID: "fr-123", RecordHash: "abc"}}
		rev, err := record.SelectBestRevision(ctx, repo, copies, record.Record{})
		require.NoError(t, err)
		assert.Equal(t, "abc", rev.RecordHash)
	})

	t.Run("should surface a purged revision", func(t *testing.T) {
		repo := &fakeRevisionRepo{
			GetFunc: func(ctx context.Context, recordID, recordHash string) (record.Revision, error) {
				return record.Revision{}, record.NotFoundError{RecordID: recordID, RecordHash: recordHash}
			},
		}

		copies := []record.CatalogRecord{{RecordID: "fr-123", RecordHash: "gone"}}
		_, err := record.SelectBestRevision(ctx, repo, copies, record.Record{})
		assert.ErrorAs(t, err, &record.NotFoundError{})
	})
}
