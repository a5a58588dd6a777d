package record

import "context"

// BestRevisionRef picks the authoritative (record ID, content hash) pair for
// a dataset: the first catalog copy wins, ordering being the repository's
// (revision date, then last-touched, both descending). Without any copy the
// consolidated record's stored hash is the fallback, which keeps
// consolidation self-healing when upstream catalogs temporarily disappear.
func BestRevisionRef(copies []CatalogRecord, rec Record) (recordID, recordHash string) {
	if len(copies) > 0 {
		return copies[0].RecordID, copies[0].RecordHash
	}
	return rec.RecordID, rec.RecordHash
}

// SelectBestRevision loads the authoritative revision content. It fails with
// NotFoundError if no hash can be derived or its content was purged.
func SelectBestRevision(ctx context.Context, revisions RevisionRepository, copies []CatalogRecord, rec Record) (Revision, error) {
	recordID, recordHash := BestRevisionRef(copies, rec)
	if recordHash == "" {
		return Revision{}, NotFoundError{RecordID: recordID}
	}

	rev, err := revisions.Get(ctx, recordID, recordHash)
	if err != nil {
		return Revision{}, err
	}
	return rev, nil
}
