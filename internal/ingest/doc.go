// Package ingest fills the candidate caches from received statuses.
//
// Each status contributes its author, the accounts it mentions and its
// hashtags. Hashtags come from the status itself when listed, otherwise they
// are parsed out of the text. Extraction runs on a bounded errgroup; writes go
// to storage in batched transactions, users upserted by id and hashtags added
// only when missing.
//
//	in := ingest.New(store)
//	stats, err := in.IngestStatuses(ctx, statuses, &ingest.Config{Workers: 4})
//	if errors.Is(err, ingest.ErrIngestInProgress) {
//	    // another run holds the lock
//	}
//
// Only one ingestion runs at a time per Ingester.
package ingest
