// Package ingestion loads collector payload files and imports them into the
// catalog store.
//
// Games and reviews files are decoded concurrently on a worker pool and
// normalized into core records. The Importer then writes a batch in two
// phases: the lookup tables are populated first, and applications, reviews
// and their associations follow in a single transaction. Transient store
// failures retry both phases; constraint violations abort the batch.
package ingestion
