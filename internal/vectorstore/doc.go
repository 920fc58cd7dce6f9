// Package vectorstore provides a backend-neutral vector storage layer.
//
// A Store is bound to one collection and offers four operations: Initialize,
// Add (upsert), Search and Reset. Three backends implement it:
//
//   - SQLiteStore ("embedded"): one pure-Go SQLite file per collection. The
//     store embeds documents and queries itself and ranks in process.
//   - ChromemStore ("collection"): a persistent chromem-go collection. The
//     engine embeds through an EmbeddingFunc wrapping the configured Embedder.
//   - QdrantStore ("qdrant"): an external Qdrant server over gRPC.
//
// NewStore maps a type tag to one of them; callers never branch on the tag.
//
// # Results and scores
//
// Search returns one QueryResults per query text. Results are ordered by
// descending Score, where scores are derived from the backend's native
// distance:
//
//	cosine, ip: 1 - d
//	l2:         1 / (1 + d)
//
// A missing score is NaN. A query that could not be served has a nil Results
// and an Err wrapping ErrReadDegraded; a query with no matches has an empty
// Results and a nil Err. Search itself never fails.
//
// # Metadata
//
// Metadata passes through sanitize.Metadata before it is written, so every
// stored value is a scalar. Filters are equality maps; a slice value matches
// any of its elements.
//
// # Usage
//
//	store, err := vectorstore.NewStore(vectorstore.StoreConfig{
//	    Type:           vectorstore.TypeEmbedded,
//	    CollectionName: "knowledge",
//	}, provider, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//	err = store.Add(ctx, []string{"cats purr"}, []map[string]interface{}{{"kind": "animal"}}, nil)
//
//	for _, qr := range store.Search(ctx, []string{"feline"}, 3, nil) {
//	    if qr.Err != nil {
//	        // degraded; qr.Results is nil
//	    }
//	}
package vectorstore
