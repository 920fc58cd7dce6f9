// Package rag is the retrieval-oriented façade over a vector store.
//
// A Storage owns one collection, named from a memory type and the agents
// sharing it, and hides document identity from callers: Save assigns a
// random UUID, Search filters by a minimum score and returns flat records.
//
//	s, err := rag.New(rag.Config{
//	    Type:   "short_term",
//	    Agents: []string{"researcher"},
//	    Store:  vectorstore.StoreConfig{Type: vectorstore.TypeEmbedded},
//	}, provider, logger)
//	if err != nil {
//	    return err
//	}
//	if err := s.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	records, err := s.Search(ctx, "feline", 3, rag.DefaultScoreThreshold, nil)
//	if errors.Is(err, vectorstore.ErrReadDegraded) {
//	    // backend failed; records is empty, not "no matches"
//	}
package rag
