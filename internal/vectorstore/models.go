package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

// QueryResult is a single match returned by Search.
type QueryResult struct {
	// ID is the document identifier
	ID string

	// Content is the document text. Empty when the search withheld content.
	Content string

	// Metadata contains the sanitized document metadata
	Metadata map[string]interface{}

	// Score is the normalized relevance (higher = more similar).
	// NaN means the backend reported no score.
	Score float32
}

// HasScore reports whether the backend produced a score for this result.
func (r QueryResult) HasScore() bool {
	return !math.IsNaN(float64(r.Score))
}

// QueryResults holds the outcome of one query text.
//
// Err is nil for a successful query, including one with zero matches. When
// Err is set, Results is nil and Err wraps ErrReadDegraded.
type QueryResults struct {
	Results []QueryResult
	Err     error
}

// SearchOption customizes a Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	withContent bool
}

// WithoutContent omits document text from search results.
func WithoutContent() SearchOption {
	return func(o *searchOptions) {
		o.withContent = false
	}
}

func newSearchOptions(opts []SearchOption) searchOptions {
	o := searchOptions{withContent: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// degraded builds a QueryResults for a failed query.
func degraded(cause error) QueryResults {
	return QueryResults{Err: fmt.Errorf("%w: %w", ErrReadDegraded, cause)}
}

// degradeAll returns one failed QueryResults per query text.
func degradeAll(n int, cause error) []QueryResults {
	out := make([]QueryResults, n)
	for i := range out {
		out[i] = degraded(cause)
	}
	return out
}

// sortByScore orders results best first. Missing scores sort last.
func sortByScore(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.HasScore() {
			return false
		}
		if !b.HasScore() {
			return true
		}
		return a.Score > b.Score
	})
}
