package search

import (
	"context"
	"fmt"
	"strings"
)

// Enricher prepends web search results to a user query so the model
// sees recent context it was not trained on. It satisfies the
// orchestrator's enrichment boundary.
type Enricher struct {
	mgr   *Manager
	limit int
}

// NewEnricher wraps a search manager. limit caps the number of results
// folded into the prompt; zero means 3.
func NewEnricher(mgr *Manager, limit int) *Enricher {
	if limit <= 0 {
		limit = 3
	}
	return &Enricher{mgr: mgr, limit: limit}
}

// Enrich searches for the query and returns the original text with the
// results prepended. An empty result set returns the text unchanged.
func (e *Enricher) Enrich(ctx context.Context, query string) (string, error) {
	if !e.mgr.Configured() {
		return query, nil
	}

	results, err := e.mgr.Search(ctx, query, Options{Count: e.limit})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return query, nil
	}

	var b strings.Builder
	b.WriteString("Context from a web search (may be relevant):\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, r.Title, r.Snippet)
	}
	b.WriteString("\nUser message: ")
	b.WriteString(query)
	return b.String(), nil
}
