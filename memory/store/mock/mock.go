// Package mock provides an in-memory vector store double for tests. It
// ranks by token overlap instead of embeddings, so results are fully
// deterministic and need no model.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dialogkit/convmem/core"
)

type document struct {
	id       string
	content  string
	metadata map[string]string
}

// Store is a deterministic VectorStore implementation. Error injection
// fields let tests exercise degraded paths.
type Store struct {
	mu   sync.Mutex
	docs []document

	// UpsertErr, when set, is returned from every Upsert call.
	UpsertErr error

	// QueryErr, when set, is returned from every Query call.
	QueryErr error

	// QueryCalls counts Query invocations, including failed ones.
	QueryCalls int
}

// New creates an empty mock store.
func New() *Store {
	return &Store{}
}

// Upsert stores or replaces documents by id.
func (s *Store) Upsert(_ context.Context, ids []string, documents []string, metadatas []map[string]string) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert: mismatched lengths")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ids {
		doc := document{id: ids[i], content: documents[i], metadata: metadatas[i]}
		replaced := false
		for j := range s.docs {
			if s.docs[j].id == doc.id {
				s.docs[j] = doc
				replaced = true
				break
			}
		}
		if !replaced {
			s.docs = append(s.docs, doc)
		}
	}
	return nil
}

// Query ranks stored documents by token overlap with the query, after
// applying metadata equality filters. Ties break by id for stable order.
func (s *Store) Query(_ context.Context, query string, nResults int, where map[string]string) (core.QueryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.QueryCalls++
	if s.QueryErr != nil {
		return core.QueryResponse{}, s.QueryErr
	}

	queryTokens := tokenSet(query)
	type scored struct {
		doc   document
		score float64
	}
	var matches []scored
	for _, d := range s.docs {
		if !matchesWhere(d.metadata, where) {
			continue
		}
		matches = append(matches, scored{doc: d, score: overlap(queryTokens, tokenSet(d.content))})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].doc.id < matches[j].doc.id
	})
	if nResults > 0 && len(matches) > nResults {
		matches = matches[:nResults]
	}

	resp := core.QueryResponse{}
	for _, m := range matches {
		resp.IDs = append(resp.IDs, m.doc.id)
		resp.Documents = append(resp.Documents, m.doc.content)
		resp.Metadatas = append(resp.Metadatas, m.doc.metadata)
		resp.Distances = append(resp.Distances, 1-m.score)
	}
	return resp, nil
}

// Count reports the number of stored documents.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func matchesWhere(metadata, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(t, ".,!?;:\"'¿¡")] = true
	}
	delete(set, "")
	return set
}

func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
