// Package chromem adapts chromem-go, an embedded pure-Go vector database,
// to the engine's vector store contract.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/memory"
)

const collectionName = "conversation_chunks"

// Store keeps semantic chunks in a single chromem collection and drives
// embeddings through the configured embedder.
type Store struct {
	db       *chromem.DB
	embedder memory.Embedder

	mu  sync.Mutex
	col *chromem.Collection
}

// New creates an in-memory chromem store.
func New(embedder memory.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem store requires an embedder")
	}
	return &Store{db: chromem.NewDB(), embedder: embedder}, nil
}

// NewPersistent creates a chromem store that persists to dataDir.
func NewPersistent(dataDir string, embedder memory.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem store requires an embedder")
	}
	db, err := chromem.NewPersistentDB(dataDir, true)
	if err != nil {
		return nil, fmt.Errorf("open persistent db: %w", err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

func (s *Store) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col != nil {
		return s.col, nil
	}

	// GetOrCreate keeps the collection a persistent db loaded from disk;
	// CreateCollection would replace it with an empty one. Embeddings are
	// supplied explicitly on every call, so no embedding func of its own.
	col, err := s.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	s.col = col
	return col, nil
}

// Upsert stores documents with freshly computed embeddings.
func (s *Store) Upsert(ctx context.Context, ids []string, documents []string, metadatas []map[string]string) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert: mismatched lengths ids=%d documents=%d metadatas=%d",
			len(ids), len(documents), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}

	col, err := s.collection()
	if err != nil {
		return err
	}

	embeddings, err := memory.EmbedBatch(ctx, s.embedder, documents, memory.TaskDocument)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	for i := range ids {
		doc := chromem.Document{
			ID:        ids[i],
			Content:   documents[i],
			Embedding: embeddings[i],
			Metadata:  metadatas[i],
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document %s: %w", ids[i], err)
		}
	}

	log.Printf("[CHROMEM] Stored %d documents", len(ids))
	return nil
}

// Query embeds the query text and retrieves the nearest documents, with
// optional metadata equality filters.
func (s *Store) Query(ctx context.Context, query string, nResults int, where map[string]string) (core.QueryResponse, error) {
	col, err := s.collection()
	if err != nil {
		return core.QueryResponse{}, err
	}

	// chromem rejects nResults larger than the collection.
	if count := col.Count(); nResults > count {
		nResults = count
	}
	if nResults <= 0 {
		return core.QueryResponse{}, nil
	}

	embedding, err := s.embedder.Embed(ctx, query, memory.TaskQuery)
	if err != nil {
		return core.QueryResponse{}, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, nResults, where, nil)
	if err != nil {
		return core.QueryResponse{}, fmt.Errorf("chromem query: %w", err)
	}

	resp := core.QueryResponse{
		IDs:       make([]string, len(results)),
		Documents: make([]string, len(results)),
		Metadatas: make([]map[string]string, len(results)),
		Distances: make([]float64, len(results)),
	}
	for i, r := range results {
		resp.IDs[i] = r.ID
		resp.Documents[i] = r.Content
		resp.Metadatas[i] = r.Metadata
		// chromem reports cosine similarity; callers rank by distance.
		resp.Distances[i] = 1 - float64(r.Similarity)
	}
	return resp, nil
}

// Count reports how many documents the collection holds, including
// documents a persistent db loaded from disk.
func (s *Store) Count(context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close releases resources. chromem keeps everything in process memory,
// so there is nothing to flush.
func (s *Store) Close() error { return nil }
