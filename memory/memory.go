package memory

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dialogkit/convmem/core"
)

// VectorStore is the similarity storage backend.
// Implementations: chromem subpackage (embedded, local), mock subpackage
// (scripted, for tests).
type VectorStore interface {
	// Upsert stores documents with their metadata. The three slices are
	// parallel and must have equal length.
	Upsert(ctx context.Context, ids []string, documents []string, metadatas []map[string]string) error

	// Query retrieves up to nResults documents by similarity to the query
	// text, restricted by metadata equality filters.
	Query(ctx context.Context, query string, nResults int, where map[string]string) (core.QueryResponse, error)

	// Count returns the total number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// TaskType tells the embedder what the text will be used for; some models
// produce asymmetric embeddings for documents versus queries.
type TaskType string

const (
	TaskDocument       TaskType = "document"
	TaskQuery          TaskType = "query"
	TaskClassification TaskType = "classification"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// EmbedBatch embeds multiple texts concurrently with bounded parallelism.
// Returns nil for empty input.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, text, task)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BackupLogger is the best-effort relational log. Errors from it are logged
// and swallowed by the engine; it must never veto a store.
type BackupLogger interface {
	LogInteraction(ctx context.Context, turn core.ConversationTurn, tone string, satisfaction float64) error
}
