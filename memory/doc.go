// Package memory composes the conversational memory engine: chunking,
// deduplication, deterministic stabilized retrieval, enrichment and client
// history aggregation behind one facade.
//
// Architecture:
//   - VectorStore: similarity storage backend (chromem-go locally, anything
//     speaking upsert/query in production)
//   - Embedder: text-to-vector conversion (deterministic hash embedder for
//     development and tests, ONNX MiniLM behind the onnx build tag)
//   - Engine: the facade the rest of the application talks to
//
// Write path: turn -> buffer -> flow detection -> chunking -> deduplication
// -> vector store (+ best-effort backup log).
//
// Read path: query -> context detection -> limit optimization -> stabilized
// consensus search -> enrichment -> formatted memories.
//
// Every public Engine operation degrades instead of failing: a broken
// enhancement layer costs quality, never availability.
package memory
