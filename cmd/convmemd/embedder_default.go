//go:build !onnx

package main

import (
	"log"

	"github.com/dialogkit/convmem/config"
	"github.com/dialogkit/convmem/memory"
	mockembedder "github.com/dialogkit/convmem/memory/embedder/mock"
)

// newEmbedder returns the deterministic hash embedder. Build with the onnx
// tag for model-backed embeddings.
func newEmbedder(cfg config.Config) (memory.Embedder, error) {
	if cfg.EmbedderModelPath != "" {
		log.Printf("[MAIN] CONVMEM_ONNX_MODEL_PATH set but binary built without onnx tag, using mock embedder")
	}
	return mockembedder.New(), nil
}
