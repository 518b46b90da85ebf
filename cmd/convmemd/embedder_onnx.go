//go:build onnx

package main

import (
	"github.com/dialogkit/convmem/config"
	"github.com/dialogkit/convmem/memory"
	"github.com/dialogkit/convmem/memory/embedder/mock"
	"github.com/dialogkit/convmem/memory/embedder/onnx"
)

// newEmbedder prefers the ONNX model when configured and falls back to the
// deterministic hash embedder otherwise.
func newEmbedder(cfg config.Config) (memory.Embedder, error) {
	if cfg.EmbedderModelPath == "" {
		return mock.New(), nil
	}
	return onnx.New(onnx.Config{
		ModelPath:     cfg.EmbedderModelPath,
		TokenizerPath: cfg.EmbedderTokenizerPath,
	})
}
