package memory

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/dialogkit/convmem/chunk"
	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/dedup"
	"github.com/dialogkit/convmem/enrich"
	"github.com/dialogkit/convmem/flow"
	"github.com/dialogkit/convmem/history"
	"github.com/dialogkit/convmem/limits"
	"github.com/dialogkit/convmem/metrics"
	"github.com/dialogkit/convmem/searchctx"
	"github.com/dialogkit/convmem/stabilize"
)

// Memory is one formatted retrieval result.
type Memory struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Distance  float64           `json:"distance"`
	Stability float64           `json:"stability"`
}

// SearchMetadata describes how a result set was produced.
type SearchMetadata struct {
	Context          searchctx.Context `json:"context"`
	SearchStrategy   string            `json:"search_strategy"`
	Complexity       float64           `json:"complexity"`
	BaseLimit        int               `json:"base_limit"`
	MaxLimit         int               `json:"max_limit"`
	Cached           bool              `json:"cached"`
	ConsensusQuality float64           `json:"consensus_quality"`
	ExpectedTime     time.Duration     `json:"expected_time"`
	TotalFound       int               `json:"total_found"`
	Enrichment       enrich.Summary    `json:"enrichment"`
}

// SearchResponse is the facade's answer to a search. A failed search is an
// empty response with SearchStrategy "error_fallback", never an error: the
// conversational layer above can always proceed with "no memory found".
type SearchResponse struct {
	Memories []Memory       `json:"memories"`
	Metadata SearchMetadata `json:"metadata"`
}

// Engine is the memory facade. Construct once at process start and share;
// all methods are safe for concurrent use.
type Engine struct {
	store      VectorStore
	buffer     *chunk.Buffer
	chunker    *chunk.Chunker
	dedup      *dedup.Engine
	optimizer  *limits.Optimizer
	stabilizer *stabilize.Stabilizer
	enricher   *enrich.Enricher
	aggregator *history.Aggregator
	normalizer *history.Normalizer
	backup     BackupLogger
	metrics    *metrics.Metrics
}

// Option configures the engine.
type Option func(*options)

type options struct {
	backup         BackupLogger
	metrics        *metrics.Metrics
	facts          enrich.Facts
	countryPrefix  string
	timeBudget     time.Duration
	attemptTimeout time.Duration
	cacheSize      int
}

// WithBackupLog attaches the best-effort relational log.
func WithBackupLog(b BackupLogger) Option {
	return func(o *options) { o.backup = b }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithFacts seeds the enrichment fact snapshot.
func WithFacts(f enrich.Facts) Option {
	return func(o *options) { o.facts = f }
}

// WithCountryPrefix overrides the identifier normalization prefix.
func WithCountryPrefix(prefix string) Option {
	return func(o *options) { o.countryPrefix = prefix }
}

// WithTimeBudget sets the per-search latency budget for limit optimization.
func WithTimeBudget(d time.Duration) Option {
	return func(o *options) { o.timeBudget = d }
}

// WithAttemptTimeout sets the per-attempt deadline for consensus queries.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) { o.attemptTimeout = d }
}

// WithResultCacheSize sizes the stabilized-result cache.
func WithResultCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// NewEngine builds the full pipeline over a vector store.
func NewEngine(store VectorStore, opts ...Option) (*Engine, error) {
	o := &options{facts: enrich.DefaultFacts()}
	for _, opt := range opts {
		opt(o)
	}

	dedupEngine, err := dedup.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("create dedup engine: %w", err)
	}

	buffer := chunk.NewBuffer(chunk.DefaultBufferCapacity)
	enricher := enrich.NewEnricher(enrich.NewSource(o.facts))

	stabOpts := []stabilize.Option{stabilize.WithEnricher(enricher)}
	if o.attemptTimeout > 0 {
		stabOpts = append(stabOpts, stabilize.WithAttemptTimeout(o.attemptTimeout))
	}
	if o.cacheSize > 0 {
		stabOpts = append(stabOpts, stabilize.WithCacheCapacity(o.cacheSize))
	}

	e := &Engine{
		store:      store,
		buffer:     buffer,
		chunker:    chunk.NewChunker(buffer),
		dedup:      dedupEngine,
		optimizer:  limits.NewOptimizer(o.timeBudget),
		stabilizer: stabilize.NewStabilizer(store, stabOpts...),
		enricher:   enricher,
		normalizer: history.NewNormalizer(o.countryPrefix),
		backup:     o.backup,
		metrics:    o.metrics,
	}
	e.aggregator = history.NewAggregator(e, e.normalizer)
	return e, nil
}

// StoreTurn runs the write path for one dialogue exchange. It never fails
// on collaborator errors: the worst outcome is a degraded (fallback) chunk
// or a buffered-only turn. Returns false only for unusable input.
func (e *Engine) StoreTurn(ctx context.Context, turn core.ConversationTurn) bool {
	if turn.UserText == "" && turn.BotText == "" {
		return false
	}

	turn.ClientID = e.normalizer.Normalize(turn.ClientID)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	e.buffer.Append(turn.ClientID, turn)
	flowName := flow.Detect(e.buffer.Recent(turn.ClientID, 4))
	chunks := e.chunker.Build(turn.ClientID, turn, flowName)

	var stored []core.SemanticChunk
	for i := range chunks {
		decision := e.dedup.Check(&chunks[i])
		if e.metrics != nil {
			e.metrics.ChunkDecisions.WithLabelValues(string(decision.Action)).Inc()
		}
		if decision.Action == dedup.ActionSkip {
			log.Printf("[MEMORY] skipping duplicate chunk for client=%s (sim=%.3f)",
				turn.ClientID, decision.Similarity)
			continue
		}
		stored = append(stored, chunks[i])
	}

	if len(stored) > 0 {
		if err := e.upsertChunks(ctx, stored); err != nil {
			log.Printf("[MEMORY] chunk persistence failed: %v, trying fallback chunk", err)
			fb := e.chunker.Fallback(turn, flowName)
			if ferr := e.upsertChunks(ctx, []core.SemanticChunk{fb}); ferr != nil {
				log.Printf("[MEMORY] fallback persistence also failed: %v", ferr)
			} else {
				stored = []core.SemanticChunk{fb}
			}
		}
		for _, c := range stored {
			e.dedup.Observe(c)
		}
	}

	// Best effort; the relational log never vetoes a store.
	if e.backup != nil {
		if err := e.backup.LogInteraction(ctx, turn, toneOf(turn), 0); err != nil {
			log.Printf("[MEMORY] backup log failed: %v", err)
		}
	}

	// New content makes cached history reports stale for this client.
	e.aggregator.InvalidateClient(turn.ClientID)

	if e.metrics != nil {
		e.metrics.TurnsStored.Inc()
	}
	return true
}

// Search runs the full read path. Failures degrade to an empty result set
// with SearchStrategy "error_fallback"; this method does not return errors.
func (e *Engine) Search(ctx context.Context, query string, clientID string, filters core.SearchFilters) *SearchResponse {
	start := time.Now()
	if clientID != "" {
		filters.ClientID = e.normalizer.Normalize(clientID)
	}

	plan := e.optimizer.Optimize(query, filters, e.catalogSize(ctx))
	meta := SearchMetadata{
		Context:        plan.Context,
		SearchStrategy: plan.Strategy,
		Complexity:     plan.Complexity,
		BaseLimit:      plan.BaseLimit,
		MaxLimit:       plan.MaxLimit,
		ExpectedTime:   plan.ExpectedTime,
		Enrichment:     e.enricher.Summarize(query),
	}

	res, cached, err := e.stabilizer.Search(ctx, query, filters, plan.BaseLimit, plan.MaxLimit, plan.Context)
	if e.metrics != nil {
		e.metrics.ObserveSearchLatency(time.Since(start))
		cacheEvent := "miss"
		if cached {
			cacheEvent = "hit"
		}
		e.metrics.CacheEvents.WithLabelValues("search", cacheEvent).Inc()
	}
	if err != nil {
		log.Printf("[MEMORY] search failed, returning empty fallback: %v", err)
		meta.SearchStrategy = "error_fallback"
		e.countSearch(plan.Context, meta.SearchStrategy)
		return &SearchResponse{Memories: []Memory{}, Metadata: meta}
	}

	res = filterByDate(res, filters)
	meta.Cached = cached
	meta.ConsensusQuality = res.ConsensusQuality
	meta.TotalFound = res.Len()
	e.countSearch(plan.Context, meta.SearchStrategy)

	memories := make([]Memory, res.Len())
	for i := 0; i < res.Len(); i++ {
		memories[i] = Memory{
			ID:       res.IDs[i],
			Text:     res.Documents[i],
			Metadata: res.Metadatas[i],
			Distance: res.Distances[i],
		}
		if i < len(res.StabilityScores) {
			memories[i].Stability = res.StabilityScores[i]
		}
	}
	return &SearchResponse{Memories: memories, Metadata: meta}
}

// GetClientMemory returns a client's memories through the standard read path.
func (e *Engine) GetClientMemory(ctx context.Context, clientID string, limit int) *SearchResponse {
	resp := e.Search(ctx, "historial del cliente", clientID, core.SearchFilters{})
	if limit > 0 && len(resp.Memories) > limit {
		resp.Memories = resp.Memories[:limit]
	}
	return resp
}

// SearchClientHistory aggregates all memories for one client across
// identifier variations.
func (e *Engine) SearchClientHistory(ctx context.Context, clientIdentifier string, opts history.Options) (*history.Report, error) {
	return e.aggregator.SearchHistory(ctx, clientIdentifier, opts)
}

// GetClientProfile derives the behavioral profile for one client.
func (e *Engine) GetClientProfile(ctx context.Context, clientIdentifier string) (*history.Profile, error) {
	return e.aggregator.GetProfile(ctx, clientIdentifier)
}

// SearchRaw is the unformatted read path used by the history aggregator.
func (e *Engine) SearchRaw(ctx context.Context, query string, filters core.SearchFilters, limit int) (core.StabilizedResult, error) {
	sctx := searchctx.Detect(query)
	if limit <= 0 {
		limit = searchctx.PolicyFor(sctx).BaseLimit
	}
	res, _, err := e.stabilizer.Search(ctx, query, filters, limit, 0, sctx)
	if err != nil {
		return core.StabilizedResult{}, err
	}
	return filterByDate(res, filters), nil
}

// Buffer exposes the conversation buffer (read-mostly, for diagnostics).
func (e *Engine) Buffer() *chunk.Buffer { return e.buffer }

// Normalizer exposes identifier normalization for callers that must match
// the engine's canonical client ids.
func (e *Engine) Normalizer() *history.Normalizer { return e.normalizer }

func (e *Engine) countSearch(sctx searchctx.Context, strategy string) {
	if e.metrics != nil {
		e.metrics.SearchRequests.WithLabelValues(string(sctx), strategy).Inc()
	}
}

func (e *Engine) catalogSize(ctx context.Context) int {
	n, err := e.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// upsertChunks persists chunks as parallel id/document/metadata arrays.
func (e *Engine) upsertChunks(ctx context.Context, chunks []core.SemanticChunk) error {
	ids := make([]string, len(chunks))
	docs := make([]string, len(chunks))
	metas := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docs[i] = c.Text
		metas[i] = chunkMetadata(c)
	}
	return e.store.Upsert(ctx, ids, docs, metas)
}

// chunkMetadata flattens chunk metadata into the store's string map form.
func chunkMetadata(c core.SemanticChunk) map[string]string {
	m := map[string]string{
		"client_id":        c.Metadata.ClientID,
		"main_intent":      c.Metadata.MainIntent,
		"flow":             c.Metadata.Flow,
		"chunk_type":       string(c.Type),
		"timestamp":        c.Metadata.Timestamp.UTC().Format(time.RFC3339),
		"continuity_score": strconv.FormatFloat(c.Metadata.ContinuityScore, 'f', 3, 64),
		"semantic_density": strconv.FormatFloat(c.Metadata.SemanticDensity, 'f', 3, 64),
	}
	if c.Metadata.Device != "" {
		m["device_mentioned"] = c.Metadata.Device
	}
	if c.Metadata.Service != "" {
		m["service_mentioned"] = c.Metadata.Service
	}
	if c.Metadata.Price != "" {
		m["price_mentioned"] = c.Metadata.Price
	}
	if c.Metadata.UserName != "" {
		m["user_name"] = c.Metadata.UserName
	}
	if c.Metadata.IsVariant {
		m["is_variant"] = "true"
		m["original_id"] = c.Metadata.OriginalID
		m["similarity"] = strconv.FormatFloat(c.Metadata.Similarity, 'f', 3, 64)
	}
	if c.Metadata.IsUnique {
		m["is_unique"] = "true"
	}
	if c.Metadata.Truncated {
		m["truncated"] = "true"
	}
	return m
}

// filterByDate applies date-range filters the vector store cannot express.
func filterByDate(res core.StabilizedResult, filters core.SearchFilters) core.StabilizedResult {
	if !filters.HasDateRange() {
		return res
	}

	out := core.StabilizedResult{ConsensusQuality: res.ConsensusQuality}
	for i := 0; i < res.Len(); i++ {
		var ts time.Time
		if i < len(res.Metadatas) && res.Metadatas[i] != nil {
			ts, _ = time.Parse(time.RFC3339, res.Metadatas[i]["timestamp"])
		}
		if filters.DateFrom != nil && ts.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && ts.After(*filters.DateTo) {
			continue
		}
		out.IDs = append(out.IDs, res.IDs[i])
		out.Documents = append(out.Documents, res.Documents[i])
		out.Metadatas = append(out.Metadatas, res.Metadatas[i])
		out.Distances = append(out.Distances, res.Distances[i])
		if i < len(res.StabilityScores) {
			out.StabilityScores = append(out.StabilityScores, res.StabilityScores[i])
		}
	}
	return out
}

// toneOf is a coarse tone heuristic for the backup log.
func toneOf(turn core.ConversationTurn) string {
	if searchctx.ContainsAny(turn.UserText, []string{"molesto", "enojado", "pesimo", "pésimo", "queja", "terrible"}) {
		return "negativo"
	}
	if searchctx.ContainsAny(turn.UserText, []string{"gracias", "excelente", "perfecto", "genial"}) {
		return "positivo"
	}
	return "neutral"
}
