// Package stabilize makes an approximate similarity search reproducible: it
// issues several parallel queries, merges them by consensus, and caches the
// merged result so identical queries within TTL get identical answers.
package stabilize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dialogkit/convmem/cache"
	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/enrich"
	"github.com/dialogkit/convmem/searchctx"
)

// ErrAllAttemptsFailed reports that every consensus attempt and the direct
// fallback query failed.
var ErrAllAttemptsFailed = errors.New("all search attempts failed")

// Querier is the slice of the vector store the stabilizer needs.
type Querier interface {
	Query(ctx context.Context, query string, nResults int, where map[string]string) (core.QueryResponse, error)
}

// DefaultAttemptTimeout bounds each individual consensus attempt so one slow
// query cannot stall the whole search.
const DefaultAttemptTimeout = 800 * time.Millisecond

// Stabilizer runs consensus searches over a vector store.
type Stabilizer struct {
	store          Querier
	enricher       *enrich.Enricher
	results        *cache.Cache
	attemptTimeout time.Duration
}

// Option configures the stabilizer.
type Option func(*Stabilizer)

// WithEnricher attaches domain-fact enrichment for contexts that require it.
func WithEnricher(e *enrich.Enricher) Option {
	return func(s *Stabilizer) { s.enricher = e }
}

// WithAttemptTimeout overrides the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Stabilizer) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithCacheCapacity sizes the stabilized-result cache.
func WithCacheCapacity(n int) Option {
	return func(s *Stabilizer) { s.results = cache.New(n) }
}

// NewStabilizer creates a stabilizer over the given store.
func NewStabilizer(store Querier, opts ...Option) *Stabilizer {
	s := &Stabilizer{
		store:          store,
		results:        cache.New(512),
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns a stabilized result for the query. The second return is
// true when the result came from cache. target is the desired result count;
// maxFetch widens the per-attempt over-fetch so consensus filtering has room
// to drop unstable documents, and is raised to twice the target when smaller.
func (s *Stabilizer) Search(ctx context.Context, query string, filters core.SearchFilters, target, maxFetch int, sctx searchctx.Context) (core.StabilizedResult, bool, error) {
	if target <= 0 {
		target = 10
	}
	if maxFetch < target*2 {
		maxFetch = target * 2
	}
	policy := searchctx.PolicyFor(sctx)
	key := CacheKey(query, filters, sctx)

	if v, ok := s.results.Get(key); ok {
		if res, ok := v.(core.StabilizedResult); ok {
			return res, true, nil
		}
	}

	res, err := s.consensusSearch(ctx, query, filters, target, maxFetch, policy)
	if err != nil {
		log.Printf("[STABILIZE] consensus failed (%v), falling back to direct query", err)
		direct, derr := s.directSearch(ctx, query, filters, target)
		if derr != nil {
			return core.StabilizedResult{}, false, fmt.Errorf("%w: %v", ErrAllAttemptsFailed, derr)
		}
		// Degraded results stay uncached so a recovered backend can serve
		// consensus again on the next identical query.
		return direct, false, nil
	}

	if policy.RequiresEnrichment && s.enricher != nil {
		s.enricher.Enrich(query, &res)
	}

	s.results.Set(key, res, policy.CacheTTL)
	return res, false, nil
}

// consensusSearch fans out the policy's attempt count in parallel, each with
// its own deadline, and merges whatever succeeded. Partial failure is fine;
// total failure is an error.
func (s *Stabilizer) consensusSearch(ctx context.Context, query string, filters core.SearchFilters, target, maxFetch int, policy searchctx.Policy) (core.StabilizedResult, error) {
	attempts := policy.SearchAttempts
	if attempts < 1 {
		attempts = 3
	}
	where := filters.WhereClause()
	perAttempt := maxFetch

	var mu sync.Mutex
	var responses []core.QueryResponse

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, s.attemptTimeout)
			defer cancel()

			resp, err := s.store.Query(actx, query, perAttempt, where)
			if err != nil {
				log.Printf("[STABILIZE] attempt failed: %v", err)
				return nil // tolerated; consensus works on the survivors
			}
			mu.Lock()
			responses = append(responses, resp)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.StabilizedResult{}, err
	}

	if len(responses) == 0 {
		return core.StabilizedResult{}, fmt.Errorf("no successful attempts out of %d", attempts)
	}

	// Stability is measured against the attempts that actually answered;
	// failed attempts reduce confidence via the log, not the scores.
	res := Consensus(responses, len(responses), target, policy)
	log.Printf("[STABILIZE] consensus kept %d docs from %d/%d attempts (quality %.2f)",
		res.Len(), len(responses), attempts, res.ConsensusQuality)
	return res, nil
}

// directSearch is the unstabilized last resort: one query, no consensus.
func (s *Stabilizer) directSearch(ctx context.Context, query string, filters core.SearchFilters, target int) (core.StabilizedResult, error) {
	resp, err := s.store.Query(ctx, query, target, filters.WhereClause())
	if err != nil {
		return core.StabilizedResult{}, err
	}

	res := core.StabilizedResult{
		IDs:       resp.IDs,
		Documents: resp.Documents,
		Metadatas: resp.Metadatas,
		Distances: resp.Distances,
	}
	res.StabilityScores = make([]float64, resp.Len())
	for i := range res.StabilityScores {
		res.StabilityScores[i] = 1
	}
	return res, nil
}

// docStats accumulates one document's appearances across attempts.
type docStats struct {
	id       string
	document string
	metadata map[string]string
	count    int
	sumDist  float64
}

// Consensus merges attempt responses into one reproducible ranking. The
// merge is frequency and average based, so attempt ordering cannot change
// the outcome; ties break by stability then id.
func Consensus(responses []core.QueryResponse, attempts, target int, policy searchctx.Policy) core.StabilizedResult {
	stats := make(map[string]*docStats)
	for _, resp := range responses {
		for i := 0; i < resp.Len(); i++ {
			id := resp.IDs[i]
			st, ok := stats[id]
			if !ok {
				st = &docStats{id: id, document: resp.Documents[i]}
				if i < len(resp.Metadatas) {
					st.metadata = resp.Metadatas[i]
				}
				stats[id] = st
			}
			st.count++
			if i < len(resp.Distances) {
				st.sumDist += resp.Distances[i]
			}
		}
	}

	w := policy.RelevanceWeight
	minStability := policy.StabilityThreshold * 0.8

	type scored struct {
		st        *docStats
		stability float64
		combined  float64
		avgDist   float64
	}
	var kept []scored
	for _, st := range stats {
		stability := float64(st.count) / float64(attempts)
		if stability < minStability {
			continue
		}
		avgDist := st.sumDist / float64(st.count)
		relevance := 1 - avgDist
		combined := stability*(1-w) + relevance*w
		kept = append(kept, scored{st: st, stability: stability, combined: combined, avgDist: avgDist})
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].combined != kept[j].combined {
			return kept[i].combined > kept[j].combined
		}
		if kept[i].stability != kept[j].stability {
			return kept[i].stability > kept[j].stability
		}
		return kept[i].st.id < kept[j].st.id
	})
	if len(kept) > target {
		kept = kept[:target]
	}

	res := core.StabilizedResult{
		IDs:             make([]string, len(kept)),
		Documents:       make([]string, len(kept)),
		Metadatas:       make([]map[string]string, len(kept)),
		Distances:       make([]float64, len(kept)),
		StabilityScores: make([]float64, len(kept)),
	}
	var qualitySum float64
	for i, k := range kept {
		res.IDs[i] = k.st.id
		res.Documents[i] = k.st.document
		res.Metadatas[i] = k.st.metadata
		res.Distances[i] = k.avgDist
		res.StabilityScores[i] = k.stability
		qualitySum += k.stability
	}
	if len(kept) > 0 {
		res.ConsensusQuality = qualitySum / float64(len(kept))
	}
	return res
}

// CacheKey builds the normalized determinism key: lowercased,
// whitespace-collapsed query plus canonically sorted filters plus context.
func CacheKey(query string, filters core.SearchFilters, sctx searchctx.Context) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return "search|" + normalized + "|" + strings.Join(filters.CanonicalPairs(), "&") + "|" + string(sctx)
}
