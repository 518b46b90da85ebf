// Package dedup decides whether a new chunk duplicates recently stored
// content. Only priority information types (price, warranty, device,
// service) are checked; generic conversation always stores as new. The
// engine errs toward preservation: any internal failure defaults to
// storing the chunk.
package dedup

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/searchctx"
)

// InfoType classifies what kind of information a chunk carries.
type InfoType string

const (
	InfoPrice        InfoType = "price"
	InfoWarranty     InfoType = "warranty"
	InfoDevice       InfoType = "device"
	InfoService      InfoType = "service"
	InfoConversation InfoType = "conversation"
)

// Action is the dedup decision for one chunk.
type Action string

const (
	// ActionSkip drops the chunk as an exact duplicate.
	ActionSkip Action = "skip"

	// ActionVariant stores the chunk linked to the original it resembles.
	ActionVariant Action = "store_variant"

	// ActionNew stores the chunk as fresh content.
	ActionNew Action = "store_new"
)

// Decision is the outcome of checking one chunk.
type Decision struct {
	Action     Action
	InfoType   InfoType
	OriginalID string
	Similarity float64
}

// Tiered decision thresholds, conservative on purpose.
const (
	skipThreshold    = 0.98
	variantThreshold = 0.92
)

// typeRule tunes per-type weighting and the entry bar below which a pair is
// not even considered a duplication candidate.
type typeRule struct {
	textWeight    float64
	metaWeight    float64
	contextWeight float64
	minCheck      float64
}

var typeRules = map[InfoType]typeRule{
	// Price information is the most dangerous to drop: only exact repeats
	// are actionable, so the entry bar equals the skip threshold.
	InfoPrice:    {textWeight: 0.4, metaWeight: 0.4, contextWeight: 0.2, minCheck: 0.98},
	InfoWarranty: {textWeight: 0.4, metaWeight: 0.3, contextWeight: 0.3, minCheck: 0.92},
	InfoDevice:   {textWeight: 0.5, metaWeight: 0.4, contextWeight: 0.1, minCheck: 0.92},
	InfoService:  {textWeight: 0.5, metaWeight: 0.3, contextWeight: 0.2, minCheck: 0.92},
}

// recentPerClient bounds how many stored chunks per client stay available as
// duplication candidates.
const recentPerClient = 30

// Engine checks new chunks against each client's recently stored chunks.
type Engine struct {
	mu     sync.Mutex
	recent map[string][]core.SemanticChunk

	simCache *ristretto.Cache
}

// NewEngine creates a deduplication engine with a bounded similarity cache.
func NewEngine() (*Engine, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     5_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create similarity cache: %w", err)
	}
	return &Engine{
		recent:   make(map[string][]core.SemanticChunk),
		simCache: cache,
	}, nil
}

// Check decides the fate of a chunk and, for variants and uniques, mutates
// its metadata with the linkage flags. Never fails: internal errors log and
// default to storing as new.
func (e *Engine) Check(chunk *core.SemanticChunk) Decision {
	decision := e.check(chunk)
	switch decision.Action {
	case ActionVariant:
		chunk.Metadata.IsVariant = true
		chunk.Metadata.OriginalID = decision.OriginalID
		chunk.Metadata.Similarity = decision.Similarity
	case ActionNew:
		chunk.Metadata.IsUnique = true
	}
	return decision
}

func (e *Engine) check(chunk *core.SemanticChunk) (decision Decision) {
	infoType := Classify(*chunk)
	decision = Decision{Action: ActionNew, InfoType: infoType}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DEDUP] internal error, storing as new: %v", r)
			decision = Decision{Action: ActionNew, InfoType: infoType}
		}
	}()

	if infoType == InfoConversation {
		return decision
	}

	candidates := e.candidates(chunk.Metadata.ClientID)
	var bestSim float64
	var bestID string
	for _, cand := range candidates {
		sim := e.cachedSimilarity(*chunk, cand, infoType)
		if sim > bestSim {
			bestSim = sim
			bestID = cand.ID
		}
	}

	action := Resolve(bestSim, infoType)
	if action == ActionNew {
		return decision
	}
	return Decision{Action: action, InfoType: infoType, OriginalID: bestID, Similarity: bestSim}
}

// Resolve maps a similarity score to a decision under the tiered thresholds.
// The type's entry bar can raise the floor below which pairs are ignored.
func Resolve(similarity float64, t InfoType) Action {
	rule, ok := typeRules[t]
	if !ok {
		return ActionNew
	}
	if similarity < rule.minCheck {
		return ActionNew
	}
	if similarity >= skipThreshold {
		return ActionSkip
	}
	if similarity >= variantThreshold {
		return ActionVariant
	}
	return ActionNew
}

// Observe registers a chunk that was actually stored so later chunks can be
// checked against it.
func (e *Engine) Observe(chunk core.SemanticChunk) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := append(e.recent[chunk.Metadata.ClientID], chunk)
	if len(ring) > recentPerClient {
		ring = ring[len(ring)-recentPerClient:]
	}
	e.recent[chunk.Metadata.ClientID] = ring
}

func (e *Engine) candidates(clientID string) []core.SemanticChunk {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := e.recent[clientID]
	out := make([]core.SemanticChunk, len(ring))
	copy(out, ring)
	return out
}

// Classify determines a chunk's information type from its metadata and text.
func Classify(chunk core.SemanticChunk) InfoType {
	text := chunk.Text
	meta := chunk.Metadata

	switch {
	case meta.Price != "" || searchctx.ContainsAny(text, searchctx.PriceKeywords):
		return InfoPrice
	case searchctx.ContainsAny(text, searchctx.WarrantyKeywords):
		return InfoWarranty
	case meta.Device != "" || len(searchctx.DistinctBrands(text)) > 0:
		return InfoDevice
	case meta.Service != "" || searchctx.ContainsAny(text, searchctx.ServiceKeywords):
		return InfoService
	default:
		return InfoConversation
	}
}

// cachedSimilarity memoizes pair similarity within a session. The cache is
// lossy; a miss only costs recomputation.
func (e *Engine) cachedSimilarity(a, b core.SemanticChunk, t InfoType) float64 {
	key := pairKey(a.ID, b.ID, t)
	if v, ok := e.simCache.Get(key); ok {
		if sim, ok := v.(float64); ok {
			return sim
		}
	}
	sim := Similarity(a, b, t)
	e.simCache.Set(key, sim, 1)
	return sim
}

// Similarity computes the weighted combination of text, metadata and domain
// context similarity for an information type.
func Similarity(a, b core.SemanticChunk, t InfoType) float64 {
	rule, ok := typeRules[t]
	if !ok {
		return 0
	}
	return rule.textWeight*textSimilarity(a.Text, b.Text) +
		rule.metaWeight*metadataSimilarity(a.Metadata, b.Metadata, t) +
		rule.contextWeight*contextSimilarity(a.Text, b.Text)
}

// textSimilarity is token-set Jaccard over lowercased words.
func textSimilarity(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// metadataSimilarity is type-specific: what counts as "the same information"
// differs between a price quote and a warranty exchange.
func metadataSimilarity(a, b core.ChunkMetadata, t InfoType) float64 {
	switch t {
	case InfoPrice:
		var score float64
		if eqFold(a.Device, b.Device) {
			score += 0.5
		}
		pa, okA := (core.Extracted{Price: a.Price}).PriceValue()
		pb, okB := (core.Extracted{Price: b.Price}).PriceValue()
		if okA && okB {
			diff := pa - pb
			if diff < 0 {
				diff = -diff
			}
			if diff < 100 {
				score += 0.5 * (1 - diff/100)
			}
		}
		return score
	case InfoWarranty:
		var score float64
		if eqFold(a.MainIntent, b.MainIntent) {
			score += 0.5
		}
		if eqFold(a.Device, b.Device) {
			score += 0.5
		}
		return score
	case InfoDevice:
		return 0.7*textSimilarity(a.Device, b.Device) + 0.3*boolScore(eqFold(a.Service, b.Service))
	case InfoService:
		return 0.6*boolScore(eqFold(a.Service, b.Service)) + 0.4*boolScore(eqFold(a.MainIntent, b.MainIntent))
	default:
		return 0
	}
}

// contextSimilarity checks whether both texts agree on the presence or
// absence of the time and warranty keyword groups.
func contextSimilarity(a, b string) float64 {
	var score float64
	if searchctx.ContainsAny(a, searchctx.TimeKeywords) == searchctx.ContainsAny(b, searchctx.TimeKeywords) {
		score += 0.5
	}
	if searchctx.ContainsAny(a, searchctx.WarrantyKeywords) == searchctx.ContainsAny(b, searchctx.WarrantyKeywords) {
		score += 0.5
	}
	return score
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && !(r >= 'á' && r <= 'ú')
	}) {
		if len(tok) > 1 {
			set[tok] = true
		}
	}
	return set
}

func pairKey(a, b string, t InfoType) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1] + "|" + string(t)
}

func eqFold(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
