package core

import (
	"strconv"
	"strings"
	"time"
)

// Extracted holds the structured fields the upstream NLU pulled out of a
// dialogue exchange. All fields are optional; empty string means "not seen".
type Extracted struct {
	Device   string `json:"device,omitempty"`
	Service  string `json:"service,omitempty"`
	Price    string `json:"price,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// PriceValue parses the extracted price into a number.
// Accepts "1500", "$1,500", "1500.00 MXN" and similar shapes.
func (e Extracted) PriceValue() (float64, bool) {
	s := strings.TrimSpace(e.Price)
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ConversationTurn is one dialogue exchange: what the user said and what the
// bot answered, plus the NLU classification. Turns are immutable once created;
// only the chunks derived from them are persisted.
type ConversationTurn struct {
	ClientID  string    `json:"client_id"`
	UserText  string    `json:"user_text"`
	BotText   string    `json:"bot_text"`
	Intent    string    `json:"intent"`
	Extracted Extracted `json:"extracted"`
	Timestamp time.Time `json:"timestamp"`
}

// ChunkType tells how a chunk was built.
type ChunkType string

const (
	// ChunkSimple is a chunk built from a single turn, used when the
	// conversation buffer is still too short for windowing.
	ChunkSimple ChunkType = "simple"

	// ChunkWindowed is a chunk built from a sliding window over the buffer.
	ChunkWindowed ChunkType = "windowed"

	// ChunkFallback is the minimal chunk emitted when windowed construction
	// failed. Guarantees storage never fails outright.
	ChunkFallback ChunkType = "fallback"
)

// ChunkMetadata carries everything the retrieval side needs to filter and
// score a stored chunk.
type ChunkMetadata struct {
	ClientID        string    `json:"client_id"`
	MainIntent      string    `json:"main_intent"`
	Flow            string    `json:"flow"`
	ContinuityScore float64   `json:"continuity_score"`
	SemanticDensity float64   `json:"semantic_density"`
	Device          string    `json:"device_mentioned,omitempty"`
	Service         string    `json:"service_mentioned,omitempty"`
	Price           string    `json:"price_mentioned,omitempty"`
	UserName        string    `json:"user_name,omitempty"`
	Timestamp       time.Time `json:"timestamp"`

	// Provenance flags, set by the deduplication engine before persistence.
	IsVariant  bool    `json:"is_variant,omitempty"`
	IsUnique   bool    `json:"is_unique,omitempty"`
	OriginalID string  `json:"original_id,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Truncated  bool    `json:"truncated,omitempty"`
}

// SemanticChunk is the atom of retrieval: a context-annotated slice of
// conversation text plus its metadata. Mutated exactly once (by the
// deduplication engine) between creation and persistence.
type SemanticChunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Type      ChunkType     `json:"chunk_type"`
	Metadata  ChunkMetadata `json:"metadata"`
	Timestamp time.Time     `json:"timestamp"`
}

// SearchFilters narrows a memory query. Zero values mean "no filter".
type SearchFilters struct {
	ClientID string     `json:"client_id,omitempty"`
	Intent   string     `json:"intent,omitempty"`
	Device   string     `json:"device,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// HasClient reports whether the query is narrowed to one client.
func (f SearchFilters) HasClient() bool { return f.ClientID != "" }

// HasDateRange reports whether the query spans a historical date range.
func (f SearchFilters) HasDateRange() bool { return f.DateFrom != nil || f.DateTo != nil }

// CanonicalPairs returns the set filters as sorted key=value strings, used to
// build deterministic cache keys.
func (f SearchFilters) CanonicalPairs() []string {
	var pairs []string
	if f.ClientID != "" {
		pairs = append(pairs, "client_id="+f.ClientID)
	}
	if f.Device != "" {
		pairs = append(pairs, "device="+f.Device)
	}
	if f.DateFrom != nil {
		pairs = append(pairs, "date_from="+f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		pairs = append(pairs, "date_to="+f.DateTo.UTC().Format(time.RFC3339))
	}
	if f.Intent != "" {
		pairs = append(pairs, "intent="+f.Intent)
	}
	return pairs
}

// WhereClause converts the filters to the vector store's metadata filter map.
func (f SearchFilters) WhereClause() map[string]string {
	where := make(map[string]string)
	if f.ClientID != "" {
		where["client_id"] = f.ClientID
	}
	if f.Intent != "" {
		where["main_intent"] = f.Intent
	}
	if f.Device != "" {
		where["device_mentioned"] = f.Device
	}
	return where
}

// QueryResponse is the raw answer from one vector store query: parallel
// arrays, one row per result.
type QueryResponse struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float64
}

// Len returns the number of result rows.
func (r QueryResponse) Len() int { return len(r.IDs) }

// StabilizedResult is the reproducible, consensus-merged answer to one query.
// Identical cache keys within TTL always yield the same StabilizedResult.
type StabilizedResult struct {
	IDs              []string            `json:"ids"`
	Documents        []string            `json:"documents"`
	Metadatas        []map[string]string `json:"metadatas"`
	Distances        []float64           `json:"distances"`
	StabilityScores  []float64           `json:"stability_scores"`
	ConsensusQuality float64             `json:"consensus_quality"`
}

// Len returns the number of stabilized result rows.
func (r StabilizedResult) Len() int { return len(r.IDs) }
