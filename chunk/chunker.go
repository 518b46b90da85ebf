// Package chunk converts conversation turns into overlapping,
// context-annotated semantic chunks ready for vector storage.
package chunk

import (
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/flow"
	"github.com/dialogkit/convmem/searchctx"
)

// WindowConfig controls sliding-window construction: how many turns a window
// spans and how many context turns adjacent windows share on each side.
type WindowConfig struct {
	Size    int
	Overlap int
}

// DefaultWindow is used for flows without a dedicated configuration.
var DefaultWindow = WindowConfig{Size: 3, Overlap: 1}

// windowByFlow tunes the window per detected conversational flow. Wider
// windows for flows where context carries pricing commitments.
var windowByFlow = map[string]WindowConfig{
	flow.PriceInquiry:       {Size: 3, Overlap: 1},
	flow.WarrantyClaim:      {Size: 4, Overlap: 1},
	flow.MultiDeviceFamily:  {Size: 5, Overlap: 2},
	flow.TimingConsultation: {Size: 3, Overlap: 1},
}

// contextNotes is the static factual text appended when a turn touches a
// known domain concern. This is curated copy, never generated.
var contextNotes = []struct {
	group []string
	note  string
}{
	{searchctx.TimeKeywords, "Los tiempos de reparación estándar son de 1 a 3 días hábiles; pantallas el mismo día si hay refacción."},
	{searchctx.WarrantyKeywords, "Toda reparación incluye 30 días de garantía sobre la refacción y la mano de obra."},
	{searchctx.PriceKeywords, "Los precios cotizados están en pesos mexicanos (MXN) y tienen vigencia de 7 días."},
}

// MaxChunkChars bounds chunk text length before truncation kicks in.
const MaxChunkChars = 1200

// Chunker builds semantic chunks from a client's conversation buffer.
type Chunker struct {
	buffer   *Buffer
	maxChars int
}

// NewChunker creates a chunker over the shared conversation buffer.
func NewChunker(buffer *Buffer) *Chunker {
	return &Chunker{buffer: buffer, maxChars: MaxChunkChars}
}

// Buffer exposes the underlying conversation buffer.
func (c *Chunker) Buffer() *Buffer { return c.buffer }

// Build produces the chunks for a new turn. The turn must already be in the
// client's buffer. Windowed construction that fails for any reason degrades
// to a single minimal fallback chunk so storage never fails outright.
func (c *Chunker) Build(clientID string, turn core.ConversationTurn, flowName string) []core.SemanticChunk {
	chunks, err := c.build(clientID, turn, flowName)
	if err != nil || len(chunks) == 0 {
		if err != nil {
			log.Printf("[CHUNK] windowed construction failed for client=%s: %v, using fallback", clientID, err)
		}
		return []core.SemanticChunk{c.Fallback(turn, flowName)}
	}
	return chunks
}

func (c *Chunker) build(clientID string, turn core.ConversationTurn, flowName string) (chunks []core.SemanticChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("chunk construction panic: %v", r)
		}
	}()

	cfg, ok := windowByFlow[flowName]
	if !ok {
		cfg = DefaultWindow
	}

	snap := c.buffer.Snapshot(clientID)
	if len(snap) < cfg.Size {
		return []core.SemanticChunk{c.simpleChunk(turn, flowName)}, nil
	}

	return c.windowedChunks(snap, cfg, flowName), nil
}

// windowedChunks slides a window across the buffer. Each window yields one
// chunk whose primary turn sits at the window's center; turns before it form
// the prior block and turns after it the following block, so adjacent chunks
// share their edge turns as overlap.
func (c *Chunker) windowedChunks(turns []core.ConversationTurn, cfg WindowConfig, flowName string) []core.SemanticChunk {
	step := cfg.Size - cfg.Overlap - 1
	if step < 1 {
		step = 1
	}

	var chunks []core.SemanticChunk
	for start := 0; start+cfg.Size <= len(turns); start += step {
		window := turns[start : start+cfg.Size]
		primary := (cfg.Size - 1) / 2

		text := c.windowText(window, primary)
		text, truncated := c.truncate(text)

		pt := window[primary]
		chunks = append(chunks, core.SemanticChunk{
			ID:        uuid.NewString(),
			Text:      text,
			Type:      core.ChunkWindowed,
			Timestamp: pt.Timestamp,
			Metadata: core.ChunkMetadata{
				ClientID:        pt.ClientID,
				MainIntent:      pt.Intent,
				Flow:            flowName,
				ContinuityScore: continuityScore(window),
				SemanticDensity: semanticDensity(window),
				Device:          pt.Extracted.Device,
				Service:         pt.Extracted.Service,
				Price:           pt.Extracted.Price,
				UserName:        pt.Extracted.UserName,
				Timestamp:       pt.Timestamp,
				Truncated:       truncated,
			},
		})
	}
	return chunks
}

// windowText renders the three labeled blocks plus optional context notes.
func (c *Chunker) windowText(window []core.ConversationTurn, primary int) string {
	var b strings.Builder

	if primary > 0 {
		b.WriteString("[CONTEXTO PREVIO]\n")
		for _, t := range window[:primary] {
			writeExchange(&b, t)
		}
	}

	b.WriteString("[TURNO PRINCIPAL]\n")
	writeExchange(&b, window[primary])

	if primary < len(window)-1 {
		b.WriteString("[CONTEXTO POSTERIOR]\n")
		for _, t := range window[primary+1:] {
			writeExchange(&b, t)
		}
	}

	appendContextNotes(&b, window[primary])
	return strings.TrimRight(b.String(), "\n")
}

// simpleChunk covers the case of a buffer still too short for windowing.
func (c *Chunker) simpleChunk(turn core.ConversationTurn, flowName string) core.SemanticChunk {
	var b strings.Builder
	b.WriteString("[TURNO PRINCIPAL]\n")
	writeExchange(&b, turn)
	appendContextNotes(&b, turn)

	text, truncated := c.truncate(strings.TrimRight(b.String(), "\n"))
	return core.SemanticChunk{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      core.ChunkSimple,
		Timestamp: turn.Timestamp,
		Metadata: core.ChunkMetadata{
			ClientID:        turn.ClientID,
			MainIntent:      turn.Intent,
			Flow:            flowName,
			ContinuityScore: 0.5,
			SemanticDensity: semanticDensity([]core.ConversationTurn{turn}),
			Device:          turn.Extracted.Device,
			Service:         turn.Extracted.Service,
			Price:           turn.Extracted.Price,
			UserName:        turn.Extracted.UserName,
			Timestamp:       turn.Timestamp,
			Truncated:       truncated,
		},
	}
}

// Fallback builds the minimal chunk used when everything else failed.
func (c *Chunker) Fallback(turn core.ConversationTurn, flowName string) core.SemanticChunk {
	text := fmt.Sprintf("cliente: %s\nbot: %s", turn.UserText, turn.BotText)
	text, truncated := c.truncate(text)
	return core.SemanticChunk{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      core.ChunkFallback,
		Timestamp: turn.Timestamp,
		Metadata: core.ChunkMetadata{
			ClientID:   turn.ClientID,
			MainIntent: turn.Intent,
			Flow:       flowName,
			Device:     turn.Extracted.Device,
			Service:    turn.Extracted.Service,
			Price:      turn.Extracted.Price,
			UserName:   turn.Extracted.UserName,
			Timestamp:  turn.Timestamp,
			Truncated:  truncated,
		},
	}
}

// truncate caps chunk text at maxChars, preferring to cut at a line boundary
// in the second half of the allowance. The cut never splits a rune, so
// accented Spanish text stays valid UTF-8.
func (c *Chunker) truncate(text string) (string, bool) {
	if len(text) <= c.maxChars {
		return text, false
	}
	end := c.maxChars
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndex(cut, "\n"); idx > c.maxChars/2 {
		cut = cut[:idx]
	}
	return cut, true
}

func writeExchange(b *strings.Builder, t core.ConversationTurn) {
	fmt.Fprintf(b, "cliente: %s\n", t.UserText)
	if t.BotText != "" {
		fmt.Fprintf(b, "bot: %s\n", t.BotText)
	}
}

func appendContextNotes(b *strings.Builder, t core.ConversationTurn) {
	combined := t.UserText + " " + t.BotText
	var notes []string
	for _, cn := range contextNotes {
		if searchctx.ContainsAny(combined, cn.group) {
			notes = append(notes, cn.note)
		}
	}
	if len(notes) == 0 {
		return
	}
	b.WriteString("[INFORMACION CONTEXTUAL]\n")
	for _, n := range notes {
		b.WriteString("- " + n + "\n")
	}
}

// continuityScore measures topical and temporal coherence across adjacent
// turns in the window: matching devices, services and intents plus time
// proximity, averaged over adjacent pairs.
func continuityScore(window []core.ConversationTurn) float64 {
	if len(window) < 2 {
		return 0.5
	}

	var total float64
	pairs := 0
	for i := 1; i < len(window); i++ {
		a, b := window[i-1], window[i]
		var score float64
		if eqNonEmpty(a.Extracted.Device, b.Extracted.Device) {
			score += 0.3
		}
		if eqNonEmpty(a.Extracted.Service, b.Extracted.Service) {
			score += 0.25
		}
		if eqNonEmpty(a.Intent, b.Intent) {
			score += 0.25
		}
		score += 0.2 * timeProximity(a.Timestamp, b.Timestamp)
		total += score
		pairs++
	}
	return total / float64(pairs)
}

// timeProximity maps the gap between two turns to [0,1], zeroing out past
// ten minutes.
func timeProximity(a, b time.Time) float64 {
	gap := b.Sub(a)
	if gap < 0 {
		gap = -gap
	}
	const horizon = 10 * time.Minute
	if gap >= horizon {
		return 0
	}
	return 1 - float64(gap)/float64(horizon)
}

// semanticDensity measures information richness: intent diversity, extracted
// field richness and message length, normalized and averaged into [0,1].
func semanticDensity(window []core.ConversationTurn) float64 {
	if len(window) == 0 {
		return 0
	}

	intents := make(map[string]bool)
	filled := 0
	var chars int
	for _, t := range window {
		if t.Intent != "" {
			intents[t.Intent] = true
		}
		if t.Extracted.Device != "" {
			filled++
		}
		if t.Extracted.Service != "" {
			filled++
		}
		if t.Extracted.Price != "" {
			filled++
		}
		chars += len(t.UserText) + len(t.BotText)
	}

	diversity := float64(len(intents)) / float64(len(window))
	if diversity > 1 {
		diversity = 1
	}
	richness := float64(filled) / float64(3*len(window))
	avgLen := float64(chars) / float64(len(window)) / 200.0
	if avgLen > 1 {
		avgLen = 1
	}
	return (diversity + richness + avgLen) / 3
}

func eqNonEmpty(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
