package history

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dialogkit/convmem/cache"
	"github.com/dialogkit/convmem/core"
)

// Searcher is the read path the aggregator queries. The memory facade
// implements it.
type Searcher interface {
	SearchRaw(ctx context.Context, query string, filters core.SearchFilters, limit int) (core.StabilizedResult, error)
}

// Options tunes one history lookup.
type Options struct {
	// Limit caps how many memories are aggregated. Zero means DefaultLimit.
	Limit int

	// Query overrides the generic retrieval query.
	Query string
}

// DefaultLimit bounds history aggregation when the caller does not say.
const DefaultLimit = 50

const defaultQuery = "historial de interacciones del cliente"

// Record is one memory row flattened for aggregation.
type Record struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	ClientID     string    `json:"client_id"`
	Intent       string    `json:"intent"`
	Device       string    `json:"device,omitempty"`
	Service      string    `json:"service,omitempty"`
	Price        string    `json:"price,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Confidence   float64   `json:"confidence"`
	Satisfaction float64   `json:"satisfaction,omitempty"`
}

// IntentGroup summarizes one intent bucket.
type IntentGroup struct {
	Intent        string    `json:"intent"`
	Count         int       `json:"count"`
	Share         float64   `json:"share"`
	MostRecent    time.Time `json:"most_recent"`
	AvgConfidence float64   `json:"avg_confidence"`
}

// Profile is the behavioral profile derived from a client's history.
type Profile struct {
	ClientID         string    `json:"client_id"`
	PreferredDevices []string  `json:"preferred_devices,omitempty"`
	CommonServices   []string  `json:"common_services,omitempty"`
	AvgPrice         float64   `json:"avg_price"`
	MinPrice         float64   `json:"min_price"`
	MaxPrice         float64   `json:"max_price"`
	PriceCount       int       `json:"price_count"`
	AvgMessageLength float64   `json:"avg_message_length"`
	ResponseTypes    []string  `json:"response_types,omitempty"`
	SatisfactionAvg  float64   `json:"satisfaction_avg"`
	LoyaltyScore     float64   `json:"loyalty_score"`
	InteractionCount int       `json:"interaction_count"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Confidence       float64   `json:"confidence"`
}

// Report is the full answer to one client-history lookup.
type Report struct {
	ClientID       string        `json:"client_id"`
	TriedIDs       []string      `json:"tried_ids"`
	SearchStrategy string        `json:"search_strategy"`
	Records        []Record      `json:"records"`
	Profile        *Profile      `json:"profile,omitempty"`
	IntentGroups   []IntentGroup `json:"intent_groups,omitempty"`
	HourBuckets    [24]int       `json:"hour_buckets"`
	WeekdayBuckets [7]int        `json:"weekday_buckets"`
}

// cacheTTL keeps repeated history lookups cheap; entries are also actively
// invalidated when the facade stores a new turn for the client.
const cacheTTL = 2 * time.Minute

// Aggregator builds client history reports and profiles.
type Aggregator struct {
	searcher   Searcher
	normalizer *Normalizer
	reports    *cache.Cache
}

// NewAggregator creates an aggregator over the engine's read path.
func NewAggregator(searcher Searcher, normalizer *Normalizer) *Aggregator {
	if normalizer == nil {
		normalizer = NewNormalizer("")
	}
	return &Aggregator{
		searcher:   searcher,
		normalizer: normalizer,
		reports:    cache.New(128),
	}
}

// Normalizer exposes the aggregator's identifier normalizer.
func (a *Aggregator) Normalizer() *Normalizer { return a.normalizer }

// InvalidateClient drops cached reports for a client, called after a new
// turn is stored for them.
func (a *Aggregator) InvalidateClient(clientID string) {
	a.reports.InvalidatePrefix(a.normalizer.Normalize(clientID) + "|")
}

// SearchHistory locates all memories for one client across identifier
// variations and aggregates them.
func (a *Aggregator) SearchHistory(ctx context.Context, clientIdentifier string, opts Options) (*Report, error) {
	clientID := a.normalizer.Normalize(clientIdentifier)
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	query := opts.Query
	if query == "" {
		query = defaultQuery
	}

	key := fmt.Sprintf("%s|%d|%s", clientID, opts.Limit, query)
	if v, ok := a.reports.Get(key); ok {
		if cached, ok := v.(*Report); ok {
			return cached, nil
		}
	}

	report := &Report{ClientID: clientID, SearchStrategy: "primary", TriedIDs: []string{clientID}}

	records, err := a.searchID(ctx, query, clientID, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("primary history search: %w", err)
	}

	if len(records) == 0 {
		report.SearchStrategy = "alternative"
		for _, alt := range a.normalizer.Alternates(clientID) {
			report.TriedIDs = append(report.TriedIDs, alt)
			altRecords, err := a.searchID(ctx, query, alt, opts.Limit)
			if err != nil {
				log.Printf("[HISTORY] alternate id %s failed: %v", alt, err)
				continue
			}
			if len(altRecords) > 0 {
				records = altRecords
				break
			}
		}
	}

	records = dedupeRecords(records)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	report.Records = records

	if len(records) > 0 {
		profile := ExtractProfile(clientID, records)
		report.Profile = &profile
		report.IntentGroups = groupByIntent(records)
		for _, r := range records {
			if !r.Timestamp.IsZero() {
				report.HourBuckets[r.Timestamp.Hour()]++
				report.WeekdayBuckets[int(r.Timestamp.Weekday())]++
			}
		}
	}

	a.reports.Set(key, report, cacheTTL)
	return report, nil
}

// GetProfile is the convenience path when only the profile matters.
func (a *Aggregator) GetProfile(ctx context.Context, clientIdentifier string) (*Profile, error) {
	report, err := a.SearchHistory(ctx, clientIdentifier, Options{})
	if err != nil {
		return nil, err
	}
	if report.Profile == nil {
		return &Profile{ClientID: report.ClientID}, nil
	}
	return report.Profile, nil
}

func (a *Aggregator) searchID(ctx context.Context, query, clientID string, limit int) ([]Record, error) {
	res, err := a.searcher.SearchRaw(ctx, query, core.SearchFilters{ClientID: clientID}, limit)
	if err != nil {
		return nil, err
	}
	return recordsFromResult(res), nil
}

// recordsFromResult flattens a stabilized result into aggregation records.
func recordsFromResult(res core.StabilizedResult) []Record {
	records := make([]Record, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		r := Record{ID: res.IDs[i], Text: res.Documents[i], Confidence: 0.5}
		if i < len(res.StabilityScores) {
			r.Confidence = res.StabilityScores[i]
		}
		if i < len(res.Metadatas) && res.Metadatas[i] != nil {
			meta := res.Metadatas[i]
			r.ClientID = meta["client_id"]
			r.Intent = meta["main_intent"]
			r.Device = meta["device_mentioned"]
			r.Service = meta["service_mentioned"]
			r.Price = meta["price_mentioned"]
			if ts, err := time.Parse(time.RFC3339, meta["timestamp"]); err == nil {
				r.Timestamp = ts
			}
			if v, err := strconv.ParseFloat(meta["satisfaction"], 64); err == nil {
				r.Satisfaction = v
			}
		}
		records = append(records, r)
	}
	return records
}

// dedupeRecords drops rows that repeat the same timestamp and text head,
// which happens when alternate identifier encodings hit the same chunks.
func dedupeRecords(records []Record) []Record {
	seen := make(map[string]bool)
	var out []Record
	for _, r := range records {
		head := r.Text
		if len(head) > 50 {
			head = head[:50]
		}
		key := r.Timestamp.UTC().Format(time.RFC3339) + "|" + head
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// ExtractProfile accumulates device, service, price, communication and
// loyalty signals from a timestamp-sorted record set.
func ExtractProfile(clientID string, records []Record) Profile {
	p := Profile{ClientID: clientID, InteractionCount: len(records)}
	if len(records) == 0 {
		return p
	}

	deviceCounts := make(map[string]int)
	serviceCounts := make(map[string]int)
	responseTypes := make(map[string]bool)
	var prices []float64
	var textChars int
	var satisfactionSum float64
	satisfactionCount := 0

	for _, r := range records {
		if d := strings.ToLower(strings.TrimSpace(r.Device)); d != "" {
			deviceCounts[d]++
		}
		if s := strings.ToLower(strings.TrimSpace(r.Service)); s != "" {
			serviceCounts[s]++
		}
		if r.Intent != "" {
			responseTypes[r.Intent] = true
		}
		if v, ok := (core.Extracted{Price: r.Price}).PriceValue(); ok {
			prices = append(prices, v)
		}
		textChars += len(r.Text)

		// Satisfaction arrives as optional metadata, absent on most chunks.
		if r.Satisfaction > 0 {
			satisfactionSum += r.Satisfaction
			satisfactionCount++
		}

		if p.FirstSeen.IsZero() || r.Timestamp.Before(p.FirstSeen) {
			p.FirstSeen = r.Timestamp
		}
		if r.Timestamp.After(p.LastSeen) {
			p.LastSeen = r.Timestamp
		}
	}

	p.PreferredDevices = topKeys(deviceCounts)
	p.CommonServices = topKeys(serviceCounts)
	for t := range responseTypes {
		p.ResponseTypes = append(p.ResponseTypes, t)
	}
	sort.Strings(p.ResponseTypes)

	if len(prices) > 0 {
		p.MinPrice, p.MaxPrice = prices[0], prices[0]
		var sum float64
		for _, v := range prices {
			sum += v
			if v < p.MinPrice {
				p.MinPrice = v
			}
			if v > p.MaxPrice {
				p.MaxPrice = v
			}
		}
		p.AvgPrice = sum / float64(len(prices))
		p.PriceCount = len(prices)
	}

	p.AvgMessageLength = float64(textChars) / float64(len(records))
	if satisfactionCount > 0 {
		p.SatisfactionAvg = satisfactionSum / float64(satisfactionCount)
	}

	span := p.LastSeen.Sub(p.FirstSeen)
	p.LoyaltyScore = math.Min(1, float64(len(records))/20)*0.6 +
		math.Min(1, span.Hours()/(24*180))*0.4

	confidence := float64(len(records)) * 0.05
	if len(deviceCounts) > 0 {
		confidence += 0.15
	}
	if len(prices) > 0 {
		confidence += 0.15
	}
	if len(serviceCounts) > 0 {
		confidence += 0.15
	}
	p.Confidence = math.Min(1, confidence)
	return p
}

// groupByIntent buckets records per detected intent.
func groupByIntent(records []Record) []IntentGroup {
	buckets := make(map[string]*IntentGroup)
	for _, r := range records {
		intent := r.Intent
		if intent == "" {
			intent = "sin_clasificar"
		}
		g, ok := buckets[intent]
		if !ok {
			g = &IntentGroup{Intent: intent}
			buckets[intent] = g
		}
		g.Count++
		g.AvgConfidence += r.Confidence
		if r.Timestamp.After(g.MostRecent) {
			g.MostRecent = r.Timestamp
		}
	}

	total := float64(len(records))
	groups := make([]IntentGroup, 0, len(buckets))
	for _, g := range buckets {
		g.Share = roundPct(float64(g.Count) / total * 100)
		g.AvgConfidence /= float64(g.Count)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Intent < groups[j].Intent
	})
	return groups
}

// topKeys returns map keys ordered by descending count, ties alphabetical.
func topKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func roundPct(v float64) float64 {
	return math.Round(v*10) / 10
}
