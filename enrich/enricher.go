package enrich

import (
	"fmt"
	"strings"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/searchctx"
)

// Summary is the global enrichment attached to a whole result set.
type Summary struct {
	Notes        []string     `json:"notes,omitempty"`
	Brands       []string     `json:"brands,omitempty"`
	CatalogStats CatalogStats `json:"catalog_stats"`
}

// Enricher merges curated domain facts into result metadata based on what
// the query asks about.
type Enricher struct {
	source *Source
}

// NewEnricher creates an enricher over a fact source.
func NewEnricher(source *Source) *Enricher {
	return &Enricher{source: source}
}

// need maps a keyword group to the metadata key and fact it provides.
type need struct {
	group []string
	key   string
	fact  func(Facts) string
}

var needs = []need{
	{searchctx.TimeKeywords, "enrich_repair_time", func(f Facts) string { return f.RepairTime }},
	{searchctx.WarrantyKeywords, "enrich_warranty", func(f Facts) string { return f.WarrantyTerms }},
	{searchctx.ScheduleKeywords, "enrich_hours", func(f Facts) string { return f.Hours }},
	{searchctx.PriceKeywords, "enrich_price_validity", func(f Facts) string { return f.PriceValidity }},
}

// Summarize computes the global enrichment for a query without touching any
// result rows.
func (e *Enricher) Summarize(query string) Summary {
	summary, _ := e.compute(query)
	return summary
}

// Enrich attaches the fact bundles the query calls for to every result row
// and returns the global summary. Result rows usually alias metadata maps
// owned by the store or by previously cached results, so enrichment never
// writes into an existing map: each enriched row gets its own merged copy.
func (e *Enricher) Enrich(query string, result *core.StabilizedResult) Summary {
	summary, attach := e.compute(query)
	if len(attach) == 0 {
		return summary
	}

	for i := range result.Metadatas {
		merged := make(map[string]string, len(result.Metadatas[i])+len(attach))
		for k, v := range result.Metadatas[i] {
			merged[k] = v
		}
		for k, v := range attach {
			merged[k] = v
		}
		result.Metadatas[i] = merged
	}
	return summary
}

func (e *Enricher) compute(query string) (Summary, map[string]string) {
	facts := e.source.Snapshot()
	summary := Summary{CatalogStats: facts.Stats()}

	attach := make(map[string]string)
	for _, n := range needs {
		if searchctx.ContainsAny(query, n.group) {
			if v := n.fact(facts); v != "" {
				attach[n.key] = v
				summary.Notes = append(summary.Notes, v)
			}
		}
	}

	for _, brand := range searchctx.DistinctBrands(query) {
		info, ok := facts.Brands[brand]
		if !ok {
			continue
		}
		summary.Brands = append(summary.Brands, brand)
		attach["enrich_brand_"+brand] = fmt.Sprintf(
			"%s: modelos %s, servicios %s, precios %.0f-%.0f %s",
			brand,
			strings.Join(info.Models, ", "),
			strings.Join(info.ServiceTypes, ", "),
			info.PriceRange[0], info.PriceRange[1], facts.Currency,
		)
	}

	return summary, attach
}
