package enrich_test

import (
	"strings"
	"testing"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/enrich"
)

func newEnricher() *enrich.Enricher {
	return enrich.NewEnricher(enrich.NewSource(enrich.DefaultFacts()))
}

func resultWithRows(n int) *core.StabilizedResult {
	res := &core.StabilizedResult{}
	for i := 0; i < n; i++ {
		res.IDs = append(res.IDs, "id")
		res.Documents = append(res.Documents, "doc")
		res.Metadatas = append(res.Metadatas, map[string]string{})
		res.Distances = append(res.Distances, 0.1)
	}
	return res
}

func TestEnrich_WarrantyQueryAttachesTerms(t *testing.T) {
	e := newEnricher()
	res := resultWithRows(2)

	summary := e.Enrich("mi reparacion trae garantia?", res)

	for i, meta := range res.Metadatas {
		if meta["enrich_warranty"] == "" {
			t.Errorf("row %d missing warranty enrichment", i)
		}
	}
	if len(summary.Notes) == 0 {
		t.Error("summary has no notes for warranty query")
	}
}

func TestEnrich_BrandQueryAttachesCatalogLine(t *testing.T) {
	e := newEnricher()
	res := resultWithRows(1)

	summary := e.Enrich("cuanto cuesta la pantalla del iphone", res)

	line := res.Metadatas[0]["enrich_brand_iphone"]
	if line == "" {
		t.Fatal("missing brand enrichment")
	}
	if !strings.Contains(line, "MXN") {
		t.Errorf("brand line missing currency: %q", line)
	}
	if len(summary.Brands) != 1 || summary.Brands[0] != "iphone" {
		t.Errorf("summary brands = %v, want [iphone]", summary.Brands)
	}
	// Price phrasing also attaches validity terms.
	if res.Metadatas[0]["enrich_price_validity"] == "" {
		t.Error("price query missing validity enrichment")
	}
}

func TestEnrich_NeutralQueryLeavesRowsAlone(t *testing.T) {
	e := newEnricher()
	res := resultWithRows(1)

	e.Enrich("hola buen dia", res)

	if len(res.Metadatas[0]) != 0 {
		t.Errorf("neutral query attached metadata: %v", res.Metadatas[0])
	}
}

func TestEnrich_NilMetadataGetsCreated(t *testing.T) {
	e := newEnricher()
	res := resultWithRows(1)
	res.Metadatas[0] = nil

	e.Enrich("que garantia manejan", res)

	if res.Metadatas[0] == nil || res.Metadatas[0]["enrich_warranty"] == "" {
		t.Error("nil metadata row not enriched")
	}
}

func TestEnrich_LeavesSharedMapsUntouched(t *testing.T) {
	e := newEnricher()
	shared := map[string]string{"client_id": "c1"}
	res := &core.StabilizedResult{
		IDs:       []string{"a"},
		Documents: []string{"doc"},
		Metadatas: []map[string]string{shared},
		Distances: []float64{0.1},
	}

	e.Enrich("que garantia manejan", res)

	if res.Metadatas[0]["enrich_warranty"] == "" {
		t.Error("result row not enriched")
	}
	// The caller's map may belong to the store or to a cached result;
	// enrichment must write to a copy.
	if len(shared) != 1 || shared["client_id"] != "c1" {
		t.Errorf("input map mutated: %v", shared)
	}
}

func TestSummarize_DoesNotTouchRows(t *testing.T) {
	e := newEnricher()
	summary := e.Summarize("que garantia manejan")

	if len(summary.Notes) == 0 {
		t.Error("Summarize returned no notes for warranty query")
	}
	if summary.CatalogStats.BrandCount == 0 {
		t.Error("Summarize missing catalog stats")
	}
}

func TestFactsStats(t *testing.T) {
	stats := enrich.DefaultFacts().Stats()
	if stats.BrandCount != 4 {
		t.Errorf("BrandCount = %d, want 4", stats.BrandCount)
	}
	if stats.ModelCount == 0 {
		t.Error("ModelCount = 0")
	}
	if stats.PriceMin != 400 || stats.PriceMax != 4500 {
		t.Errorf("price range = %f-%f, want 400-4500", stats.PriceMin, stats.PriceMax)
	}
}

func TestSource_ReplaceSwapsSnapshot(t *testing.T) {
	src := enrich.NewSource(enrich.DefaultFacts())
	e := enrich.NewEnricher(src)

	src.Replace(enrich.Facts{WarrantyTerms: "90 días en modelos premium"})

	res := resultWithRows(1)
	e.Enrich("cubre la garantia?", res)
	if got := res.Metadatas[0]["enrich_warranty"]; got != "90 días en modelos premium" {
		t.Errorf("enrichment = %q, want refreshed terms", got)
	}
}
