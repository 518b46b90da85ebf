package limits_test

import (
	"testing"
	"time"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/limits"
	"github.com/dialogkit/convmem/searchctx"
)

func TestComplexity(t *testing.T) {
	tests := []struct {
		name  string
		query string
		min   float64
		max   float64
	}{
		{"empty", "", 0, 0},
		{"simple greeting", "hola", 0, 0.1},
		{"single brand", "precio de pantalla iphone", 0.05, 0.2},
		{"two brands", "comparar iphone contra samsung", 0.3, 0.7},
		{"price range phrasing", "algo entre 1000 y 2000 pesos", 0.1, 0.5},
		{
			"long multi-signal query",
			"quiero comparar el precio de reparar varios equipos iphone y samsung entre esta semana y la pasada porque tengo ambos con pantalla rota",
			0.7, 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := limits.Complexity(tt.query)
			if got < tt.min || got > tt.max {
				t.Errorf("Complexity(%q) = %f, want within [%f, %f]", tt.query, got, tt.min, tt.max)
			}
		})
	}
}

func TestComplexity_NeverExceedsOne(t *testing.T) {
	q := "comparar entre varios equipos iphone samsung xiaomi motorola desde la semana pasada hasta ayer cual conviene mejor y si hay disponibilidad de todos los modelos en existencia ahora mismo"
	if got := limits.Complexity(q); got > 1 {
		t.Errorf("Complexity() = %f, want <= 1", got)
	}
}

func TestOptimize_BoundsAlwaysHold(t *testing.T) {
	o := limits.NewOptimizer(2 * time.Second)
	queries := []string{
		"",
		"hola",
		"precio pantalla iphone",
		"comparar varios equipos iphone y samsung entre esta semana y la anterior",
	}
	catalogs := []int{0, 3, 50, 10000}

	for _, q := range queries {
		for _, catalog := range catalogs {
			p := o.Optimize(q, core.SearchFilters{}, catalog)
			if p.BaseLimit < limits.MinBaseLimit || p.BaseLimit > limits.MaxBaseLimit {
				t.Errorf("Optimize(%q, catalog=%d): BaseLimit %d out of bounds", q, catalog, p.BaseLimit)
			}
			if p.MaxLimit < p.BaseLimit || p.MaxLimit > limits.MaxMaxLimit {
				t.Errorf("Optimize(%q, catalog=%d): MaxLimit %d invalid for base %d", q, catalog, p.MaxLimit, p.BaseLimit)
			}
		}
	}
}

func TestOptimize_ComplexityRaisesLimits(t *testing.T) {
	o := limits.NewOptimizer(5 * time.Second)

	simple := o.Optimize("precio de pantalla", core.SearchFilters{}, 0)
	complex := o.Optimize("precio y rango aproximado desde 1000 hasta 3000 para comparar cual pantalla conviene mejor entre varios equipos", core.SearchFilters{}, 0)

	if complex.Complexity <= simple.Complexity {
		t.Fatalf("complex query complexity %f not above simple %f", complex.Complexity, simple.Complexity)
	}
	if complex.BaseLimit < simple.BaseLimit {
		t.Errorf("complex base %d below simple base %d", complex.BaseLimit, simple.BaseLimit)
	}
}

func TestOptimize_ClientFilterNarrows(t *testing.T) {
	o := limits.NewOptimizer(5 * time.Second)
	q := "precio de pantalla iphone"

	open := o.Optimize(q, core.SearchFilters{}, 0)
	scoped := o.Optimize(q, core.SearchFilters{ClientID: "5216862262377"}, 0)

	if scoped.BaseLimit > open.BaseLimit {
		t.Errorf("client-scoped base %d above open base %d", scoped.BaseLimit, open.BaseLimit)
	}
	if scoped.Strategy != "client_focused" {
		t.Errorf("strategy = %q, want client_focused", scoped.Strategy)
	}
}

func TestOptimize_DateRangeBroadens(t *testing.T) {
	o := limits.NewOptimizer(5 * time.Second)
	q := "reparaciones de pantalla anteriores"
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	open := o.Optimize(q, core.SearchFilters{}, 0)
	ranged := o.Optimize(q, core.SearchFilters{DateFrom: &from}, 0)

	if ranged.MaxLimit < open.MaxLimit {
		t.Errorf("ranged max %d below open max %d", ranged.MaxLimit, open.MaxLimit)
	}
	if ranged.Strategy != "historical_broad" {
		t.Errorf("strategy = %q, want historical_broad", ranged.Strategy)
	}
}

func TestOptimize_SmallCatalogCapsMax(t *testing.T) {
	o := limits.NewOptimizer(5 * time.Second)
	p := o.Optimize("precio de pantalla iphone", core.SearchFilters{}, 40)

	// 30% of 40 is 12, but MaxLimit never drops below BaseLimit.
	ceiling := 12
	if p.MaxLimit > ceiling && p.MaxLimit != p.BaseLimit {
		t.Errorf("MaxLimit %d exceeds catalog ceiling %d", p.MaxLimit, ceiling)
	}
}

func TestOptimize_TightBudgetConstrains(t *testing.T) {
	generous := limits.NewOptimizer(10 * time.Second)
	tight := limits.NewOptimizer(300 * time.Millisecond)
	q := "comparar precio de varios equipos iphone y samsung con rango desde 1000 hasta 3000"

	g := generous.Optimize(q, core.SearchFilters{}, 0)
	c := tight.Optimize(q, core.SearchFilters{}, 0)

	if c.BaseLimit > g.BaseLimit {
		t.Errorf("tight-budget base %d above generous base %d", c.BaseLimit, g.BaseLimit)
	}
	if c.Strategy != "performance_constrained" {
		t.Errorf("strategy = %q, want performance_constrained", c.Strategy)
	}
	if c.ExpectedTime > 300*time.Millisecond {
		t.Errorf("expected time %s exceeds budget", c.ExpectedTime)
	}
}

func TestOptimize_ContextClassification(t *testing.T) {
	o := limits.NewOptimizer(2 * time.Second)
	p := o.Optimize("cuanto cuesta la pantalla", core.SearchFilters{}, 0)
	if p.Context != searchctx.ContextPrice {
		t.Errorf("Context = %s, want %s", p.Context, searchctx.ContextPrice)
	}
	if p.QualityThreshold != searchctx.PolicyFor(searchctx.ContextPrice).QualityThreshold {
		t.Errorf("QualityThreshold = %f not taken from price policy", p.QualityThreshold)
	}
}
