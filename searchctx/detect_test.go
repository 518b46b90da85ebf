package searchctx_test

import (
	"testing"

	"github.com/dialogkit/convmem/searchctx"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		query string
		want  searchctx.Context
	}{
		{"cuanto cuesta cambiar la pantalla", searchctx.ContextPrice},
		{"el precio de la bateria", searchctx.ContextPrice},
		{"how much is a screen replacement", searchctx.ContextPrice},
		{"mi reparacion tiene garantia?", searchctx.ContextWarranty},
		{"tengo un reclamo pendiente", searchctx.ContextWarranty},
		{"historial de mis reparaciones", searchctx.ContextWarranty},
		{"tienen pantallas en stock?", searchctx.ContextAvailability},
		{"a que hora abren el sabado", searchctx.ContextSchedule},
		{"en que tiempo tarda la reparacion", searchctx.ContextSchedule},
		{"mi iphone no enciende", searchctx.ContextDevice},
		{"tengo un samsung descompuesto", searchctx.ContextDevice},
		{"reparar iphone y samsung de la familia", searchctx.ContextMultiDevice},
		{"varios equipos dañados", searchctx.ContextMultiDevice},
		{"hola buenos dias", searchctx.ContextGeneral},
		{"", searchctx.ContextGeneral},
	}

	for _, tt := range tests {
		if got := searchctx.Detect(tt.query); got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestDetect_WarrantyOutranksPrice(t *testing.T) {
	// Queries mixing warranty and price phrasing resolve to warranty.
	got := searchctx.Detect("la garantia cubre el costo de la pantalla?")
	if got != searchctx.ContextWarranty {
		t.Errorf("Detect() = %s, want %s", got, searchctx.ContextWarranty)
	}
}

func TestDetect_MultiBrandOverridesEverything(t *testing.T) {
	got := searchctx.Detect("precio de pantalla para iphone y xiaomi")
	if got != searchctx.ContextMultiDevice {
		t.Errorf("Detect() = %s, want %s", got, searchctx.ContextMultiDevice)
	}
}

func TestDetect_BrandAliasesFold(t *testing.T) {
	// "apple" and "iphone" are the same brand, not a multi-device query.
	got := searchctx.Detect("mi apple iphone esta fallando")
	if got != searchctx.ContextDevice {
		t.Errorf("Detect() = %s, want %s", got, searchctx.ContextDevice)
	}
}

func TestPolicyFor_UnknownDefaultsToGeneral(t *testing.T) {
	got := searchctx.PolicyFor(searchctx.Context("bogus"))
	want := searchctx.PolicyFor(searchctx.ContextGeneral)
	if got != want {
		t.Errorf("PolicyFor(bogus) = %+v, want general policy", got)
	}
}

func TestPolicies_Sane(t *testing.T) {
	for _, c := range searchctx.Contexts() {
		p := searchctx.PolicyFor(c)
		if p.BaseLimit <= 0 || p.MaxLimit < p.BaseLimit {
			t.Errorf("%s: bad limits %d/%d", c, p.BaseLimit, p.MaxLimit)
		}
		if p.SearchAttempts < 1 {
			t.Errorf("%s: bad attempts %d", c, p.SearchAttempts)
		}
		if p.StabilityThreshold <= 0 || p.StabilityThreshold > 1 {
			t.Errorf("%s: bad stability threshold %f", c, p.StabilityThreshold)
		}
		if p.CacheTTL <= 0 {
			t.Errorf("%s: bad cache ttl %s", c, p.CacheTTL)
		}
	}
}

func TestDistinctBrands(t *testing.T) {
	brands := searchctx.DistinctBrands("comparar galaxy contra iphone y otro samsung")
	if len(brands) != 2 {
		t.Fatalf("DistinctBrands() = %v, want 2 brands", brands)
	}
	// galaxy folds into samsung.
	if brands[0] != "iphone" || brands[1] != "samsung" {
		t.Errorf("DistinctBrands() = %v, want [iphone samsung]", brands)
	}
}
