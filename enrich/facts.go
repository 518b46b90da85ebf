// Package enrich attaches static, curated domain facts to search results.
// Facts are consumed as a snapshot; refresh cadence belongs to the external
// fact source, not to this engine.
package enrich

import "sync"

// BrandInfo describes one device brand in the repair catalog.
type BrandInfo struct {
	Models       []string
	PriceRange   [2]float64
	ServiceTypes []string
}

// Facts is one read-only snapshot of the curated domain knowledge.
type Facts struct {
	Brands map[string]BrandInfo

	Currency      string
	Hours         string
	WarrantyTerms string
	RepairTime    string
	PriceValidity string
}

// CatalogStats summarizes the snapshot for attachment to result sets.
type CatalogStats struct {
	BrandCount int     `json:"brand_count"`
	ModelCount int     `json:"model_count"`
	PriceMin   float64 `json:"price_min"`
	PriceMax   float64 `json:"price_max"`
}

// Stats computes the catalog statistics for this snapshot.
func (f Facts) Stats() CatalogStats {
	stats := CatalogStats{BrandCount: len(f.Brands)}
	first := true
	for _, b := range f.Brands {
		stats.ModelCount += len(b.Models)
		if first {
			stats.PriceMin, stats.PriceMax = b.PriceRange[0], b.PriceRange[1]
			first = false
			continue
		}
		if b.PriceRange[0] < stats.PriceMin {
			stats.PriceMin = b.PriceRange[0]
		}
		if b.PriceRange[1] > stats.PriceMax {
			stats.PriceMax = b.PriceRange[1]
		}
	}
	return stats
}

// DefaultFacts is the built-in snapshot for the phone-repair domain, used
// until the external fact source delivers a fresher one.
func DefaultFacts() Facts {
	return Facts{
		Brands: map[string]BrandInfo{
			"iphone": {
				Models:       []string{"iPhone 11", "iPhone 12", "iPhone 13", "iPhone 14", "iPhone 15"},
				PriceRange:   [2]float64{800, 4500},
				ServiceTypes: []string{"pantalla", "bateria", "camara", "puerto de carga"},
			},
			"samsung": {
				Models:       []string{"Galaxy S21", "Galaxy S22", "Galaxy S23", "Galaxy A54"},
				PriceRange:   [2]float64{600, 3800},
				ServiceTypes: []string{"pantalla", "bateria", "camara"},
			},
			"xiaomi": {
				Models:       []string{"Redmi Note 11", "Redmi Note 12", "Poco X5"},
				PriceRange:   [2]float64{450, 2200},
				ServiceTypes: []string{"pantalla", "bateria", "puerto de carga"},
			},
			"motorola": {
				Models:       []string{"Moto G52", "Moto G84", "Edge 40"},
				PriceRange:   [2]float64{400, 2000},
				ServiceTypes: []string{"pantalla", "bateria"},
			},
		},
		Currency:      "MXN",
		Hours:         "Lunes a sábado de 10:00 a 19:00, domingos cerrado",
		WarrantyTerms: "30 días de garantía en refacción y mano de obra",
		RepairTime:    "1 a 3 días hábiles; pantallas el mismo día con refacción en stock",
		PriceValidity: "Cotizaciones vigentes por 7 días",
	}
}

// Source hands out fact snapshots. Swapping the snapshot is the only
// mutation; readers always see a complete bundle.
type Source struct {
	mu    sync.RWMutex
	facts Facts
}

// NewSource creates a source seeded with the given snapshot.
func NewSource(facts Facts) *Source {
	return &Source{facts: facts}
}

// Snapshot returns the current fact bundle.
func (s *Source) Snapshot() Facts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts
}

// Replace installs a refreshed snapshot from the external collaborator.
func (s *Source) Replace(facts Facts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = facts
}
