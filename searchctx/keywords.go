package searchctx

import "strings"

// Keyword groups for the phone-repair support domain. Spanish terms first
// (primary market), common English fallbacks after. These groups are shared
// by context detection, chunk annotation, dedup context similarity, and
// result enrichment.
var (
	PriceKeywords = []string{
		"precio", "costo", "cuesta", "cuanto", "cuánto", "cotizacion",
		"cotización", "pesos", "$", "price", "cost", "how much",
	}

	WarrantyKeywords = []string{
		"garantia", "garantía", "garantizado", "devolucion", "devolución",
		"reclamo", "warranty", "guarantee", "refund",
	}

	TimeKeywords = []string{
		"tiempo", "demora", "tarda", "cuando", "cuándo", "rapido", "rápido",
		"hoy", "mañana", "urgente", "time", "how long", "when",
	}

	ScheduleKeywords = []string{
		"horario", "hora", "abren", "cierran", "cita", "agenda", "domingo",
		"sabado", "sábado", "schedule", "open", "appointment",
	}

	AvailabilityKeywords = []string{
		"disponible", "disponibilidad", "stock", "existencia", "tienen",
		"hay ", "available", "in stock",
	}

	ServiceKeywords = []string{
		"pantalla", "bateria", "batería", "reparacion", "reparación",
		"arreglo", "cambio", "camara", "cámara", "puerto", "carga",
		"bocina", "screen", "battery", "repair",
	}

	HistoryKeywords = []string{
		"historial", "anterior", "pasado", "antes", "ultima vez",
		"última vez", "history", "previous", "last time",
	}

	ComparisonKeywords = []string{
		"mejor", "comparar", "diferencia", " vs ", "versus", "o el",
		"conviene", "better", "compare", "difference",
	}

	MultiDeviceKeywords = []string{
		"varios", "ambos", "los dos", "familia", "equipos", "telefonos",
		"teléfonos", "both", "several", "multiple",
	}
)

// KnownBrands are the device brands the catalog covers, lowercase.
var KnownBrands = []string{
	"iphone", "apple", "samsung", "galaxy", "xiaomi", "redmi", "motorola",
	"moto", "huawei", "honor", "oppo", "nokia", "lg", "zte",
}

// brandAliases folds marketing names into one brand identity so "iphone" and
// "apple" do not count as two distinct brands.
var brandAliases = map[string]string{
	"apple": "iphone", "galaxy": "samsung", "redmi": "xiaomi", "moto": "motorola",
}

// ContainsAny reports whether the lowercased text contains any keyword from
// the group.
func ContainsAny(text string, group []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range group {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchCount returns how many keywords from the group occur in the text.
func MatchCount(text string, group []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range group {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// DistinctBrands returns the distinct device brands mentioned in the text,
// alias-folded, in catalog order.
func DistinctBrands(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var brands []string
	for _, b := range KnownBrands {
		if !strings.Contains(lower, b) {
			continue
		}
		canonical := b
		if alias, ok := brandAliases[b]; ok {
			canonical = alias
		}
		if !seen[canonical] {
			seen[canonical] = true
			brands = append(brands, canonical)
		}
	}
	return brands
}
