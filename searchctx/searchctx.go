// Package searchctx classifies queries into search contexts and holds the
// per-context retrieval policy (limits, stability thresholds, cache TTLs).
// The same classification drives the limit optimizer and the stabilizer.
package searchctx

import "time"

// Context is the domain classification of a query.
type Context string

const (
	ContextPrice        Context = "price"
	ContextWarranty     Context = "warranty"
	ContextAvailability Context = "availability"
	ContextSchedule     Context = "schedule"
	ContextDevice       Context = "device"
	ContextMultiDevice  Context = "multi_device"
	ContextGeneral      Context = "general"
)

// Policy is the retrieval configuration attached to a context.
type Policy struct {
	// BaseLimit and MaxLimit bound the result count before complexity scaling.
	BaseLimit int
	MaxLimit  int

	// SearchAttempts is how many parallel queries the stabilizer issues.
	SearchAttempts int

	// StabilityThreshold is the minimum consensus stability for a document
	// to survive merging (scaled by 0.8 at filter time).
	StabilityThreshold float64

	// RelevanceWeight balances relevance against stability in the combined
	// consensus score.
	RelevanceWeight float64

	// CacheTTL is how long a stabilized result stays reproducible.
	CacheTTL time.Duration

	// TimeMultiplier scales the latency estimate for this context.
	TimeMultiplier float64

	// QualityThreshold is the minimum acceptable consensus quality reported
	// to callers.
	QualityThreshold float64

	// RequiresEnrichment marks contexts whose results get static domain
	// facts attached.
	RequiresEnrichment bool
}

var policies = map[Context]Policy{
	ContextPrice: {
		BaseLimit: 12, MaxLimit: 30, SearchAttempts: 5,
		StabilityThreshold: 0.6, RelevanceWeight: 0.45,
		CacheTTL: 5 * time.Minute, TimeMultiplier: 1.2,
		QualityThreshold: 0.5, RequiresEnrichment: true,
	},
	ContextWarranty: {
		BaseLimit: 10, MaxLimit: 25, SearchAttempts: 4,
		StabilityThreshold: 0.6, RelevanceWeight: 0.4,
		CacheTTL: 10 * time.Minute, TimeMultiplier: 1.1,
		QualityThreshold: 0.5, RequiresEnrichment: true,
	},
	ContextAvailability: {
		BaseLimit: 8, MaxLimit: 20, SearchAttempts: 3,
		StabilityThreshold: 0.55, RelevanceWeight: 0.5,
		CacheTTL: 2 * time.Minute, TimeMultiplier: 1.0,
		QualityThreshold: 0.45, RequiresEnrichment: true,
	},
	ContextSchedule: {
		BaseLimit: 8, MaxLimit: 20, SearchAttempts: 3,
		StabilityThreshold: 0.55, RelevanceWeight: 0.4,
		CacheTTL: 10 * time.Minute, TimeMultiplier: 1.0,
		QualityThreshold: 0.45, RequiresEnrichment: true,
	},
	ContextDevice: {
		BaseLimit: 10, MaxLimit: 28, SearchAttempts: 4,
		StabilityThreshold: 0.6, RelevanceWeight: 0.5,
		CacheTTL: 5 * time.Minute, TimeMultiplier: 1.1,
		QualityThreshold: 0.5, RequiresEnrichment: true,
	},
	ContextMultiDevice: {
		BaseLimit: 15, MaxLimit: 40, SearchAttempts: 5,
		StabilityThreshold: 0.55, RelevanceWeight: 0.45,
		CacheTTL: 5 * time.Minute, TimeMultiplier: 1.4,
		QualityThreshold: 0.45, RequiresEnrichment: true,
	},
	ContextGeneral: {
		BaseLimit: 8, MaxLimit: 20, SearchAttempts: 3,
		StabilityThreshold: 0.5, RelevanceWeight: 0.35,
		CacheTTL: 3 * time.Minute, TimeMultiplier: 1.0,
		QualityThreshold: 0.4, RequiresEnrichment: false,
	},
}

// PolicyFor returns the policy for a context, defaulting to general.
func PolicyFor(c Context) Policy {
	if p, ok := policies[c]; ok {
		return p
	}
	return policies[ContextGeneral]
}

// Contexts returns every known context tag.
func Contexts() []Context {
	return []Context{
		ContextPrice, ContextWarranty, ContextAvailability,
		ContextSchedule, ContextDevice, ContextMultiDevice, ContextGeneral,
	}
}
