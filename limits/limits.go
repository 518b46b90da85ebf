// Package limits computes adaptive result-count bounds per query, balancing
// completeness against latency.
package limits

import (
	"strings"
	"time"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/searchctx"
)

// Absolute clamps, regardless of context or complexity.
const (
	MinBaseLimit = 5
	MaxBaseLimit = 50
	MaxMaxLimit  = 100

	// catalogShare caps MaxLimit at this fraction of the stored catalog,
	// when the catalog size is known.
	catalogShare = 0.30
)

// Plan is the optimizer's answer for one query.
type Plan struct {
	BaseLimit        int
	MaxLimit         int
	Context          searchctx.Context
	Complexity       float64
	Strategy         string
	ExpectedTime     time.Duration
	QualityThreshold float64
}

// signal is one row of the declarative complexity table: a keyword group and
// the weight it contributes when the query matches it.
type signal struct {
	name   string
	group  []string
	weight float64
}

var complexitySignals = []signal{
	{"multi_entity", searchctx.MultiDeviceKeywords, 0.20},
	{"price_range", []string{"entre", "rango", "desde", "hasta", "aproximado", "range", "between"}, 0.15},
	{"availability", searchctx.AvailabilityKeywords, 0.10},
	{"comparison", searchctx.ComparisonKeywords, 0.15},
	{"temporal", []string{"ayer", "semana", "mes", "hace", "pasado", "last week", "ago", "yesterday"}, 0.10},
}

// Optimizer computes result-limit plans. The zero value is not usable;
// construct with NewOptimizer.
type Optimizer struct {
	timeBudget    time.Duration
	safetyBuffer  time.Duration
	perResultCost time.Duration
	fixedOverhead time.Duration
}

// NewOptimizer creates an optimizer with the given total time budget per
// search. Non-positive budgets fall back to two seconds.
func NewOptimizer(timeBudget time.Duration) *Optimizer {
	if timeBudget <= 0 {
		timeBudget = 2 * time.Second
	}
	return &Optimizer{
		timeBudget:    timeBudget,
		safetyBuffer:  200 * time.Millisecond,
		perResultCost: 12 * time.Millisecond,
		fixedOverhead: 80 * time.Millisecond,
	}
}

// Optimize produces a limit plan for a query. totalCatalog is the number of
// stored chunks, or 0 when unknown.
func (o *Optimizer) Optimize(query string, filters core.SearchFilters, totalCatalog int) Plan {
	ctx := searchctx.Detect(query)
	policy := searchctx.PolicyFor(ctx)
	complexity := Complexity(query)

	scale := 1 + complexity*0.8
	base := float64(policy.BaseLimit) * scale
	max := float64(policy.MaxLimit) * scale

	strategy := "balanced"
	if filters.HasClient() {
		// Client-scoped searches are narrower; fewer results suffice.
		base *= 0.7
		max *= 0.7
		strategy = "client_focused"
	}
	if filters.HasDateRange() {
		// Historical range searches need a broader net.
		base *= 1.3
		max *= 1.3
		strategy = "historical_broad"
	}

	baseLimit := clampInt(int(base), MinBaseLimit, MaxBaseLimit)
	maxLimit := int(max)
	if totalCatalog > 0 {
		if ceiling := int(float64(totalCatalog) * catalogShare); ceiling > 0 && maxLimit > ceiling {
			maxLimit = ceiling
		}
	}
	maxLimit = clampInt(maxLimit, baseLimit, MaxMaxLimit)

	expected := o.estimate(baseLimit, policy.TimeMultiplier)
	allowed := o.timeBudget - o.safetyBuffer
	if expected > allowed && expected > 0 {
		factor := float64(allowed) / float64(expected)
		baseLimit = clampInt(int(float64(baseLimit)*factor), MinBaseLimit, MaxBaseLimit)
		maxLimit = clampInt(int(float64(maxLimit)*factor), baseLimit, MaxMaxLimit)
		expected = o.estimate(baseLimit, policy.TimeMultiplier)
		strategy = "performance_constrained"
	}

	return Plan{
		BaseLimit:        baseLimit,
		MaxLimit:         maxLimit,
		Context:          ctx,
		Complexity:       complexity,
		Strategy:         strategy,
		ExpectedTime:     expected,
		QualityThreshold: policy.QualityThreshold,
	}
}

// estimate predicts search latency for a result count under a context's cost
// multiplier.
func (o *Optimizer) estimate(results int, multiplier float64) time.Duration {
	base := time.Duration(results)*o.perResultCost + o.fixedOverhead
	return time.Duration(float64(base) * multiplier)
}

// Complexity scores a query's linguistic difficulty in [0,1] via the signal
// table plus word-count and brand-count contributions, capped at 1.
func Complexity(query string) float64 {
	if strings.TrimSpace(query) == "" {
		return 0
	}

	var score float64
	for _, s := range complexitySignals {
		if searchctx.ContainsAny(query, s.group) {
			score += s.weight
		}
	}

	words := len(strings.Fields(query))
	if words > 12 {
		score += 0.15
	}
	if words > 20 {
		score += 0.10
	}

	if brands := len(searchctx.DistinctBrands(query)); brands >= 2 {
		score += 0.20
	} else if brands == 1 {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	return score
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
