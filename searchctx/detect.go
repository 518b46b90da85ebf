package searchctx

// detectionRule binds a keyword group to a context label. Rules are evaluated
// in order, most specific first; the first match wins.
type detectionRule struct {
	label Context
	group []string
}

// detectionRules is the declarative classification table. Ordering matters:
// warranty/history phrasing outranks price phrasing, which outranks
// availability, schedule, and device phrasing.
var detectionRules = []detectionRule{
	{ContextWarranty, WarrantyKeywords},
	{ContextWarranty, HistoryKeywords},
	{ContextPrice, PriceKeywords},
	{ContextAvailability, AvailabilityKeywords},
	{ContextSchedule, ScheduleKeywords},
	{ContextSchedule, TimeKeywords},
}

// Detect resolves a query to exactly one context. Multi-brand or multi-device
// phrasing overrides everything else; otherwise the first matching rule wins,
// then a device-brand mention, then general.
func Detect(query string) Context {
	if query == "" {
		return ContextGeneral
	}

	if len(DistinctBrands(query)) > 1 || ContainsAny(query, MultiDeviceKeywords) {
		return ContextMultiDevice
	}

	for _, rule := range detectionRules {
		if ContainsAny(query, rule.group) {
			return rule.label
		}
	}

	if len(DistinctBrands(query)) == 1 {
		return ContextDevice
	}

	return ContextGeneral
}
