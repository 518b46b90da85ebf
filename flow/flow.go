// Package flow classifies a short window of recent conversation turns into a
// named conversational flow. Classification is a pure function of history:
// exact subsequence matching against a fixed catalog first, keyword
// heuristics second, "general" last.
package flow

import (
	"strings"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/searchctx"
)

// Flow names.
const (
	PriceInquiry       = "price_inquiry_flow"
	WarrantyClaim      = "warranty_claim_flow"
	ServiceRequest     = "service_request_flow"
	MultiDeviceFamily  = "multi_device_family"
	TimingConsultation = "timing_consultation"
	General            = "general"
)

// maxWindow is how many of the most recent turns classification looks at.
const maxWindow = 4

// Pattern is one catalog entry: a flow name and the intent subsequence that
// identifies it.
type Pattern struct {
	Name    string
	Intents []string
}

// Catalog is the fixed set of recognized conversational flows. Matching is
// exact-subsequence over recent intents, first match wins.
var Catalog = []Pattern{
	{PriceInquiry, []string{"saludo", "consulta_precio"}},
	{PriceInquiry, []string{"consulta_precio", "consulta_precio"}},
	{WarrantyClaim, []string{"consulta_garantia", "reclamo"}},
	{WarrantyClaim, []string{"solicitud_servicio", "consulta_garantia"}},
	{ServiceRequest, []string{"consulta_precio", "solicitud_servicio"}},
	{ServiceRequest, []string{"solicitud_servicio", "confirmacion"}},
	{TimingConsultation, []string{"consulta_precio", "consulta_horario"}},
}

// Detect classifies the conversation ending in the given turns. Only the
// most recent maxWindow turns participate.
func Detect(turns []core.ConversationTurn) string {
	if len(turns) == 0 {
		return General
	}
	if len(turns) > maxWindow {
		turns = turns[len(turns)-maxWindow:]
	}

	intents := make([]string, len(turns))
	for i, t := range turns {
		intents[i] = t.Intent
	}

	for _, p := range Catalog {
		if containsSubsequence(intents, p.Intents) {
			return p.Name
		}
	}

	return heuristic(turns)
}

// heuristic covers flows the intent catalog cannot see: several distinct
// devices in play, or price and timing concerns raised together.
func heuristic(turns []core.ConversationTurn) string {
	devices := make(map[string]bool)
	var combined strings.Builder
	for _, t := range turns {
		if d := strings.ToLower(strings.TrimSpace(t.Extracted.Device)); d != "" {
			devices[d] = true
		}
		combined.WriteString(t.UserText)
		combined.WriteString(" ")
	}

	text := combined.String()
	if len(devices) > 1 || len(searchctx.DistinctBrands(text)) > 1 {
		return MultiDeviceFamily
	}
	if searchctx.ContainsAny(text, searchctx.PriceKeywords) &&
		searchctx.ContainsAny(text, searchctx.TimeKeywords) {
		return TimingConsultation
	}

	return General
}

// containsSubsequence reports whether needle occurs contiguously in haystack.
func containsSubsequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for start := 0; start+len(needle) <= len(haystack); start++ {
		match := true
		for i, want := range needle {
			if haystack[start+i] != want {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
