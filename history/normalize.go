// Package history locates and summarizes all memories for one client across
// identifier variations, and derives behavioral profiles from them.
package history

import "strings"

// DefaultCountryPrefix is the dialing prefix assumed for bare national
// numbers (Mexico).
const DefaultCountryPrefix = "52"

// Normalizer canonicalizes client identifiers (phone-like strings).
// Normalization is idempotent: applying it twice equals applying it once.
type Normalizer struct {
	prefix string
}

// NewNormalizer creates a normalizer for the given country prefix; empty
// means DefaultCountryPrefix.
func NewNormalizer(prefix string) *Normalizer {
	if prefix == "" {
		prefix = DefaultCountryPrefix
	}
	return &Normalizer{prefix: prefix}
}

// Normalize strips everything but digits and canonicalizes known national
// and international shapes. Un-normalizable input becomes "unknown" rather
// than an error.
func (n *Normalizer) Normalize(raw string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return "unknown"
	}

	switch {
	case strings.HasPrefix(digits, n.prefix) && len(digits) == len(n.prefix)+10:
		// Already in country-prefixed form.
		return digits
	case strings.HasPrefix(digits, n.prefix+"1") && len(digits) == len(n.prefix)+11:
		// Mobile form with interposed "1".
		return digits
	case len(digits) == 10:
		// Bare national number.
		return n.prefix + digits
	default:
		// Unrecognized shape passes through digits-only.
		return digits
	}
}

// Alternates generates plausible alternate encodings of a normalized id:
// with/without the country prefix, with the mobile "1", and with a leading
// "+". The normalized id itself is not included.
func (n *Normalizer) Alternates(normalized string) []string {
	national := n.national(normalized)
	if national == "" {
		return nil
	}

	candidates := []string{
		national,
		n.prefix + national,
		n.prefix + "1" + national,
		"+" + n.prefix + national,
	}

	seen := map[string]bool{normalized: true}
	var out []string
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// national extracts the 10-digit national part from a normalized id, or ""
// when the shape is unrecognized.
func (n *Normalizer) national(id string) string {
	switch {
	case strings.HasPrefix(id, n.prefix+"1") && len(id) == len(n.prefix)+11:
		return id[len(n.prefix)+1:]
	case strings.HasPrefix(id, n.prefix) && len(id) == len(n.prefix)+10:
		return id[len(n.prefix):]
	case len(id) == 10:
		return id
	default:
		return ""
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
