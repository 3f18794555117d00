package phone

import "strings"

// Format selects the canonical shape numbers are normalized into.
type Format string

const (
	// FormatLocal canonicalizes to trunk-prefixed national form, e.g. "0803...".
	FormatLocal Format = "local"
	// FormatInternational canonicalizes to "+<countrycode>..." form.
	FormatInternational Format = "international"
)

// Profile holds the canonicalization configuration for one country.
type Profile struct {
	CountryCode    string
	TrunkPrefix    string
	NationalLength int
	Target         Format
}

// NewProfile builds a profile from a country code as it appears in
// configuration ("+234" or "234") and a target format.
func NewProfile(countryCode string, nationalLength int, target Format) Profile {
	code := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if code == "" {
		code = "234"
	}
	if nationalLength <= 0 {
		nationalLength = 10
	}
	if target != FormatInternational {
		target = FormatLocal
	}
	return Profile{
		CountryCode:    code,
		TrunkPrefix:    "0",
		NationalLength: nationalLength,
		Target:         target,
	}
}

// Normalize canonicalizes a raw cell value. The bool result is false only
// when the input has no digits at all; every other input produces a
// best-effort canonical number, deliberately preferring a malformed
// result over dropping a row. Validity is the provider's concern at send
// time.
func (p Profile) Normalize(raw string) (string, bool) {
	digits := digitsOnly(raw)
	if digits == "" {
		return "", false
	}

	if p.Target == FormatInternational {
		switch {
		case strings.HasPrefix(digits, p.CountryCode):
			return "+" + digits, true
		case strings.HasPrefix(digits, p.TrunkPrefix):
			return "+" + p.CountryCode + digits[len(p.TrunkPrefix):], true
		case len(digits) == p.NationalLength:
			return "+" + p.CountryCode + digits, true
		default:
			return "+" + digits, true
		}
	}

	switch {
	case strings.HasPrefix(digits, p.TrunkPrefix):
		return digits, true
	case strings.HasPrefix(digits, p.CountryCode) && len(digits) >= p.NationalLength:
		return p.TrunkPrefix + digits[len(p.CountryCode):], true
	default:
		return p.TrunkPrefix + digits, true
	}
}

// countryCodes maps lowercase country-cell fragments to dial codes.
// Ordered so resolution is deterministic when a cell matches more than
// one fragment.
var countryCodes = []struct {
	fragment string
	code     string
}{
	{"gh", "233"},
	{"ng", "234"},
	{"nigeria", "234"},
}

// ForCountry resolves the per-row profile from a country cell. Matching
// is by lowercase substring so cells like "NG", "Nigeria (Lagos)" or
// "accra, gh" all resolve.
func ForCountry(cell string, base Profile) Profile {
	value := strings.ToLower(strings.TrimSpace(cell))
	if value == "" {
		return base
	}
	for _, entry := range countryCodes {
		if strings.Contains(value, entry.fragment) {
			resolved := base
			resolved.CountryCode = entry.code
			return resolved
		}
	}
	return base
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
