package types

import "strings"

// NormalizePhoneNumber rewrites local and "+"-prefixed numbers into the
// digits-only international form gateways expect: "0712 345 678" and
// "+254712345678" both become "254712345678" for country code "254".
func NormalizePhoneNumber(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		case r == '+' && b.Len() == 0:
		default:
			return strings.TrimSpace(raw)
		}
	}
	digits := b.String()
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")

	switch {
	case countryCode == "" || digits == "":
		return digits
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return countryCode + digits[1:]
	case len(digits) == 9:
		return countryCode + digits
	default:
		return digits
	}
}
