// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeDashed formats a phone number as NNN-NNN-NNNN when ten national
// digits are derivable. Customers are matched on this shape, so every lead
// source must pass through here before any lookup or insert. Input that does
// not reduce to ten digits is returned with non-digits stripped.
func NormalizeDashed(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	if number, err := phonenumbers.Parse(trimmed, defaultRegion); err == nil &&
		phonenumbers.IsValidNumber(number) && number.GetCountryCode() == 1 {
		national := phonenumbers.GetNationalSignificantNumber(number)
		if len(national) == 10 {
			return dashed(national)
		}
	}

	digits := stripNonDigits(trimmed)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		return dashed(digits)
	}
	return digits
}

func dashed(digits string) string {
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
}

func stripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
