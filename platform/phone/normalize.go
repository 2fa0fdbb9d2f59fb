// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "UA"

// Canonical reduces a phone number to the digit form the CRM stores:
// a 10-digit local number with a leading 0 becomes 38 + the last 9
// digits, a bare 9-digit subscriber number gets the 380 prefix, and
// anything else is left as digits only.
func Canonical(input string) string {
	digits := digitsOnly(input)

	if len(digits) == 10 && digits[0] == '0' {
		return "38" + digits[1:]
	}
	if len(digits) == 9 {
		return "380" + digits
	}

	return digits
}

// NormalizeE164 formats a phone number to E.164. If parsing fails or the
// number is invalid, it returns the trimmed input unchanged.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

func digitsOnly(input string) string {
	var sb strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
