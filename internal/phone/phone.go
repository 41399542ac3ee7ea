// Package phone canonicalizes phone numbers into an E.164-like form. It is a
// heuristic cleaner, not a full E.164 parser: a number with neither a leading
// "+" nor a trunk "0" is assumed to already carry its country code.
package phone

import (
	"fmt"
	"strings"
)

// InvalidPhoneError reports a number that cannot be canonicalized.
type InvalidPhoneError struct {
	Raw    string
	Reason string
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone number %q: %s", e.Raw, e.Reason)
}

// Normalizer rewrites raw numbers using a per-deployment default country
// code for trunk-prefixed local numbers.
type Normalizer struct {
	// DefaultCountryCode replaces a leading "0", e.g. "+221".
	DefaultCountryCode string
}

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")

// Normalize strips separators and returns a "+"-prefixed digit string. It
// fails when fewer than 10 digits remain or when non-digit characters survive
// the cleanup.
func (n Normalizer) Normalize(raw string) (string, error) {
	if raw == "" {
		return "", &InvalidPhoneError{Raw: raw, Reason: "missing phone number"}
	}

	cleaned := separatorReplacer.Replace(raw)

	// Validate before the trunk substitution: the country code must not pad
	// a too-short number into an accepted one.
	digits := strings.TrimPrefix(cleaned, "+")
	if strings.Contains(digits, "+") {
		return "", &InvalidPhoneError{Raw: raw, Reason: "unexpected '+' inside number"}
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", &InvalidPhoneError{Raw: raw, Reason: "contains non-digit characters"}
		}
	}
	if len(digits) < 10 {
		return "", &InvalidPhoneError{Raw: raw, Reason: "fewer than 10 digits"}
	}

	if !strings.HasPrefix(cleaned, "+") && strings.HasPrefix(digits, "0") && n.DefaultCountryCode != "" {
		return n.DefaultCountryCode + digits[1:], nil
	}
	return "+" + digits, nil
}
