// Package phone checks and formats contact numbers, French plan by default.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "FR"

func parse(input string) (*phonenumbers.PhoneNumber, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, false
	}
	n, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(n) {
		return nil, false
	}
	return n, true
}

// IsValid reports whether input is a dialable number.
func IsValid(input string) bool {
	_, ok := parse(input)
	return ok
}

// NormalizeE164 returns input in E.164 form, or trimmed as-is when it does
// not parse.
func NormalizeE164(input string) string {
	if n, ok := parse(input); ok {
		return phonenumbers.Format(n, phonenumbers.E164)
	}
	return strings.TrimSpace(input)
}
