// Package plate validates vehicle license plates in the fixed gate format
// AA00AA0000 (e.g. TG01AB1234).
package plate

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z]{2}[0-9]{4}$`)

// IsValid reports whether s is exactly two uppercase letters, two digits,
// two uppercase letters and four digits. It is case-sensitive.
func IsValid(s string) bool {
	return pattern.MatchString(s)
}

// Normalize turns operator input into canonical form. The gate form
// uppercases as the operator types, so callers normalize before
// validating.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
