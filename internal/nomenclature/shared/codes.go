package shared

import (
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{1,32}$`)

// NormalizeCode upper-cases and trims a nomenclature code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code matches the allowed shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
