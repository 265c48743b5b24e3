package numbering

import (
	"fmt"
	"strings"
	"time"
)

// PeriodFor returns the reset period token for the given instant:
// "" for NEVER, "2026" for YEARLY, "202608" for MONTHLY.
func PeriodFor(rule ResetRule, at time.Time) string {
	switch rule {
	case ResetYearly:
		return at.Format("2006")
	case ResetMonthly:
		return at.Format("200601")
	default:
		return ""
	}
}

// Format renders a sequence number under the config. The internal
// format joins prefix, padded counter and suffix; the fiscal format
// additionally carries the period after the counter. Empty parts are
// skipped so separators never double up.
func Format(cfg Config, seq int64, period string) string {
	digits := cfg.Digits
	if digits < 1 {
		digits = 1
	}
	parts := []string{cfg.Prefix, fmt.Sprintf("%0*d", digits, seq)}
	if cfg.Fiscal && period != "" {
		parts = append(parts, period)
	}
	parts = append(parts, cfg.Suffix)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, cfg.Separator)
}
