package sanitizer

import (
	"regexp"
	"strings"
)

var (
	nonDigitRegex   = regexp.MustCompile(`\D`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Card numbers are 13-19 digits (PCI DSS range). A display name whose digit
// content falls in that range and dominates the string is treated as a
// mistyped card number and must never be persisted.
const (
	minCardDigits = 13
	maxCardDigits = 19

	// cardDigitDensity is the fraction of non-space characters that must be
	// digits before a string is considered card-like. Below this, digit runs
	// are assumed to be legitimate name content ("John Smith III, Apt 1401").
	cardDigitDensity = 0.8
)

// NormalizeName trims and collapses internal whitespace.
func NormalizeName(name string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(name), " ")
}

// LooksLikeCardNumber reports whether a string is digit-dense with a
// plausible payment-card digit count. Separators (spaces, dashes) are
// ignored when counting digits.
func LooksLikeCardNumber(s string) bool {
	digits := nonDigitRegex.ReplaceAllString(s, "")
	if len(digits) < minCardDigits || len(digits) > maxCardDigits {
		return false
	}

	nonSpace := 0
	for _, r := range s {
		if r != ' ' && r != '-' {
			nonSpace++
		}
	}
	if nonSpace == 0 {
		return false
	}

	return float64(len(digits))/float64(nonSpace) >= cardDigitDensity
}

// ValidDisplayName reports whether a customer-supplied display name is
// structurally safe to persist: non-empty after normalization and not a
// payment-card number.
func ValidDisplayName(name string) bool {
	normalized := NormalizeName(name)
	if normalized == "" {
		return false
	}
	return !LooksLikeCardNumber(normalized)
}
