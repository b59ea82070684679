// Package validate holds the strict field validators every vendor boundary
// schema must pass raw values through before they become part of a
// RawEquity. Each function normalises its input and rejects anything
// malformed; vendor field names never survive past this layer.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	isinRe     = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	cusipRe    = regexp.MustCompile(`^[0-9A-Z]{9}$`)
	figiRe     = regexp.MustCompile(`^[A-Z0-9]{12}$`)
	micRe      = regexp.MustCompile(`^[A-Z0-9]{4}$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

	punctCollapse = regexp.MustCompile(`[^A-Z0-9]+`)

	scientificRe = regexp.MustCompile(`[eE]`)
)

// Name uppercases, trims and collapses runs of punctuation/whitespace to a
// single space. Rejects empty input.
func Name(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("name: empty")
	}
	s = punctCollapse.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("name: empty after normalisation")
	}
	return s, nil
}

// Symbol uppercases and trims. Rejects empty input.
func Symbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("symbol: empty")
	}
	return s, nil
}

// ISIN validates and uppercases a 12-character ISIN.
func ISIN(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !isinRe.MatchString(s) {
		return "", fmt.Errorf("isin: %q does not match ^[A-Z]{2}[A-Z0-9]{9}[0-9]$", s)
	}
	return s, nil
}

// CUSIP validates and uppercases a 9-character CUSIP.
func CUSIP(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !cusipRe.MatchString(s) {
		return "", fmt.Errorf("cusip: %q does not match ^[0-9A-Z]{9}$", s)
	}
	return s, nil
}

// FIGI validates and uppercases a 12-character share-class FIGI.
func FIGI(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !figiRe.MatchString(s) {
		return "", fmt.Errorf("figi: %q does not match ^[A-Z0-9]{12}$", s)
	}
	return s, nil
}

// MIC validates and uppercases a 4-character venue code.
func MIC(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !micRe.MatchString(s) {
		return "", fmt.Errorf("mic: %q does not match ^[A-Z0-9]{4}$", s)
	}
	return s, nil
}

// MICs validates a list of venue codes, deduplicating while preserving
// first-seen order. Returns nil (not an error) if the input is empty.
func MICs(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		m, err := MIC(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// Currency validates and uppercases a 3-letter ISO-4217 code.
func Currency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !currencyRe.MatchString(s) {
		return "", fmt.Errorf("currency: %q does not match ^[A-Z]{3}$", s)
	}
	return s, nil
}

// Decimal parses a numeric string into a non-negative decimal.Decimal.
// It strips a leading '+', rejects a leading '-', rejects scientific
// notation, and detects US (1,234.56) vs EU (1.234,56) thousand/decimal
// separator conventions before handing off to shopspring/decimal.
func Decimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("decimal: empty")
	}
	if strings.HasPrefix(s, "-") {
		return decimal.Decimal{}, fmt.Errorf("decimal: %q is negative", s)
	}
	s = strings.TrimPrefix(s, "+")
	if scientificRe.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("decimal: %q uses scientific notation", s)
	}

	normalised, err := normaliseSeparators(s)
	if err != nil {
		return decimal.Decimal{}, err
	}

	d, err := decimal.NewFromString(normalised)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decimal: %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("decimal: %q is negative", s)
	}
	return d, nil
}

// normaliseSeparators resolves US (1,234.56) vs EU (1.234,56) thousand and
// decimal separator conventions into a canonical '.'-decimal string.
func normaliseSeparators(s string) (string, error) {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		lastComma := strings.LastIndex(s, ",")
		lastDot := strings.LastIndex(s, ".")
		if lastComma > lastDot {
			// EU style: '.' is thousands, ',' is decimal.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// US style: ',' is thousands, '.' is decimal.
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma && !hasDot:
		// Ambiguous: a single comma with exactly two trailing digits is
		// treated as an EU decimal separator; otherwise thousands.
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) == 2 {
			s = strings.Join(parts, ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	if strings.ContainsAny(s, ",") {
		return "", fmt.Errorf("decimal: mixed separators could not be resolved in %q", s)
	}
	return s, nil
}
