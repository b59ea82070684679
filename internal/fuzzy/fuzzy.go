// Package fuzzy isolates the string-similarity primitives the Merger
// (token-set ratio, for name clustering) and the Enrichment Vendor client
// (plain ratio on symbols plus token-sort ratio on names, for candidate
// selection) need behind a small interface,
// per the design note in spec.md: "implementations may pick any
// library-backed or hand-rolled Levenshtein variant that agrees on a few
// calibrated scenarios". The edit-distance primitive is a real library
// (agnivade/levenshtein); the token-set/token-sort composition on top of it
// is hand-rolled, mirroring the well-known fuzzywuzzy/RapidFuzz algorithms
// the spec's own vocabulary ("token-set ratio", "weighted ratio") is drawn
// from.
package fuzzy

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio returns a 0-100 similarity score between two strings, based on
// normalised Levenshtein distance.
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 100 * (1 - float64(dist)/float64(maxLen))
	if score < 0 {
		score = 0
	}
	return int(score + 0.5)
}

// TokenSortRatio tokenises both strings on whitespace, sorts the tokens,
// rejoins them, and compares with Ratio. This neutralises pure word-order
// differences ("FOO INC" vs "INC FOO").
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio additionally neutralises differences caused by one string
// being a subset of the other's tokens ("FOO INC" vs "FOO INC OF AMERICA")
// by comparing the shared-token core against each side's full token set and
// taking the best of the three pairings, per the classic token-set-ratio
// algorithm. Punctuation is treated as a token separator, so "FOO INC."
// and "FOO INC" yield the same token set.
func TokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	intersection := make([]string, 0)
	onlyA := make([]string, 0)
	onlyB := make([]string, 0)

	inB := make(map[string]struct{}, len(tokensB))
	for _, t := range tokensB {
		inB[t] = struct{}{}
	}
	inA := make(map[string]struct{}, len(tokensA))
	for _, t := range tokensA {
		inA[t] = struct{}{}
	}

	for _, t := range tokensA {
		if _, ok := inB[t]; ok {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tokensB {
		if _, ok := inA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}

	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sortedIntersection := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sortedIntersection + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sortedIntersection + " " + strings.Join(onlyB, " "))

	best := Ratio(sortedIntersection, combinedA)
	if r := Ratio(sortedIntersection, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func tokenSet(s string) []string {
	fields := strings.Fields(nonAlnum.ReplaceAllString(strings.ToUpper(s), " "))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func sortedTokens(s string) string {
	fields := strings.Fields(strings.ToUpper(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}
