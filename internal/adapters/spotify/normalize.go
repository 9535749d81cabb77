package spotify

import (
	"strings"
	"unicode"
)

// noiseTokens are release qualifiers that differ between the catalog and
// Spotify's own titles.
var noiseTokens = map[string]struct{}{
	"clean":      {},
	"deluxe":     {},
	"edition":    {},
	"edit":       {},
	"explicit":   {},
	"feat":       {},
	"featuring":  {},
	"ft":         {},
	"live":       {},
	"mix":        {},
	"mono":       {},
	"radio":      {},
	"remaster":   {},
	"remastered": {},
	"stereo":     {},
	"version":    {},
}

// normalizeSearchInput prepares a title or artist for the search query:
// bracketed segments and noise tokens are dropped, punctuation collapses to spaces.
func normalizeSearchInput(input string) string {
	if input == "" {
		return ""
	}

	lower := strings.ToLower(input)
	filtered := stripBracketedSegments(lower)
	tokens := strings.Fields(cleanSeparators(filtered))

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, drop := noiseTokens[token]; drop {
			continue
		}
		cleaned = append(cleaned, token)
	}

	return strings.Join(cleaned, " ")
}

// Normalize cleans a string for score comparison. Unlike the query form it
// only strips qualifiers that appear as a trailing "(...)", "[...]" or " - ..." suffix,
// so "Live Forever" keeps its first word.
func Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	lowered := strings.ToLower(strings.TrimSpace(input))
	trimmed := stripCommonSuffixes(lowered)

	return strings.Join(strings.Fields(cleanSeparators(trimmed)), " ")
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func stripCommonSuffixes(input string) string {
	trimmed := strings.TrimSpace(input)
	for {
		next := trimBracketedSuffix(trimmed, '(', ')')
		next = trimBracketedSuffix(next, '[', ']')
		next = trimDashSuffix(next)
		if next == trimmed {
			return trimmed
		}
		trimmed = strings.TrimSpace(next)
	}
}

func trimBracketedSuffix(input string, left, right rune) string {
	trimmed := strings.TrimSpace(input)
	if !strings.HasSuffix(trimmed, string(right)) {
		return input
	}
	idx := strings.LastIndex(trimmed, string(left))
	if idx == -1 || idx >= len(trimmed)-1 {
		return input
	}
	if suffixHasToken(trimmed[idx+1 : len(trimmed)-1]) {
		return strings.TrimSpace(trimmed[:idx])
	}
	return input
}

func trimDashSuffix(input string) string {
	trimmed := strings.TrimSpace(input)
	idx := strings.LastIndex(trimmed, " - ")
	if idx == -1 {
		return input
	}

	if suffixHasToken(trimmed[idx+3:]) {
		return strings.TrimSpace(trimmed[:idx])
	}

	return input
}

func suffixHasToken(input string) bool {
	for _, token := range strings.Fields(cleanSeparators(strings.ToLower(input))) {
		if _, ok := noiseTokens[token]; ok {
			return true
		}
	}
	return false
}

func cleanSeparators(input string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}

	return out.String()
}

func fallbackIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
