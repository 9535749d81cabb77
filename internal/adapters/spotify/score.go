package spotify

import "strings"

// ScoreResult returns a similarity in [0, 1] between the wanted artist+title
// and a search result's artist+title, based on normalized edit distance.
func ScoreResult(targetArtist string, targetTitle string, actualArtist string, actualTitle string) float64 {
	target := Normalize(strings.TrimSpace(targetArtist + " " + targetTitle))
	actual := Normalize(strings.TrimSpace(actualArtist + " " + actualTitle))
	if target == "" || actual == "" {
		return 0
	}

	return similarity(target, actual)
}

func similarity(a string, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

func levenshteinDistance(a string, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
