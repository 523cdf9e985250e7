package intent

import (
	"sort"
	"unicode/utf8"
)

// vocabulary is every single-word term the resolver recognizes, sorted so that ties
// in correction resolve the same way on every run.
var vocabulary = buildVocabulary()

func buildVocabulary() []string {
	seen := make(map[string]bool)
	add := func(w string) {
		if utf8.RuneCountInString(w) >= minCorrectLen {
			seen[w] = true
		}
	}
	for w := range categories {
		add(w)
	}
	for w := range cuisines {
		add(w)
	}
	for w := range dietaryWords {
		add(w)
	}
	for w := range mustHaveWords {
		add(w)
	}
	for w := range priceWords {
		add(w)
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Words shorter than minCorrectLen are never corrected.
const minCorrectLen = 4

// maxEdits allows one edit for short words and two from eight runes up.
func maxEdits(n int) int {
	if n >= 8 {
		return 2
	}
	return 1
}

// correctWord returns the closest known term within the edit budget, or w unchanged.
func correctWord(w string) string {
	n := utf8.RuneCountInString(w)
	if n < minCorrectLen || isKnownWord(w) {
		return w
	}
	best, bestDist := w, maxEdits(n)+1
	for _, term := range vocabulary {
		if d := damerauDistance(w, term); d < bestDist {
			best, bestDist = term, d
		}
	}
	return best
}

func isKnownWord(w string) bool {
	return categories[w] || categories[trimPlural(w)] || cuisines[w] || stopWords[w] ||
		priceWords[w] != nil || dietaryWords[w] != "" || mustHaveWords[w] != ""
}

func trimPlural(w string) string {
	if len(w) > 1 && w[len(w)-1] == 's' {
		return w[:len(w)-1]
	}
	return w
}

// damerauDistance counts insertions, deletions, substitutions and adjacent
// transpositions needed to turn a into b. It works on runes.
func damerauDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+cost)
			}
		}
	}
	return d[la][lb]
}
