// Package intent turns raw query text into a structured Intent.
package intent

import (
	"context"
	"strings"
	"unicode"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/pkg/utils"
)

// Resolver resolves query text into an Intent.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*models.Intent, error)
}

// Confidence contributions. A query that yields only a known category scores 0.7.
const (
	baseConfidence     = 0.3
	knownCategoryBonus = 0.4
	otherCategoryBonus = 0.1
	locationBonus      = 0.2
	filterBonus        = 0.1
)

var (
	priceWords = map[string][]int{
		"cheap": {1, 2}, "inexpensive": {1, 2}, "budget": {1}, "affordable": {1, 2},
		"moderate": {2}, "midrange": {2},
		"expensive": {3, 4}, "upscale": {3, 4}, "fancy": {3, 4}, "luxury": {4},
		"$": {1}, "$$": {2}, "$$$": {3}, "$$$$": {4},
	}
	dietaryWords = map[string]string{
		"vegan": "vegan", "vegetarian": "vegetarian", "halal": "halal", "kosher": "kosher",
		"gluten-free": "gluten_free", "glutenfree": "gluten_free",
	}
	mustHaveWords = map[string]string{
		"wifi": "wifi", "wi-fi": "wifi", "parking": "parking", "terrace": "outdoor_seating",
	}
	cuisines = map[string]bool{
		"thai": true, "japanese": true, "italian": true, "mexican": true, "chinese": true, "indian": true,
		"korean": true, "french": true, "vietnamese": true, "greek": true, "spanish": true, "turkish": true,
	}
	categories = map[string]bool{
		"restaurant": true, "ramen": true, "sushi": true, "cafe": true, "coffee": true, "bar": true,
		"pizza": true, "burger": true, "bakery": true, "pub": true, "brunch": true, "tacos": true,
		"noodles": true, "dessert": true, "food": true, "izakaya": true, "bistro": true, "steak": true,
	}
	stopWords = map[string]bool{
		"a": true, "an": true, "the": true, "some": true, "any": true, "find": true, "me": true,
		"show": true, "for": true, "good": true, "best": true, "great": true, "nice": true, "place": true,
		"places": true, "spot": true, "spots": true, "with": true, "and": true, "that": true, "is": true,
		"are": true, "food": true, "i": true, "want": true, "to": true, "eat": true, "where": true,
		"lunch": true, "dinner": true, "breakfast": true, "tonight": true,
	}
	locationMarkers = []string{" near ", " in ", " around ", " at ", " by "}
)

// RuleResolver resolves intents with deterministic keyword rules.
type RuleResolver struct{}

// NewRuleResolver creates a RuleResolver.
func NewRuleResolver() *RuleResolver {
	return &RuleResolver{}
}

// Resolve never fails for non-empty text; unrecognized queries get a low confidence.
// Near-miss spellings of known terms are corrected before matching.
func (r *RuleResolver) Resolve(ctx context.Context, query string) (*models.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := &models.Intent{Language: detectLanguage(query)}
	text := " " + strings.ToLower(strings.Join(strings.Fields(query), " ")) + " "

	text = extractPhrases(text, in)
	text, in.Location = extractLocation(text)

	var rest []string
	for _, w := range strings.Fields(text) {
		w = correctWord(strings.Trim(w, ",.!?"))
		switch {
		case w == "":
		case priceWords[w] != nil:
			in.Filters.PriceLevels = mergeLevels(in.Filters.PriceLevels, priceWords[w])
		case dietaryWords[w] != "":
			in.Filters.Dietary = appendUnique(in.Filters.Dietary, dietaryWords[w])
		case mustHaveWords[w] != "":
			in.Filters.MustHave = appendUnique(in.Filters.MustHave, mustHaveWords[w])
		case cuisines[w]:
			in.Filters.Cuisine = w
		case stopWords[w] && !categories[w]:
		default:
			rest = append(rest, w)
		}
	}

	in.Category = strings.Join(rest, " ")
	known := false
	for _, w := range rest {
		if categories[w] || categories[strings.TrimSuffix(w, "s")] {
			known = true
		}
	}
	if in.Category == "" && in.Filters.Cuisine != "" {
		in.Category = "restaurant"
		known = true
	}

	conf := baseConfidence
	switch {
	case known:
		conf += knownCategoryBonus
	case in.Category != "":
		conf += otherCategoryBonus
	}
	if in.Location != "" {
		conf += locationBonus
	}
	if !in.Filters.IsEmpty() {
		conf += filterBonus
	}
	in.Confidence = utils.Round1(utils.Clamp(conf, 0, 1))
	return in, nil
}

// extractLocation splits off the text after the last location marker. Trailing filter
// words stay with the query ("sushi in tokyo with wifi").
func extractLocation(text string) (string, string) {
	best, marker := -1, ""
	for _, m := range locationMarkers {
		if i := strings.LastIndex(text, m); i > best {
			best, marker = i, m
		}
	}
	if best < 0 {
		return text, ""
	}

	words := strings.Fields(text[best+len(marker):])
	end := len(words)
	for end > 0 && isFilterWord(words[end-1]) {
		end--
	}
	rest := text[:best] + " " + strings.Join(words[end:], " ") + " "
	loc := strings.Join(words[:end], " ")
	if loc == "me" || loc == "here" {
		loc = ""
	}
	return rest, loc
}

func isFilterWord(w string) bool {
	w = strings.Trim(w, ",.!?")
	return priceWords[w] != nil || dietaryWords[w] != "" || mustHaveWords[w] != "" || cuisines[w] || w == "with"
}

// multiWordPhrases are matched before tokenizing, longest first.
var multiWordPhrases = []struct {
	phrase string
	apply  func(*models.Filters)
}{
	{"open right now", func(f *models.Filters) { f.OpenNow = true }},
	{"wheelchair accessible", func(f *models.Filters) { f.MustHave = appendUnique(f.MustHave, "wheelchair_accessible") }},
	{"outdoor seating", func(f *models.Filters) { f.MustHave = appendUnique(f.MustHave, "outdoor_seating") }},
	{"dog friendly", func(f *models.Filters) { f.MustHave = appendUnique(f.MustHave, "dog_friendly") }},
	{"gluten free", func(f *models.Filters) { f.Dietary = appendUnique(f.Dietary, "gluten_free") }},
	{"still open", func(f *models.Filters) { f.OpenNow = true }},
	{"open now", func(f *models.Filters) { f.OpenNow = true }},
}

// extractPhrases applies and removes multi-word filters.
func extractPhrases(text string, in *models.Intent) string {
	for _, p := range multiWordPhrases {
		needle := " " + p.phrase + " "
		if strings.Contains(text, needle) {
			p.apply(&in.Filters)
			text = strings.ReplaceAll(text, needle, " ")
		}
	}
	return text
}

func mergeLevels(have, add []int) []int {
	for _, l := range add {
		found := false
		for _, h := range have {
			if h == l {
				found = true
				break
			}
		}
		if !found {
			have = append(have, l)
		}
	}
	return have
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// detectLanguage recognizes Japanese script; everything else is left to the caller's default.
func detectLanguage(query string) string {
	for _, r := range query {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return "ja"
		}
	}
	return ""
}
