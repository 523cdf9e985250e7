package narration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/truth"
)

// phrases is one language's template set.
type phrases struct {
	found        string // count, query
	foundOne     string // query
	topHint      string
	weak         string // query
	noResults    string // query
	liveData     string
	infra        string
	lowConf      string // query
	noLocation   string
	suggest      string // chip labels
	listSep      string
	unknownQuery string
}

var templates = map[language.Base]phrases{
	mustBase(language.English): {
		found:        "I found %d places for %q.",
		foundOne:     "I found one place for %q.",
		topHint:      "The best matches are at the top.",
		weak:         "These are only loose matches for %q.",
		noResults:    "I couldn't find any places for %q.",
		liveData:     "I can't confirm which places are open right now.",
		infra:        "The place search is having trouble at the moment.",
		lowConf:      "I'm not sure what you meant by %q.",
		noLocation:   "I couldn't pinpoint that location.",
		suggest:      "You could try: %s.",
		listSep:      ", ",
		unknownQuery: "your search",
	},
	mustBase(language.Spanish): {
		found:        "Encontré %d lugares para %q.",
		foundOne:     "Encontré un lugar para %q.",
		topHint:      "Los mejores resultados aparecen primero.",
		weak:         "Estos resultados solo se parecen a %q.",
		noResults:    "No encontré lugares para %q.",
		liveData:     "No puedo confirmar qué lugares están abiertos ahora.",
		infra:        "La búsqueda de lugares tiene problemas en este momento.",
		lowConf:      "No estoy seguro de lo que quisiste decir con %q.",
		noLocation:   "No pude ubicar ese lugar.",
		suggest:      "Puedes probar: %s.",
		listSep:      ", ",
		unknownQuery: "tu búsqueda",
	},
	mustBase(language.Japanese): {
		found:        "%[2]qの検索結果が%[1]d件見つかりました。",
		foundOne:     "%qの検索結果が1件見つかりました。",
		topHint:      "おすすめ順に表示しています。",
		weak:         "%qに近い結果のみです。",
		noResults:    "%qに一致する場所が見つかりませんでした。",
		liveData:     "現在営業中かどうか確認できません。",
		infra:        "現在、場所検索で問題が発生しています。",
		lowConf:      "%qの意味がよくわかりませんでした。",
		noLocation:   "その場所を特定できませんでした。",
		suggest:      "次をお試しください：%s。",
		listSep:      "、",
		unknownQuery: "検索",
	},
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Spanish, language.Japanese})

func mustBase(t language.Tag) language.Base {
	b, _ := t.Base()
	return b
}

// NormalizeLanguage maps a BCP 47 tag to the closest supported language code, defaulting to "en".
func NormalizeLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	matched, _, _ := matcher.Match(t)
	return mustBase(matched).String()
}

func phrasesFor(tag string) phrases {
	b, _ := language.Make(NormalizeLanguage(tag)).Base()
	if p, ok := templates[b]; ok {
		return p
	}
	return templates[mustBase(language.English)]
}

// TemplateNarrator produces deterministic text from the response mode and context flags.
type TemplateNarrator struct {
	// WordsPerChunk controls increment size; Pace is an optional delay between increments.
	WordsPerChunk int
	Pace          time.Duration
}

// NewTemplateNarrator creates a TemplateNarrator emitting three words per increment.
func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{WordsPerChunk: 3}
}

func (n *TemplateNarrator) Name() string { return "template" }

// Narrate streams Fallback text in word chunks.
func (n *TemplateNarrator) Narrate(ctx context.Context, req Request, out chan<- string) (Result, error) {
	text := Fallback(req.Context, req.Mode)
	for _, chunk := range chunkWords(text, n.WordsPerChunk) {
		if err := emit(ctx, out, chunk); err != nil {
			return Result{}, err
		}
		if n.Pace > 0 {
			select {
			case <-time.After(n.Pace):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}
	}
	return defaultActions(req.Context), nil
}

// Fallback returns the complete templated message for ctx and mode. It is also used
// whenever another narrator fails.
func Fallback(ctx models.AssistantContext, mode models.ResponseMode) string {
	p := phrasesFor(ctx.Language)
	query := ctx.Query
	if strings.TrimSpace(query) == "" {
		query = p.unknownQuery
	}

	var parts []string
	switch mode {
	case models.ModeClarify:
		if ctx.IsLowConfidence {
			parts = append(parts, fmt.Sprintf(p.lowConf, query))
		} else {
			parts = append(parts, p.noLocation)
		}
	case models.ModeRecovery:
		switch {
		case ctx.ResultCount == 0 && ctx.HasChip(truth.ChipRetrySearch):
			parts = append(parts, p.infra)
		case ctx.ResultCount == 0:
			parts = append(parts, fmt.Sprintf(p.noResults, query))
		case ctx.RequiresLiveData:
			parts = append(parts, found(p, ctx.ResultCount, query), p.liveData)
		default:
			parts = append(parts, found(p, ctx.ResultCount, query), fmt.Sprintf(p.weak, query))
		}
	default:
		parts = append(parts, found(p, ctx.ResultCount, query), p.topHint)
	}

	if labels := chipLabels(ctx); len(labels) > 0 {
		parts = append(parts, fmt.Sprintf(p.suggest, strings.Join(labels, p.listSep)))
	}
	return strings.Join(parts, " ")
}

func found(p phrases, n int, query string) string {
	if n == 1 {
		return fmt.Sprintf(p.foundOne, query)
	}
	return fmt.Sprintf(p.found, n, query)
}

// chipLabels returns at most three chip labels, in allowlist order.
func chipLabels(ctx models.AssistantContext) []string {
	var labels []string
	for _, c := range ctx.Chips {
		if len(labels) == 3 {
			break
		}
		labels = append(labels, c.Label)
	}
	return labels
}

// chunkWords splits text into increments of n words. Concatenating the chunks yields text.
func chunkWords(text string, n int) []string {
	if n <= 0 {
		n = 1
	}
	words := strings.SplitAfter(text, " ")
	var chunks []string
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], ""))
	}
	return chunks
}
