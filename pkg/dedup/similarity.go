package dedup

import (
	"strings"
	"unicode"

	"github.com/umputun/newsvault/pkg/domain"
)

// SimilarPair is a best-effort near-duplicate suspicion between two articles with different URLs
type SimilarPair struct {
	A, B  domain.CollectedArticle
	Score float64
}

// SimilarTitles reports pairs of articles whose title token sets have Jaccard similarity >= threshold.
// This is a heuristic signal for logging and review only, it never removes articles;
// URL canonical match in Filter is the only hard guarantee.
func SimilarTitles(articles []domain.CollectedArticle, threshold float64) []SimilarPair {
	if threshold <= 0 || threshold > 1 {
		return nil
	}

	tokens := make([]map[string]struct{}, len(articles))
	for i, a := range articles {
		tokens[i] = titleTokens(a.Title)
	}

	var res []SimilarPair
	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			if articles[i].URL == articles[j].URL {
				continue
			}
			if score := jaccard(tokens[i], tokens[j]); score >= threshold {
				res = append(res, SimilarPair{A: articles[i], B: articles[j], Score: score})
			}
		}
	}
	return res
}

func titleTokens(title string) map[string]struct{} {
	res := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		res[w] = struct{}{}
	}
	return res
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
