// Package dedup removes collected articles already published in the tracker.
// It runs right after collection so that extraction and summarization are never spent
// on articles which would be dropped anyway.
package dedup

import (
	"github.com/go-pkgz/lgr"

	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/urlnorm"
)

// Filter returns articles whose canonical URL is not in existing. Articles sharing a canonical URL
// inside the same collection are collapsed to the first occurrence. The returned slice is a subset
// of articles in the original order, removed is len(articles)-len(kept).
func Filter(canon *urlnorm.Canonicalizer, articles []domain.CollectedArticle, existing urlnorm.URLSet) (kept []domain.CollectedArticle, removed int) {
	kept = make([]domain.CollectedArticle, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))

	for _, a := range articles {
		key := canon.Canonical(a.URL)
		if existing.Contains(a.URL) {
			lgr.Printf("[DEBUG] skip already published %s (%s)", a.URL, a.FeedSource)
			removed++
			continue
		}
		if _, ok := seen[key]; ok {
			lgr.Printf("[DEBUG] skip repeated %s (%s)", a.URL, a.FeedSource)
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, a)
	}
	return kept, removed
}
