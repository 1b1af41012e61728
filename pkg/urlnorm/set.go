package urlnorm

// URLSet is an immutable set of canonical URLs. Members and lookups are
// canonicalized with the same Canonicalizer.
type URLSet struct {
	canon *Canonicalizer
	items map[string]struct{}
}

// NewURLSet builds a set from raw urls
func NewURLSet(canon *Canonicalizer, urls []string) URLSet {
	items := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if key := canon.Canonical(u); key != "" {
			items[key] = struct{}{}
		}
	}
	return URLSet{canon: canon, items: items}
}

// Contains reports whether the canonical form of rawURL is in the set
func (s URLSet) Contains(rawURL string) bool {
	if s.items == nil {
		return false
	}
	_, ok := s.items[s.canon.Canonical(rawURL)]
	return ok
}

// Len returns the number of distinct canonical URLs
func (s URLSet) Len() int {
	return len(s.items)
}
