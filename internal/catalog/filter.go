package catalog

import "regexp"

// Filter is a compiled free-text match. The user text is quoted before it
// becomes a pattern, so metacharacters in it match literally.
type Filter struct {
	partial *regexp.Regexp
	slug    *regexp.Regexp
}

// NewFilter compiles text; empty text yields a filter that matches everything.
func NewFilter(text string) *Filter {
	if text == "" {
		return &Filter{}
	}
	safe := regexp.QuoteMeta(text)
	return &Filter{
		partial: regexp.MustCompile("(?i)" + safe),
		slug:    regexp.MustCompile("(?i)^" + safe + "$"),
	}
}

// Match reports whether b's title, any author, or isbn contains the text
// (case-insensitive), or b's slug equals it exactly (case-insensitive).
func (f *Filter) Match(b *Book) bool {
	if f.partial == nil {
		return true
	}
	if f.partial.MatchString(b.Title) || f.partial.MatchString(b.ISBN) {
		return true
	}
	for _, a := range b.Authors {
		if f.partial.MatchString(a) {
			return true
		}
	}
	return f.slug.MatchString(b.Slug)
}
