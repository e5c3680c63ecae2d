package search

import (
	"fmt"
	"regexp"
)

// Entity is a named entity whose name doubles as a common noun.
// Canonical is the capitalized form, e.g. "Mother"; Aliases are the informal
// lowercase forms a query may use, e.g. "mother".
type Entity struct {
	Canonical string
	Aliases   []string
}

type entityMatcher struct {
	entity    Entity
	canonical *regexp.Regexp
	aliases   []*regexp.Regexp
}

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
}

func newEntityMatcher(e Entity) (*entityMatcher, error) {
	if e.Canonical == "" || len(e.Aliases) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntity, e.Canonical)
	}
	m := &entityMatcher{entity: e, canonical: wordPattern(e.Canonical)}
	for _, alias := range e.Aliases {
		if alias == "" {
			return nil, fmt.Errorf("%w: %q has an empty alias", ErrInvalidEntity, e.Canonical)
		}
		m.aliases = append(m.aliases, wordPattern(alias))
	}
	return m, nil
}

// mentionsAlias reports whether text uses one of the informal forms.
// Matching is case-sensitive.
func (m *entityMatcher) mentionsAlias(text string) bool {
	for _, alias := range m.aliases {
		if alias.MatchString(text) {
			return true
		}
	}
	return false
}

// ambiguous reports whether text uses an informal form without ever naming
// the entity canonically.
func (m *entityMatcher) ambiguous(text string) bool {
	return m.mentionsAlias(text) && !m.canonical.MatchString(text)
}
