// Package pluralization derives table and entity set names from type names.
package pluralization

import (
	"strings"
	"sync"

	"github.com/gertd/go-pluralize"

	"github.com/deep-rent/ormconf/resolve"
)

// Pluralizer converts words between their singular and plural forms.
type Pluralizer interface {
	Pluralize(word string) string
	Singularize(word string) string
}

// Service is the tag of the Pluralizer service.
var Service = resolve.NewService[Pluralizer]("pluralization service")

// English is the default Pluralizer. It is safe for concurrent use.
type English struct {
	mu sync.RWMutex
	c  *pluralize.Client
}

// NewEnglish creates an English pluralizer, optionally seeded with
// irregular singular/plural pairs.
func NewEnglish(irregular ...[2]string) *English {
	e := &English{c: pluralize.NewClient()}
	for _, p := range irregular {
		e.AddWord(p[0], p[1])
	}
	return e
}

// AddWord registers an irregular pair. If plural is empty, the word is
// treated as uncountable.
func (e *English) AddWord(singular, plural string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if plural == "" {
		e.c.AddUncountableRule(singular)
		return
	}
	e.c.AddIrregularRule(singular, plural)
}

// Pluralize implements Pluralizer.
func (e *English) Pluralize(word string) string {
	if strings.TrimSpace(word) == "" {
		return word
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.c.Plural(word)
}

// Singularize implements Pluralizer.
func (e *English) Singularize(word string) string {
	if strings.TrimSpace(word) == "" {
		return word
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.c.Singular(word)
}

var _ Pluralizer = (*English)(nil)
