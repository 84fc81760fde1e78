// Package lexicon wraps the inflection engine used to relate singular
// and plural noun forms. User phrasing and entity extraction surface
// either form, so every graph lookup by concept name goes through the
// synonym set produced here.
package lexicon

import (
	"sort"
	"strings"
	"sync"

	"github.com/gertd/go-pluralize"
)

// Lexicon produces singular/plural forms with a cached inflection
// table. It is safe for concurrent use and is constructor-injected into
// the engines that need it.
type Lexicon struct {
	client *pluralize.Client

	mu        sync.Mutex
	plurals   map[string]string
	singulars map[string]string
}

// New creates a Lexicon with an empty cache.
func New() *Lexicon {
	return &Lexicon{
		client:    pluralize.NewClient(),
		plurals:   make(map[string]string),
		singulars: make(map[string]string),
	}
}

// Plural returns the plural form of a noun, whether the input is
// singular or plural already.
func (l *Lexicon) Plural(noun string) string {
	noun = strings.TrimSpace(strings.ToLower(noun))
	if noun == "" {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.plurals[noun]; ok {
		return p
	}
	// Singularize first: pluralizing an already-plural word can mangle it.
	p := l.client.Plural(l.client.Singular(noun))
	l.plurals[noun] = p
	l.plurals[p] = p
	return p
}

// Singular returns the singular form of a noun, whether the input is
// singular or plural already.
func (l *Lexicon) Singular(noun string) string {
	noun = strings.TrimSpace(strings.ToLower(noun))
	if noun == "" {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.singulars[noun]; ok {
		return s
	}
	s := l.client.Singular(noun)
	l.singulars[noun] = s
	l.singulars[s] = s
	return s
}

// verbFamilies groups the inflected forms that name one relationship.
// The relationship vocabulary is small and closed; verbs outside these
// families keep their own identity.
var verbFamilies = [][]string{
	{"is", "are"},
	{"has", "have"},
	{"eat", "eats"},
	{"live", "lives"},
}

// RelationshipSynonyms returns the verb forms naming the same
// relationship, with the given form first. Unknown verbs return only
// themselves.
func (l *Lexicon) RelationshipSynonyms(name string) []string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil
	}

	for _, family := range verbFamilies {
		for _, form := range family {
			if form != name {
				continue
			}
			out := []string{name}
			for _, f := range family {
				if f != name {
					out = append(out, f)
				}
			}
			return out
		}
	}
	return []string{name}
}

// SynonymousNames returns the deduplicated singular and plural forms of
// a name, sorted for deterministic behavior.
func (l *Lexicon) SynonymousNames(name string) []string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil
	}

	set := map[string]struct{}{name: {}}
	set[l.Singular(name)] = struct{}{}
	set[l.Plural(name)] = struct{}{}

	names := make([]string, 0, len(set))
	for n := range set {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
