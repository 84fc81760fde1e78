// Package query answers structured questions against the knowledge
// graph. Each intent maps to one resolver; every resolver leans on the
// same primitives: synonym expansion, species generalization over "is"
// edges, and negation inversion.
package query

import (
	"context"
	"sort"
	"strings"

	"faunagraph/backend/internal/graph"
	"faunagraph/backend/internal/lexicon"
	"faunagraph/backend/internal/nlp"
	apperrors "faunagraph/backend/pkg/errors"
	"faunagraph/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	isRelationship  = "is"
	speciesConcept  = "species"
	defaultCategory = "animal"
)

type resolverFunc func(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error)

// Engine is the query answering engine. It never mutates the graph.
type Engine struct {
	store     graph.Store
	parser    nlp.Parser
	lex       *lexicon.Lexicon
	logger    *zap.Logger
	resolvers map[string]resolverFunc
}

// NewEngine creates a query engine with its closed intent map. Intents
// outside this map are a programming error at answer time, distinct
// from an empty answer.
func NewEngine(store graph.Store, parser nlp.Parser, lex *lexicon.Lexicon) *Engine {
	e := &Engine{
		store:  store,
		parser: parser,
		lex:    lex,
		logger: logger.Get(),
	}
	e.resolvers = map[string]resolverFunc{
		"animal_attribute": e.attributeQuery,
		"animal_eat":       e.eatQuery,
		"animal_place":     e.placeQuery,
		"animal_fur":       e.furQuery,
		"animal_scales":    e.scalesQuery,
		"animal_how_many":  e.howManyQuery,
		"which_animal":     e.whichAnimalQuery,
	}
	return e
}

// Answer processes one question sentence. A well-formed question that
// matches nothing returns an empty answer, not an error.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	text := nlp.NormalizeSentence(question)
	if text == "" {
		return nil, apperrors.NewInvalidQueryData("empty question")
	}

	parsed, err := e.parser.Parse(ctx, text)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeParser) {
			return nil, err
		}
		return nil, apperrors.NewInvalidQueryData(err.Error())
	}

	resolver, err := e.resolverFor(parsed.Intent)
	if err != nil {
		return nil, err
	}

	answer, err := resolver(ctx, parsed)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Question answered",
		zap.String("text", text),
		zap.String("intent", parsed.Intent),
		zap.Bool("empty", answer.IsEmpty()),
	)
	return answer, nil
}

// resolverFor normalizes an intent and maps it to a resolver. Intents
// ending in "_fact" reach the query engine for some yes/no questions
// and are answered as the generic attribute query; otherwise the
// trailing "_question"/"_query" segment is stripped.
func (e *Engine) resolverFor(intent string) (resolverFunc, error) {
	normalized := strings.ToLower(intent)
	if strings.HasSuffix(normalized, "_fact") {
		normalized = "animal_attribute"
	} else if idx := strings.LastIndex(normalized, "_"); idx > 0 {
		normalized = normalized[:idx]
	}

	resolver, ok := e.resolvers[normalized]
	if !ok {
		return nil, apperrors.NewNoResolver(intent)
	}
	return resolver, nil
}

// ============================================================================
// Shared primitives
// ============================================================================

// selectMatching expands the name lists into pattern lookups. Nil name
// lists act as wildcards. The relationship name expands over its verb
// family, since stored edges may carry any form; edges reached through
// several combinations are reported once. With stopOnMatch, later
// combinations are skipped once anything has matched.
func (e *Engine) selectMatching(ctx context.Context, typeName string, number *int, subjectNames, objectNames []string, stopOnMatch bool) ([]*graph.Relationship, error) {
	subjects := subjectNames
	if len(subjects) == 0 {
		subjects = []string{""}
	}
	objects := objectNames
	if len(objects) == 0 {
		objects = []string{""}
	}

	var all []*graph.Relationship
	seen := make(map[string]bool)
	for _, rel := range e.lex.RelationshipSynonyms(typeName) {
		for _, s := range subjects {
			for _, o := range objects {
				if len(all) > 0 && stopOnMatch {
					return all, nil
				}
				matches, err := e.store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
					TypeName:    rel,
					SubjectName: s,
					ObjectName:  o,
					Count:       number,
				})
				if err != nil {
					return nil, apperrors.NewGraphQueryFailed("pattern lookup", err)
				}
				for _, m := range matches {
					if !seen[m.ID] {
						seen[m.ID] = true
						all = append(all, m)
					}
				}
			}
		}
	}
	return all, nil
}

// conceptIsSpecies reports whether a name denotes a category: any of
// its synonyms carries an "is" edge to the species concept.
func (e *Engine) conceptIsSpecies(ctx context.Context, name string) (bool, error) {
	matches, err := e.selectMatching(ctx, isRelationship, nil,
		e.lex.SynonymousNames(name), []string{speciesConcept}, true)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// conceptTypes returns the names a concept has "is" edges to.
func (e *Engine) conceptTypes(ctx context.Context, conceptName string) ([]string, error) {
	matches, err := e.store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    isRelationship,
		SubjectName: conceptName,
	})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("pattern lookup", err)
	}
	var names []string
	for _, m := range matches {
		if m.Object != nil {
			names = append(names, m.Object.Name)
		}
	}
	return names, nil
}

// filterByConceptType keeps edges whose subject (or object) concept
// carries an "is" edge to one of the target type names.
func (e *Engine) filterByConceptType(ctx context.Context, matches []*graph.Relationship, targetTypes []string, onSubject bool) ([]*graph.Relationship, error) {
	target := make(map[string]bool, len(targetTypes))
	for _, t := range targetTypes {
		target[t] = true
	}

	typeCache := make(map[string][]string)
	var out []*graph.Relationship
	for _, m := range matches {
		concept := m.Object
		if onSubject {
			concept = m.Subject
		}
		if concept == nil {
			continue
		}
		types, ok := typeCache[concept.Name]
		if !ok {
			var err error
			types, err = e.conceptTypes(ctx, concept.Name)
			if err != nil {
				return nil, err
			}
			typeCache[concept.Name] = types
		}
		for _, t := range types {
			if target[t] {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// selectByConceptType returns all concepts carrying an "is" edge to one
// of the given type names: the extension of a category.
func (e *Engine) selectByConceptType(ctx context.Context, conceptTypes []string) ([]*graph.Concept, error) {
	matches, err := e.selectMatching(ctx, isRelationship, nil, nil, conceptTypes, false)
	if err != nil {
		return nil, err
	}
	var out []*graph.Concept
	for _, m := range matches {
		if m.Subject != nil {
			out = append(out, m.Subject)
		}
	}
	return out, nil
}

func subjectNames(matches []*graph.Relationship) []string {
	var names []string
	for _, m := range matches {
		if m.Subject != nil {
			names = append(names, m.Subject.Name)
		}
	}
	return uniqueSorted(names)
}

func objectNames(matches []*graph.Relationship) []string {
	var names []string
	for _, m := range matches {
		if m.Object != nil {
			names = append(names, m.Object.Name)
		}
	}
	return uniqueSorted(names)
}

func uniqueSorted(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
