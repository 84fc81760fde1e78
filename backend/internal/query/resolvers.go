package query

import (
	"context"

	"faunagraph/backend/internal/graph"
	"faunagraph/backend/internal/nlp"
	apperrors "faunagraph/backend/pkg/errors"
	"go.uber.org/zap"
)

// attributeQuery answers "do/does X <relationship> Y?" with yes/no.
// When the direct subject+object match fails, whichever side denotes a
// species is relaxed to its extension before concluding "no".
func (e *Engine) attributeQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	return e.attribute(ctx, p, p.RelationshipTypeName, p.SubjectName, p.ObjectName)
}

func (e *Engine) attribute(ctx context.Context, p *nlp.ParsedSentence, relName, subjectName, objectName string) (*Answer, error) {
	if relName == "" || subjectName == "" || objectName == "" {
		return nil, apperrors.NewInvalidQueryData("attribute query requires subject, object and relationship")
	}

	matches, err := e.selectMatching(ctx, relName, p.RelationshipNumber,
		e.lex.SynonymousNames(subjectName), e.lex.SynonymousNames(objectName), true)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		subjectIsSpecies, err := e.conceptIsSpecies(ctx, subjectName)
		if err != nil {
			return nil, err
		}
		if subjectIsSpecies {
			e.logger.Debug("Relaxing subject to species extension",
				zap.String("subject", subjectName),
				zap.String("relationship", relName),
			)
			base, err := e.selectMatching(ctx, relName, p.RelationshipNumber,
				nil, e.lex.SynonymousNames(objectName), true)
			if err != nil {
				return nil, err
			}
			matches, err = e.filterByConceptType(ctx, base, e.lex.SynonymousNames(subjectName), true)
			if err != nil {
				return nil, err
			}
		} else {
			objectIsSpecies, err := e.conceptIsSpecies(ctx, objectName)
			if err != nil {
				return nil, err
			}
			if objectIsSpecies {
				e.logger.Debug("Relaxing object to species extension",
					zap.String("object", objectName),
					zap.String("relationship", relName),
				)
				base, err := e.selectMatching(ctx, relName, p.RelationshipNumber,
					e.lex.SynonymousNames(subjectName), nil, true)
				if err != nil {
					return nil, err
				}
				matches, err = e.filterByConceptType(ctx, base, e.lex.SynonymousNames(objectName), false)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	return yesNo(len(matches) >= 1), nil
}

// eatQuery answers "what does X eat?" with the sorted food list.
func (e *Engine) eatQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" {
		return nil, apperrors.NewInvalidQueryData("eat query requires a subject")
	}
	return e.valuesQuery(ctx, "eat", p.SubjectName)
}

// placeQuery answers "where does X live?" with the sorted place list.
func (e *Engine) placeQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" {
		return nil, apperrors.NewInvalidQueryData("place query requires a subject")
	}
	return e.valuesQuery(ctx, "live", p.SubjectName)
}

// furQuery and scalesQuery are the attribute query specialized to a
// fixed object.
func (e *Engine) furQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" {
		return nil, apperrors.NewInvalidQueryData("fur query requires a subject")
	}
	return e.attribute(ctx, p, "has", p.SubjectName, "fur")
}

func (e *Engine) scalesQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" {
		return nil, apperrors.NewInvalidQueryData("scales query requires a subject")
	}
	return e.attribute(ctx, p, "has", p.SubjectName, "scales")
}

// valuesQuery lists the object concepts linked to the subject by the
// relationship, generalizing a species subject to its extension.
func (e *Engine) valuesQuery(ctx context.Context, relName, subjectName string) (*Answer, error) {
	subjectIsSpecies, err := e.conceptIsSpecies(ctx, subjectName)
	if err != nil {
		return nil, err
	}

	var matches []*graph.Relationship
	if subjectIsSpecies {
		base, err := e.selectMatching(ctx, relName, nil, nil, nil, false)
		if err != nil {
			return nil, err
		}
		matches, err = e.filterByConceptType(ctx, base, e.lex.SynonymousNames(subjectName), true)
		if err != nil {
			return nil, err
		}
	} else {
		matches, err = e.selectMatching(ctx, relName, nil, e.lex.SynonymousNames(subjectName), nil, false)
		if err != nil {
			return nil, err
		}
	}
	return nameList(objectNames(matches)), nil
}

// whichAnimalQuery answers "which animals <relationship> Y?" with the
// sorted set of matching subjects, inverted within the category's
// extension when the relationship is negated.
func (e *Engine) whichAnimalQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" || p.ObjectName == "" || p.RelationshipTypeName == "" {
		return nil, apperrors.NewInvalidQueryData("which-animal query requires subject, object and relationship")
	}

	matches, err := e.selectMatching(ctx, p.RelationshipTypeName, p.RelationshipNumber,
		nil, e.lex.SynonymousNames(p.ObjectName), false)
	if err != nil {
		return nil, err
	}

	// Query the species extension even when the direct lookup matched:
	// an object name is sometimes a direct reference and sometimes a
	// member of the species.
	objectIsSpecies, err := e.conceptIsSpecies(ctx, p.ObjectName)
	if err != nil {
		return nil, err
	}
	if objectIsSpecies {
		all, err := e.selectMatching(ctx, p.RelationshipTypeName, p.RelationshipNumber, nil, nil, false)
		if err != nil {
			return nil, err
		}
		bySpecies, err := e.filterByConceptType(ctx, all, e.lex.SynonymousNames(p.ObjectName), false)
		if err != nil {
			return nil, err
		}
		matches = append(matches, bySpecies...)
	}

	// Require subjects to belong to the implied category: "animal" by
	// default, or the specific species the question names.
	categoryNames := e.lex.SynonymousNames(defaultCategory)
	subjectIsSpecies, err := e.conceptIsSpecies(ctx, p.SubjectName)
	if err != nil {
		return nil, err
	}
	if subjectIsSpecies {
		categoryNames = e.lex.SynonymousNames(p.SubjectName)
	}
	matches, err = e.filterByConceptType(ctx, matches, categoryNames, true)
	if err != nil {
		return nil, err
	}

	names := subjectNames(matches)

	if p.RelationshipNegation {
		universe, err := e.selectByConceptType(ctx, categoryNames)
		if err != nil {
			return nil, err
		}
		matched := make(map[string]bool, len(names))
		for _, n := range names {
			matched[n] = true
		}
		var inverted []string
		for _, c := range universe {
			if !matched[c.Name] {
				inverted = append(inverted, c.Name)
			}
		}
		names = uniqueSorted(inverted)
	}

	return nameList(names), nil
}

// howManyQuery answers "how many ...?". A category subject counts the
// which-animal result; a specific subject reads the count attribute of
// the single matching edge.
func (e *Engine) howManyQuery(ctx context.Context, p *nlp.ParsedSentence) (*Answer, error) {
	if p.SubjectName == "" || p.ObjectName == "" || p.RelationshipTypeName == "" {
		return nil, apperrors.NewInvalidQueryData("how-many query requires subject, object and relationship")
	}

	generic, err := e.subjectDenotesCategory(ctx, p.SubjectName)
	if err != nil {
		return nil, err
	}

	if generic {
		answer, err := e.whichAnimalQuery(ctx, p)
		if err != nil {
			return nil, err
		}
		n := len(answer.Names)
		return countOf(&n), nil
	}

	matches, err := e.selectMatching(ctx, p.RelationshipTypeName, nil,
		e.lex.SynonymousNames(p.SubjectName), e.lex.SynonymousNames(p.ObjectName), true)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return countOf(nil), nil
	}
	return countOf(matches[0].Count), nil
}

// subjectDenotesCategory reports whether the subject names the default
// category or any species, rather than a specific individual.
func (e *Engine) subjectDenotesCategory(ctx context.Context, name string) (bool, error) {
	for _, n := range e.lex.SynonymousNames(defaultCategory) {
		if n == name {
			return true, nil
		}
	}
	return e.conceptIsSpecies(ctx, name)
}
