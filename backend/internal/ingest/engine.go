// Package ingest turns structured fact parses into knowledge graph
// edges, maintaining the graph invariants: triple uniqueness, no
// contradictory counts, no type-hierarchy loops, and fact provenance on
// every edge it writes.
package ingest

import (
	"context"
	"errors"
	"time"

	"faunagraph/backend/internal/graph"
	"faunagraph/backend/internal/lexicon"
	"faunagraph/backend/internal/nlp"
	apperrors "faunagraph/backend/pkg/errors"
	"faunagraph/backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// isRelationship is the edge label that forms the type hierarchy. The
// engine gives it two special behaviors: loop prevention on ingest and
// category generalization on query.
const isRelationship = "is"

// Engine is the fact ingestion engine. One Ingest call is one unit of
// work: all writes land in a single changeset committed atomically.
type Engine struct {
	store  graph.Store
	parser nlp.Parser
	lex    *lexicon.Lexicon
	logger *zap.Logger
	flight singleflight.Group
}

// NewEngine creates an ingestion engine on the given store, parser and
// lexicon.
func NewEngine(store graph.Store, parser nlp.Parser, lex *lexicon.Lexicon) *Engine {
	return &Engine{
		store:  store,
		parser: parser,
		lex:    lex,
		logger: logger.Get(),
	}
}

// Ingest processes one fact sentence and returns its Fact record.
// Resubmitting a known sentence, or a sentence whose content is already
// represented, returns the original fact: ingestion is idempotent by
// text and by semantic content. Contradictions fail with a conflict
// error naming the offending fact.
func (e *Engine) Ingest(ctx context.Context, sentence string) (*graph.Fact, error) {
	text := nlp.NormalizeSentence(sentence)
	if text == "" {
		return nil, apperrors.NewSentenceParse(sentence)
	}

	// Concurrent submissions of the same sentence collapse onto one
	// execution; the store's triple constraint backstops anything that
	// slips past.
	v, err, _ := e.flight.Do(text, func() (interface{}, error) {
		return e.ingestText(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Fact), nil
}

func (e *Engine) ingestText(ctx context.Context, text string) (*graph.Fact, error) {
	var fact *graph.Fact
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		fact, err = e.tryIngest(ctx, text)
		if errors.Is(err, graph.ErrEdgeExists) && attempt == 0 {
			// Lost a race; the winner's records are visible now, so a
			// second resolution pass lands on the duplicate path.
			e.logger.Warn("Changeset collided with concurrent write, re-resolving",
				zap.String("text", text),
			)
			continue
		}
		break
	}
	return fact, err
}

func (e *Engine) tryIngest(ctx context.Context, text string) (*graph.Fact, error) {
	// Fast idempotent path: no parser call, no graph mutation.
	existing, err := e.store.FactByText(ctx, text)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("fact lookup", err)
	}
	if existing != nil {
		e.logger.Debug("Sentence already ingested",
			zap.String("fact_id", existing.ID),
			zap.String("text", text),
		)
		return existing, nil
	}

	parsed, err := e.parser.Parse(ctx, text)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeParser) {
			return nil, err
		}
		return nil, apperrors.NewInvalidFactData(err.Error())
	}
	if err := parsed.ValidateFact(); err != nil {
		return nil, apperrors.NewInvalidFactData(err.Error())
	}

	factID := graph.NewID()
	res := newResolution()

	subject, err := e.resolveTypedConcept(ctx, res, parsed.SubjectName, parsed.SubjectType, factID)
	if err != nil {
		return nil, err
	}
	object, err := e.resolveTypedConcept(ctx, res, parsed.ObjectName, parsed.ObjectType, factID)
	if err != nil {
		return nil, err
	}

	relType, err := e.resolveRelationshipType(ctx, res, parsed.RelationshipTypeName)
	if err != nil {
		return nil, err
	}

	outcome, err := e.resolveEdge(ctx, res, subject, object, relType, parsed.RelationshipNumber, factID)
	if err != nil {
		return nil, err
	}

	if outcome.kind == edgeDuplicate {
		orig, err := e.store.FactByID(ctx, outcome.existingFactID)
		if err != nil {
			return nil, apperrors.NewGraphQueryFailed("fact lookup", err)
		}
		if orig != nil {
			e.logger.Info("Duplicate fact, returning original",
				zap.String("fact_id", orig.ID),
				zap.String("text", text),
			)
			return orig, nil
		}
		// The matching edge has no surviving owner; adopt it.
		res.cs.EdgeUpdates = append(res.cs.EdgeUpdates, graph.EdgeUpdate{
			RelationshipID: outcome.existingEdgeID,
			Count:          outcome.existingCount,
			FactID:         factID,
		})
	}

	fact := &graph.Fact{
		ID:         factID,
		Text:       text,
		ParsedData: parsed.Raw,
		CreatedAt:  time.Now().UTC(),
	}
	res.cs.Fact = fact

	if err := e.store.Apply(ctx, res.cs); err != nil {
		if errors.Is(err, graph.ErrEdgeExists) {
			return nil, err
		}
		return nil, apperrors.NewGraphQueryFailed("changeset commit", err)
	}

	e.logger.Info("Fact ingested",
		zap.String("fact_id", factID),
		zap.String("text", text),
		zap.String("intent", parsed.Intent),
		zap.Int("new_relationships", len(res.cs.Relationships)),
		zap.Bool("enriched", outcome.kind == edgeEnriched),
	)
	return fact, nil
}

// GetFact retrieves a fact by id.
func (e *Engine) GetFact(ctx context.Context, factID string) (*graph.Fact, error) {
	fact, err := e.store.FactByID(ctx, factID)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("fact lookup", err)
	}
	if fact == nil {
		return nil, apperrors.NewFactNotFound(factID)
	}
	return fact, nil
}

// DeleteFact removes a fact and the relationships it owns. Concepts and
// relationship types stay, as they may be shared with other facts.
func (e *Engine) DeleteFact(ctx context.Context, factID string) error {
	err := e.store.DeleteFact(ctx, factID)
	if errors.Is(err, graph.ErrFactMissing) {
		return apperrors.NewFactNotFound(factID)
	}
	if err != nil {
		return apperrors.NewGraphQueryFailed("fact delete", err)
	}
	return nil
}

// ============================================================================
// Resolution
// ============================================================================

// resolution accumulates one ingestion call's staged records so that a
// name referenced twice in the same sentence resolves to one instance.
type resolution struct {
	cs       *graph.Changeset
	concepts map[string]*graph.Concept
	types    map[string]*graph.RelationshipType
	edges    map[edgeKey]*graph.Relationship
}

type edgeKey struct {
	subjectID string
	objectID  string
	typeID    string
}

func newResolution() *resolution {
	return &resolution{
		cs:       &graph.Changeset{},
		concepts: make(map[string]*graph.Concept),
		types:    make(map[string]*graph.RelationshipType),
		edges:    make(map[edgeKey]*graph.Relationship),
	}
}

// resolveConcept finds a concept by name in the staged set or the
// store, staging a new unsaved instance when absent.
func (e *Engine) resolveConcept(ctx context.Context, res *resolution, name string) (*graph.Concept, error) {
	if c, ok := res.concepts[name]; ok {
		return c, nil
	}
	c, err := e.store.ConceptByName(ctx, name)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("concept lookup", err)
	}
	if c == nil {
		c = &graph.Concept{ID: graph.NewID(), Name: name}
		res.cs.Concepts = append(res.cs.Concepts, c)
	}
	res.concepts[name] = c
	return c, nil
}

// resolveRelationshipType finds a relationship type by name, reusing
// the id of any persisted verb form from the same family so that an
// edge stored under "has" is the same edge a "have" sentence reaches.
func (e *Engine) resolveRelationshipType(ctx context.Context, res *resolution, name string) (*graph.RelationshipType, error) {
	if t, ok := res.types[name]; ok {
		return t, nil
	}

	var sharedID string
	for _, form := range e.lex.RelationshipSynonyms(name) {
		if t, ok := res.types[form]; ok {
			sharedID = t.ID
			break
		}
		t, err := e.store.RelationshipTypeByName(ctx, form)
		if err != nil {
			return nil, apperrors.NewGraphQueryFailed("relationship type lookup", err)
		}
		if t == nil {
			continue
		}
		if form == name {
			res.types[name] = t
			return t, nil
		}
		sharedID = t.ID
		break
	}

	t := &graph.RelationshipType{ID: graph.NewID(), Name: name}
	if sharedID != "" {
		t.ID = sharedID
	}
	res.cs.RelationshipTypes = append(res.cs.RelationshipTypes, t)
	res.types[name] = t
	return t, nil
}

// resolveTypedConcept resolves the named concept and tags it with an
// "is" edge to its declared type concept.
func (e *Engine) resolveTypedConcept(ctx context.Context, res *resolution, name, typeName, factID string) (*graph.Concept, error) {
	concept, err := e.resolveConcept(ctx, res, name)
	if err != nil {
		return nil, err
	}
	if typeName == "" || typeName == name {
		return concept, nil
	}
	typeConcept, err := e.resolveConcept(ctx, res, typeName)
	if err != nil {
		return nil, err
	}
	if err := e.ensureIsEdge(ctx, res, concept, typeConcept, factID); err != nil {
		return nil, err
	}
	return concept, nil
}

// ensureIsEdge resolves or stages the "is" edge subject -> object,
// rejecting edges that would close a type-hierarchy loop.
func (e *Engine) ensureIsEdge(ctx context.Context, res *resolution, subject, object *graph.Concept, factID string) error {
	if subject.ID == object.ID {
		return nil
	}
	isType, err := e.resolveRelationshipType(ctx, res, isRelationship)
	if err != nil {
		return err
	}
	if err := e.checkTypeLoop(ctx, res, subject, object, isType); err != nil {
		return err
	}

	key := edgeKey{subject.ID, object.ID, isType.ID}
	if _, ok := res.edges[key]; ok {
		return nil
	}
	existing, err := e.store.RelationshipByTriple(ctx, subject.ID, object.ID, isType.ID)
	if err != nil {
		return apperrors.NewGraphQueryFailed("relationship lookup", err)
	}
	if existing != nil {
		res.edges[key] = existing
		return nil
	}

	edge := &graph.Relationship{
		ID:        graph.NewID(),
		SubjectID: subject.ID,
		ObjectID:  object.ID,
		TypeID:    isType.ID,
		FactID:    factID,
	}
	res.cs.Relationships = append(res.cs.Relationships, edge)
	res.edges[key] = edge
	return nil
}

// checkTypeLoop rejects an "is" edge subject -> object when the reverse
// edge object -> subject already exists, citing the fact that created it.
func (e *Engine) checkTypeLoop(ctx context.Context, res *resolution, subject, object *graph.Concept, isType *graph.RelationshipType) error {
	if staged, ok := res.edges[edgeKey{object.ID, subject.ID, isType.ID}]; ok {
		return apperrors.NewConflictingFact(staged.FactID,
			"reverse type relationship already asserted")
	}
	reverse, err := e.store.RelationshipByTriple(ctx, object.ID, subject.ID, isType.ID)
	if err != nil {
		return apperrors.NewGraphQueryFailed("relationship lookup", err)
	}
	if reverse != nil {
		e.logger.Warn("Rejected type loop",
			zap.String("subject", subject.Name),
			zap.String("object", object.Name),
			zap.String("conflicting_fact_id", reverse.FactID),
		)
		return apperrors.NewConflictingFact(reverse.FactID,
			"reverse type relationship already exists")
	}
	return nil
}

// edgeOutcome reports how the primary edge resolved: created fresh,
// recognized as a duplicate of an existing fact, or enriched with a
// count. Conflicts surface as errors, not outcomes.
type edgeOutcome struct {
	kind           edgeOutcomeKind
	existingFactID string
	existingEdgeID string
	existingCount  *int
}

type edgeOutcomeKind int

const (
	edgeCreated edgeOutcomeKind = iota
	edgeDuplicate
	edgeEnriched
)

func (e *Engine) resolveEdge(ctx context.Context, res *resolution, subject, object *graph.Concept, relType *graph.RelationshipType, count *int, factID string) (edgeOutcome, error) {
	if relType.Name == isRelationship {
		if err := e.checkTypeLoop(ctx, res, subject, object, relType); err != nil {
			return edgeOutcome{}, err
		}
	}

	key := edgeKey{subject.ID, object.ID, relType.ID}
	if _, ok := res.edges[key]; ok {
		// The type-tagging step already staged this exact edge; it
		// belongs to this fact.
		return edgeOutcome{kind: edgeCreated}, nil
	}

	existing, err := e.store.RelationshipByTriple(ctx, subject.ID, object.ID, relType.ID)
	if err != nil {
		return edgeOutcome{}, apperrors.NewGraphQueryFailed("relationship lookup", err)
	}

	if existing == nil {
		edge := &graph.Relationship{
			ID:        graph.NewID(),
			SubjectID: subject.ID,
			ObjectID:  object.ID,
			TypeID:    relType.ID,
			Count:     count,
			FactID:    factID,
		}
		res.cs.Relationships = append(res.cs.Relationships, edge)
		res.edges[key] = edge
		return edgeOutcome{kind: edgeCreated}, nil
	}

	switch {
	case count == nil || (existing.Count != nil && *existing.Count == *count):
		return edgeOutcome{
			kind:           edgeDuplicate,
			existingFactID: existing.FactID,
			existingEdgeID: existing.ID,
			existingCount:  existing.Count,
		}, nil

	case existing.Count != nil:
		e.logger.Warn("Conflicting count for existing relationship",
			zap.String("subject", subject.Name),
			zap.String("object", object.Name),
			zap.Int("stored", *existing.Count),
			zap.Int("submitted", *count),
			zap.String("conflicting_fact_id", existing.FactID),
		)
		return edgeOutcome{}, apperrors.NewConflictingFact(existing.FactID,
			"relationship already exists with a different count")

	default:
		// Null count gaining a value is enrichment, not a conflict.
		res.cs.EdgeUpdates = append(res.cs.EdgeUpdates, graph.EdgeUpdate{
			RelationshipID: existing.ID,
			Count:          count,
			FactID:         factID,
		})
		return edgeOutcome{kind: edgeEnriched}, nil
	}
}
