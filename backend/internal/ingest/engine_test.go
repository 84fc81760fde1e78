package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"faunagraph/backend/internal/graph"
	"faunagraph/backend/internal/lexicon"
	"faunagraph/backend/internal/nlp"
	apperrors "faunagraph/backend/pkg/errors"
)

// stubParser maps normalized sentences to canned parses and counts calls.
type stubParser struct {
	parses map[string]*nlp.ParsedSentence
	err    error
	calls  int
}

func (s *stubParser) Parse(ctx context.Context, sentence string) (*nlp.ParsedSentence, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.parses[sentence]
	if !ok {
		return nil, fmt.Errorf("no canned parse for %q", sentence)
	}
	cp := *p
	cp.Text = sentence
	return &cp, nil
}

func factParse(intent, subject, subjectType, rel, object, objectType string, n *int) *nlp.ParsedSentence {
	return &nlp.ParsedSentence{
		Intent:               intent,
		Confidence:           0.9,
		SubjectName:          subject,
		SubjectType:          subjectType,
		ObjectName:           object,
		ObjectType:           objectType,
		RelationshipTypeName: rel,
		RelationshipNumber:   n,
	}
}

func newTestEngine(parses map[string]*nlp.ParsedSentence) (*Engine, *graph.MemoryStore, *stubParser) {
	store := graph.NewMemoryStore()
	parser := &stubParser{parses: parses}
	return NewEngine(store, parser, lexicon.New()), store, parser
}

func TestIngest_CreatesFactAndEdges(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter lives in rivers": factParse("animal_place_fact",
			"otter", "animal", "live", "river", "place", nil),
	})

	fact, err := engine.Ingest(ctx, "The otter lives in rivers.")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if fact.Text != "the otter lives in rivers" {
		t.Errorf("fact text = %q", fact.Text)
	}

	edges, err := store.RelationshipsByFact(ctx, fact.ID)
	if err != nil {
		t.Fatalf("RelationshipsByFact failed: %v", err)
	}
	// otter-is-animal, river-is-place, otter-live-river
	if len(edges) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(edges))
	}

	primary, err := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "live",
		SubjectName: "otter",
		ObjectName:  "river",
	})
	if err != nil || len(primary) != 1 {
		t.Fatalf("primary edge lookup = %d edges, %v", len(primary), err)
	}
	if primary[0].FactID != fact.ID {
		t.Errorf("edge provenance = %q, want %q", primary[0].FactID, fact.ID)
	}
}

func TestIngest_IdempotentByText(t *testing.T) {
	ctx := context.Background()
	engine, _, parser := newTestEngine(map[string]*nlp.ParsedSentence{
		"otters eat fish": factParse("animal_eat_fact",
			"otter", "animal", "eat", "fish", "food", nil),
	})

	first, err := engine.Ingest(ctx, "Otters eat fish!")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := engine.Ingest(ctx, "otters   eat fish")
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("resubmission created a new fact: %q vs %q", second.ID, first.ID)
	}
	if parser.calls != 1 {
		t.Errorf("parser called %d times, want 1 (fast path must skip it)", parser.calls)
	}
}

func TestIngest_IdempotentByContent(t *testing.T) {
	ctx := context.Background()
	parse := factParse("animal_place_fact", "otter", "animal", "live", "river", "place", nil)
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"otters live in rivers":     parse,
		"an otter lives in a river": parse,
	})

	first, err := engine.Ingest(ctx, "otters live in rivers")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := engine.Ingest(ctx, "an otter lives in a river")
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("semantic duplicate created a new fact: %q vs %q", second.ID, first.ID)
	}
	// The duplicate sentence must not leave a fact record behind.
	if f, _ := store.FactByText(ctx, "an otter lives in a river"); f != nil {
		t.Error("duplicate sentence persisted its own fact")
	}
}

func TestIngest_ConflictingCount(t *testing.T) {
	ctx := context.Background()
	four, five := 4, 5
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter has 4 legs": factParse("animal_attribute_fact",
			"otter", "animal", "has", "legs", "body_part", &four),
		"the otter has 5 legs": factParse("animal_attribute_fact",
			"otter", "animal", "has", "legs", "body_part", &five),
	})

	first, err := engine.Ingest(ctx, "the otter has 4 legs")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	_, err = engine.Ingest(ctx, "the otter has 5 legs")
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var conflict *apperrors.ErrConflictingFact
	if !stderrors.As(err, &conflict) {
		t.Fatalf("error = %T, want ErrConflictingFact", err)
	}
	if conflict.ConflictingFactID != first.ID {
		t.Errorf("conflicting fact id = %q, want %q", conflict.ConflictingFactID, first.ID)
	}

	// Stored count must be untouched.
	edges, _ := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "has",
		SubjectName: "otter",
	})
	if len(edges) != 1 || edges[0].Count == nil || *edges[0].Count != 4 {
		t.Fatalf("stored edge changed: %+v", edges)
	}
	// The rejected sentence must not be recorded.
	if f, _ := store.FactByText(ctx, "the otter has 5 legs"); f != nil {
		t.Error("conflicting sentence persisted its fact")
	}
}

func TestIngest_EnrichesNullCount(t *testing.T) {
	ctx := context.Background()
	four := 4
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter has legs": factParse("animal_attribute_fact",
			"otter", "animal", "has", "legs", "body_part", nil),
		"the otter has 4 legs": factParse("animal_attribute_fact",
			"otter", "animal", "has", "legs", "body_part", &four),
	})

	first, err := engine.Ingest(ctx, "the otter has legs")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := engine.Ingest(ctx, "the otter has 4 legs")
	if err != nil {
		t.Fatalf("enriching Ingest failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("enrichment should create its own fact")
	}

	edges, _ := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "has",
		SubjectName: "otter",
	})
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].Count == nil || *edges[0].Count != 4 {
		t.Errorf("count not enriched: %v", edges[0].Count)
	}
	if edges[0].FactID != second.ID {
		t.Errorf("provenance = %q, want enriching fact %q", edges[0].FactID, second.ID)
	}
}

func TestIngest_CountDuplicateReturnsOriginal(t *testing.T) {
	ctx := context.Background()
	four := 4
	parse := factParse("animal_attribute_fact",
		"otter", "animal", "has", "legs", "body_part", &four)
	engine, _, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter has 4 legs":   parse,
		"an otter has four legs": parse,
	})

	first, err := engine.Ingest(ctx, "the otter has 4 legs")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := engine.Ingest(ctx, "an otter has four legs")
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("equal-count duplicate should return the original fact")
	}
}

// racingStore commits a rival changeset immediately before the first
// Apply, so the wrapped engine's own commit collides on the triple
// constraint the way a concurrent writer's would.
type racingStore struct {
	*graph.MemoryStore
	rival *graph.Changeset
}

func (s *racingStore) Apply(ctx context.Context, cs *graph.Changeset) error {
	if s.rival != nil {
		r := s.rival
		s.rival = nil
		if err := s.MemoryStore.Apply(ctx, r); err != nil {
			return err
		}
	}
	return s.MemoryStore.Apply(ctx, cs)
}

func TestIngest_LostRaceReturnsWinnersFact(t *testing.T) {
	ctx := context.Background()

	subject := &graph.Concept{ID: graph.NewID(), Name: "otter"}
	object := &graph.Concept{ID: graph.NewID(), Name: "river"}
	relType := &graph.RelationshipType{ID: graph.NewID(), Name: "live"}
	winner := &graph.Fact{ID: graph.NewID(), Text: "otters live in rivers"}
	store := &racingStore{
		MemoryStore: graph.NewMemoryStore(),
		rival: &graph.Changeset{
			Concepts:          []*graph.Concept{subject, object},
			RelationshipTypes: []*graph.RelationshipType{relType},
			Relationships: []*graph.Relationship{{
				ID:        graph.NewID(),
				SubjectID: subject.ID,
				ObjectID:  object.ID,
				TypeID:    relType.ID,
				FactID:    winner.ID,
			}},
			Fact: winner,
		},
	}
	parser := &stubParser{parses: map[string]*nlp.ParsedSentence{
		"the otter lives in rivers": factParse("animal_place_fact",
			"otter", "otter", "live", "river", "river", nil),
	}}
	engine := NewEngine(store, parser, lexicon.New())

	fact, err := engine.Ingest(ctx, "the otter lives in rivers")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if fact.ID != winner.ID {
		t.Errorf("fact id = %q, want the concurrent winner %q", fact.ID, winner.ID)
	}
	// The collision forces one re-resolution pass.
	if parser.calls != 2 {
		t.Errorf("parser calls = %d, want 2", parser.calls)
	}

	edges, err := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "live",
		SubjectName: "otter",
		ObjectName:  "river",
	})
	if err != nil || len(edges) != 1 {
		t.Fatalf("edge lookup = %d edges, %v", len(edges), err)
	}
	if edges[0].FactID != winner.ID {
		t.Errorf("edge provenance = %q, want %q", edges[0].FactID, winner.ID)
	}
	// The losing sentence must not leave a fact record behind.
	if f, _ := store.FactByText(ctx, "the otter lives in rivers"); f != nil {
		t.Error("losing submission persisted its own fact")
	}
}

func TestIngest_VerbFormSharesRelationship(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter has fur": factParse("animal_attribute_fact",
			"otter", "animal", "has", "fur", "body_cover", nil),
		"otters have fur": factParse("animal_attribute_fact",
			"otter", "animal", "have", "fur", "body_cover", nil),
	})

	first, err := engine.Ingest(ctx, "the otter has fur")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := engine.Ingest(ctx, "otters have fur")
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	// "have" names the same relationship as "has": the second sentence
	// reaches the stored edge and resolves as a duplicate.
	if second.ID != first.ID {
		t.Errorf("verb form created a new fact: %q vs %q", second.ID, first.ID)
	}
	edges, _ := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "has",
		SubjectName: "otter",
		ObjectName:  "fur",
	})
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
}

func TestIngest_RejectsTypeLoop(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"a shoe is an accessory": factParse("animal_species_fact",
			"shoe", "shoe", "is", "accessory", "accessory", nil),
		"an accessory is a shoe": factParse("animal_species_fact",
			"accessory", "accessory", "is", "shoe", "shoe", nil),
	})

	first, err := engine.Ingest(ctx, "a shoe is an accessory")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	_, err = engine.Ingest(ctx, "an accessory is a shoe")
	if err == nil {
		t.Fatal("expected loop conflict")
	}
	var conflict *apperrors.ErrConflictingFact
	if !stderrors.As(err, &conflict) {
		t.Fatalf("error = %T, want ErrConflictingFact", err)
	}
	if conflict.ConflictingFactID != first.ID {
		t.Errorf("conflicting fact id = %q, want %q", conflict.ConflictingFactID, first.ID)
	}
}

func TestIngest_RejectsEmptySentence(t *testing.T) {
	ctx := context.Background()
	engine, _, parser := newTestEngine(nil)

	for _, s := range []string{"", "   ", "?!.,"} {
		_, err := engine.Ingest(ctx, s)
		if err == nil {
			t.Fatalf("Ingest(%q) succeeded", s)
		}
		if !apperrors.IsErrorType(err, apperrors.ErrorTypeInput) {
			t.Errorf("Ingest(%q) error type = %v, want input", s, err)
		}
	}
	if parser.calls != 0 {
		t.Errorf("parser called %d times for empty input", parser.calls)
	}
}

func TestIngest_RejectsQuestionIntent(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"where do otters live": {
			Intent:               "animal_place_question",
			Confidence:           0.9,
			SubjectName:          "otter",
			SubjectType:          "animal",
			RelationshipTypeName: "live",
		},
	})

	_, err := engine.Ingest(ctx, "where do otters live")
	if err == nil {
		t.Fatal("expected error for question intent")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeInput) {
		t.Errorf("error type = %v, want input", err)
	}
	if f, _ := store.FactByText(ctx, "where do otters live"); f != nil {
		t.Error("rejected sentence persisted a fact")
	}
}

func TestIngest_ParserUnavailablePassesThrough(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	parser := &stubParser{err: apperrors.NewParserUnavailable(fmt.Errorf("connection refused"))}
	engine := NewEngine(store, parser, lexicon.New())

	_, err := engine.Ingest(ctx, "otters eat fish")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeParser) {
		t.Errorf("error type = %v, want parser", err)
	}
}

func TestIngest_SharedEdgeSurvivesSourceDeletion(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(map[string]*nlp.ParsedSentence{
		"the otter is a mammal": factParse("animal_species_fact",
			"otter", "animal", "is", "mammal", "species", nil),
		"otters live in rivers": factParse("animal_place_fact",
			"otter", "animal", "live", "river", "place", nil),
	})

	first, err := engine.Ingest(ctx, "the otter is a mammal")
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	if _, err := engine.Ingest(ctx, "otters live in rivers"); err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if err := engine.DeleteFact(ctx, first.ID); err != nil {
		t.Fatalf("DeleteFact failed: %v", err)
	}

	// Edges owned by the first fact are gone, including the otter-animal
	// tagging edge the second sentence reused.
	isEdges, _ := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "is",
		SubjectName: "otter",
		ObjectName:  "mammal",
	})
	if len(isEdges) != 0 {
		t.Errorf("deleted fact's edge survived: %d", len(isEdges))
	}
	// The second fact's own edges survive.
	liveEdges, _ := store.RelationshipsByPattern(ctx, graph.RelationshipPattern{
		TypeName:    "live",
		SubjectName: "otter",
	})
	if len(liveEdges) != 1 {
		t.Errorf("unrelated edge removed: %d", len(liveEdges))
	}
}

func TestDeleteFact_AllowsResubmission(t *testing.T) {
	ctx := context.Background()
	engine, _, parser := newTestEngine(map[string]*nlp.ParsedSentence{
		"otters eat fish": factParse("animal_eat_fact",
			"otter", "animal", "eat", "fish", "food", nil),
	})

	first, err := engine.Ingest(ctx, "otters eat fish")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if err := engine.DeleteFact(ctx, first.ID); err != nil {
		t.Fatalf("DeleteFact failed: %v", err)
	}

	if _, err := engine.GetFact(ctx, first.ID); !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("GetFact after delete = %v, want not_found", err)
	}

	second, err := engine.Ingest(ctx, "otters eat fish")
	if err != nil {
		t.Fatalf("re-Ingest failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("resubmission after delete reused the deleted fact")
	}
	if parser.calls != 2 {
		t.Errorf("parser calls = %d, want 2", parser.calls)
	}
}

func TestDeleteFact_UnknownID(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(nil)

	err := engine.DeleteFact(ctx, "no-such-fact")
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("DeleteFact = %v, want not_found", err)
	}
}
