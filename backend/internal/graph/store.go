package graph

import (
	"context"
	"errors"
)

// ErrEdgeExists is returned by Apply when a staged relationship collides
// with a persisted (subject, object, type) triple. Concurrent ingestion
// of the same new fact races past the fast duplicate lookup; the unique
// triple constraint converts the loser into a detected duplicate rather
// than a double edge. Callers re-resolve against the store on this error.
var ErrEdgeExists = errors.New("relationship already exists for triple")

// ErrFactMissing is returned by DeleteFact when no fact has the given id.
var ErrFactMissing = errors.New("fact not found")

// Store is the graph persistence contract consumed by the ingestion and
// query engines. Lookups that find nothing return (nil, nil); errors are
// reserved for store failures.
type Store interface {
	// ConceptByName looks up a concept by its unique name.
	ConceptByName(ctx context.Context, name string) (*Concept, error)

	// RelationshipTypeByName looks up a relationship type by exact name.
	RelationshipTypeByName(ctx context.Context, name string) (*RelationshipType, error)

	// RelationshipByTriple looks up the single edge for a
	// (subject, object, type) triple.
	RelationshipByTriple(ctx context.Context, subjectID, objectID, typeID string) (*Relationship, error)

	// RelationshipsByFact returns the edges owned by a fact.
	RelationshipsByFact(ctx context.Context, factID string) ([]*Relationship, error)

	// RelationshipsByPattern returns edges matching the pattern, with
	// Subject and Object concepts resolved. This is the single query
	// primitive the answering engine builds on.
	RelationshipsByPattern(ctx context.Context, pattern RelationshipPattern) ([]*Relationship, error)

	// FactByText looks up a fact by its unique normalized text.
	FactByText(ctx context.Context, text string) (*Fact, error)

	// FactByID looks up a fact by id.
	FactByID(ctx context.Context, id string) (*Fact, error)

	// Apply atomically commits one ingestion changeset. Returns
	// ErrEdgeExists when a staged relationship's triple is already
	// persisted.
	Apply(ctx context.Context, cs *Changeset) error

	// DeleteFact removes a fact and exactly the relationships tagged
	// with its id, leaving concepts and relationship types untouched.
	// Returns ErrFactMissing for unknown ids.
	DeleteFact(ctx context.Context, factID string) error

	// Close releases the underlying connection, if any.
	Close(ctx context.Context) error
}
