package graph

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates an opaque entity id.
func NewID() string {
	return uuid.New().String()
}

// Concept is a uniquely named node in the knowledge graph: an animal,
// species, place, attribute, etc. Concepts are created lazily on first
// reference and never mutated.
type Concept struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RelationshipType is a named edge label. Several names may share one
// underlying id so that a relationship can be matched by any synonym
// ("has", "have").
type RelationshipType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Relationship is a graph edge linking a subject concept to an object
// concept under a relationship type, with an optional count attribute.
// At most one relationship exists per (subject, object, type) triple.
type Relationship struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	ObjectID  string `json:"object_id"`
	TypeID    string `json:"relationship_type_id"`
	Count     *int   `json:"count,omitempty"`
	// FactID identifies the fact that created or last updated this edge.
	// Empty for edges seeded outside the fact pipeline.
	FactID string `json:"fact_id,omitempty"`

	// Subject and Object are resolved by pattern lookups so callers can
	// filter on concept names without extra round trips.
	Subject *Concept `json:"subject,omitempty"`
	Object  *Concept `json:"object,omitempty"`
}

// Fact is the provenance record for one submitted sentence. It owns the
// relationships tagged with its id; deleting it removes exactly those.
type Fact struct {
	ID         string    `json:"fact_id"`
	Text       string    `json:"fact_text"`
	ParsedData string    `json:"parsed_data,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RelationshipPattern describes an edge lookup. Zero-valued fields act
// as wildcards; TypeName is always required.
type RelationshipPattern struct {
	TypeName    string
	SubjectName string
	ObjectName  string
	Count       *int
}

// Changeset is the unit of work committed by one ingestion call. The
// store applies it atomically: either every record is written or none.
type Changeset struct {
	Concepts          []*Concept
	RelationshipTypes []*RelationshipType
	Relationships     []*Relationship
	EdgeUpdates       []EdgeUpdate
	Fact              *Fact
}

// EdgeUpdate enriches an existing relationship in place: a null count
// gains a concrete value and the edge is re-tagged with the updating
// fact.
type EdgeUpdate struct {
	RelationshipID string
	Count          *int
	FactID         string
}
