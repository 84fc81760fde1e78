package graph

import (
	"context"
	"fmt"

	"faunagraph/backend/pkg/logger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jStore is the production Store backed by a Neo4j database.
// Concepts, relationship types and facts are nodes; knowledge edges are
// REL relationships carrying the type id, count and owning fact id.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore creates a graph store on an existing driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// EnsureSchema creates the uniqueness constraints the data model relies
// on: concept names, relationship type names, fact ids and fact text.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT concept_name IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE`,
		`CREATE CONSTRAINT relationship_type_name IF NOT EXISTS FOR (t:RelationshipType) REQUIRE t.name IS UNIQUE`,
		`CREATE CONSTRAINT fact_id IF NOT EXISTS FOR (f:Fact) REQUIRE f.id IS UNIQUE`,
		`CREATE CONSTRAINT fact_text IF NOT EXISTS FOR (f:Fact) REQUIRE f.text IS UNIQUE`,
	}
	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept {name: $name}) RETURN c.id as id, c.name as name`,
		map[string]interface{}{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to look up concept: %w", err)
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	record := result.Record()
	return &Concept{
		ID:   getStringFromRecord(record, "id"),
		Name: getStringFromRecord(record, "name"),
	}, nil
}

func (s *Neo4jStore) RelationshipTypeByName(ctx context.Context, name string) (*RelationshipType, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (t:RelationshipType {name: $name}) RETURN t.id as id, t.name as name`,
		map[string]interface{}{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to look up relationship type: %w", err)
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	record := result.Record()
	return &RelationshipType{
		ID:   getStringFromRecord(record, "id"),
		Name: getStringFromRecord(record, "name"),
	}, nil
}

func (s *Neo4jStore) RelationshipByTriple(ctx context.Context, subjectID, objectID, typeID string) (*Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Concept {id: $subjectID})-[r:REL {type_id: $typeID}]->(o:Concept {id: $objectID})
		RETURN r.id as id, r.type_id as type_id, r.count as count, r.fact_id as fact_id,
		       s.id as subject_id, s.name as subject_name,
		       o.id as object_id, o.name as object_name
	`, map[string]interface{}{
		"subjectID": subjectID,
		"objectID":  objectID,
		"typeID":    typeID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up relationship: %w", err)
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	return relationshipFromRecord(result.Record()), nil
}

func (s *Neo4jStore) RelationshipsByFact(ctx context.Context, factID string) ([]*Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Concept)-[r:REL {fact_id: $factID}]->(o:Concept)
		RETURN r.id as id, r.type_id as type_id, r.count as count, r.fact_id as fact_id,
		       s.id as subject_id, s.name as subject_name,
		       o.id as object_id, o.name as object_name
	`, map[string]interface{}{"factID": factID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up relationships by fact: %w", err)
	}

	var out []*Relationship
	for result.Next(ctx) {
		out = append(out, relationshipFromRecord(result.Record()))
	}
	return out, result.Err()
}

func (s *Neo4jStore) RelationshipsByPattern(ctx context.Context, pattern RelationshipPattern) ([]*Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (t:RelationshipType {name: $typeName})
		MATCH (s:Concept)-[r:REL]->(o:Concept)
		WHERE r.type_id = t.id
		  AND ($subjectName = '' OR s.name = $subjectName)
		  AND ($objectName = '' OR o.name = $objectName)
		  AND ($hasCount = false OR r.count = $count)
		RETURN r.id as id, r.type_id as type_id, r.count as count, r.fact_id as fact_id,
		       s.id as subject_id, s.name as subject_name,
		       o.id as object_id, o.name as object_name
	`, map[string]interface{}{
		"typeName":    pattern.TypeName,
		"subjectName": pattern.SubjectName,
		"objectName":  pattern.ObjectName,
		"hasCount":    pattern.Count != nil,
		"count":       intOrNil(pattern.Count),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}

	var out []*Relationship
	for result.Next(ctx) {
		out = append(out, relationshipFromRecord(result.Record()))
	}
	return out, result.Err()
}

func (s *Neo4jStore) FactByText(ctx context.Context, text string) (*Fact, error) {
	return s.findFact(ctx,
		`MATCH (f:Fact {text: $val}) WHERE NOT coalesce(f.deleted, false)
		 RETURN f.id as id, f.text as text, f.parsed_data as parsed_data, f.created_at as created_at`,
		text)
}

func (s *Neo4jStore) FactByID(ctx context.Context, id string) (*Fact, error) {
	return s.findFact(ctx,
		`MATCH (f:Fact {id: $val}) WHERE NOT coalesce(f.deleted, false)
		 RETURN f.id as id, f.text as text, f.parsed_data as parsed_data, f.created_at as created_at`,
		id)
}

func (s *Neo4jStore) findFact(ctx context.Context, query, val string) (*Fact, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, map[string]interface{}{"val": val})
	if err != nil {
		return nil, fmt.Errorf("failed to look up fact: %w", err)
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	record := result.Record()
	return &Fact{
		ID:         getStringFromRecord(record, "id"),
		Text:       getStringFromRecord(record, "text"),
		ParsedData: getStringFromRecord(record, "parsed_data"),
		CreatedAt:  getTimeFromRecord(record, "created_at"),
	}, nil
}

// Apply commits a changeset in one write transaction. Staged concepts
// and relationship types merge onto persisted rows by name; a staged
// relationship whose triple already exists aborts the transaction with
// ErrEdgeExists, which is the storage backstop for concurrent ingestion
// of the same fact.
func (s *Neo4jStore) Apply(ctx context.Context, cs *Changeset) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		conceptRemap := make(map[string]string)
		for _, c := range cs.Concepts {
			result, err := tx.Run(ctx, `
				MERGE (c:Concept {name: $name})
				ON CREATE SET c.id = $id
				RETURN c.id as id
			`, map[string]interface{}{"name": c.Name, "id": c.ID})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			conceptRemap[c.ID] = getStringFromRecord(record, "id")
		}

		typeRemap := make(map[string]string)
		for _, t := range cs.RelationshipTypes {
			result, err := tx.Run(ctx, `
				MERGE (t:RelationshipType {name: $name})
				ON CREATE SET t.id = $id
				RETURN t.id as id
			`, map[string]interface{}{"name": t.Name, "id": t.ID})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			typeRemap[t.ID] = getStringFromRecord(record, "id")
		}

		for _, r := range cs.Relationships {
			result, err := tx.Run(ctx, `
				MATCH (s:Concept {id: $subjectID})
				MATCH (o:Concept {id: $objectID})
				MERGE (s)-[r:REL {type_id: $typeID}]->(o)
				ON CREATE SET r.id = $id, r.count = $count, r.fact_id = $factID
				RETURN r.id as id
			`, map[string]interface{}{
				"subjectID": remapID(r.SubjectID, conceptRemap),
				"objectID":  remapID(r.ObjectID, conceptRemap),
				"typeID":    remapID(r.TypeID, typeRemap),
				"id":        r.ID,
				"count":     intOrNil(r.Count),
				"factID":    r.FactID,
			})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			if getStringFromRecord(record, "id") != r.ID {
				return nil, ErrEdgeExists
			}
		}

		for _, u := range cs.EdgeUpdates {
			_, err := tx.Run(ctx, `
				MATCH ()-[r:REL {id: $id}]->()
				SET r.count = $count, r.fact_id = $factID
			`, map[string]interface{}{
				"id":     u.RelationshipID,
				"count":  intOrNil(u.Count),
				"factID": u.FactID,
			})
			if err != nil {
				return nil, err
			}
		}

		if cs.Fact != nil {
			result, err := tx.Run(ctx, `
				MERGE (f:Fact {text: $text})
				ON CREATE SET f.id = $id, f.parsed_data = $parsedData,
				              f.deleted = false, f.created_at = datetime($createdAt)
				RETURN f.id as id
			`, map[string]interface{}{
				"text":       cs.Fact.Text,
				"id":         cs.Fact.ID,
				"parsedData": cs.Fact.ParsedData,
				"createdAt":  cs.Fact.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			if getStringFromRecord(record, "id") != cs.Fact.ID {
				return nil, ErrEdgeExists
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	if cs.Fact != nil {
		s.logger.Info("Changeset committed",
			zap.String("fact_id", cs.Fact.ID),
			zap.Int("new_relationships", len(cs.Relationships)),
		)
	}
	return nil
}

func (s *Neo4jStore) DeleteFact(ctx context.Context, factID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MATCH (f:Fact {id: $factID})
			WHERE NOT coalesce(f.deleted, false)
			RETURN f.id as id
		`, map[string]interface{}{"factID": factID})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			if err := result.Err(); err != nil {
				return nil, err
			}
			return nil, ErrFactMissing
		}

		if _, err := tx.Run(ctx, `
			MATCH ()-[r:REL {fact_id: $factID}]->()
			DELETE r
		`, map[string]interface{}{"factID": factID}); err != nil {
			return nil, err
		}

		// Clearing text releases the uniqueness slot so the sentence can
		// be resubmitted as a new fact.
		if _, err := tx.Run(ctx, `
			MATCH (f:Fact {id: $factID})
			SET f.deleted = true, f.text = null
		`, map[string]interface{}{"factID": factID}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Fact deleted", zap.String("fact_id", factID))
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func intOrNil(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
