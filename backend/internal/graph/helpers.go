package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Neo4j Record Helpers
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntPtrFromRecord(record *neo4j.Record, key string) *int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	if i, ok := val.(int64); ok {
		v := int(i)
		return &v
	}
	if i, ok := val.(int); ok {
		v := i
		return &v
	}
	return nil
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func relationshipFromRecord(record *neo4j.Record) *Relationship {
	return &Relationship{
		ID:        getStringFromRecord(record, "id"),
		TypeID:    getStringFromRecord(record, "type_id"),
		Count:     getIntPtrFromRecord(record, "count"),
		FactID:    getStringFromRecord(record, "fact_id"),
		SubjectID: getStringFromRecord(record, "subject_id"),
		ObjectID:  getStringFromRecord(record, "object_id"),
		Subject: &Concept{
			ID:   getStringFromRecord(record, "subject_id"),
			Name: getStringFromRecord(record, "subject_name"),
		},
		Object: &Concept{
			ID:   getStringFromRecord(record, "object_id"),
			Name: getStringFromRecord(record, "object_name"),
		},
	}
}
