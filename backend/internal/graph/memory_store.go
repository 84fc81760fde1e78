package graph

import (
	"context"
	"sync"

	"faunagraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// MemoryStore is an in-process Store used in development mode and in
// tests. It enforces the same uniqueness constraints as the Neo4j store:
// concept names, fact text, and the (subject, object, type) triple.
type MemoryStore struct {
	mu sync.RWMutex

	conceptsByID   map[string]*Concept
	conceptsByName map[string]*Concept
	typesByName    map[string]*RelationshipType
	relationships  map[string]*Relationship
	triples        map[tripleKey]string // triple -> relationship id
	factsByID      map[string]*Fact
	factsByText    map[string]string // normalized text -> fact id

	logger *zap.Logger
}

type tripleKey struct {
	subjectID string
	objectID  string
	typeID    string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conceptsByID:   make(map[string]*Concept),
		conceptsByName: make(map[string]*Concept),
		typesByName:    make(map[string]*RelationshipType),
		relationships:  make(map[string]*Relationship),
		triples:        make(map[tripleKey]string),
		factsByID:      make(map[string]*Fact),
		factsByText:    make(map[string]string),
		logger:         logger.Get(),
	}
}

func (s *MemoryStore) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conceptsByName[name]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) RelationshipTypeByName(ctx context.Context, name string) (*RelationshipType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.typesByName[name]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) RelationshipByTriple(ctx context.Context, subjectID, objectID, typeID string) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.triples[tripleKey{subjectID, objectID, typeID}]; ok {
		return s.resolveEdge(s.relationships[id]), nil
	}
	return nil, nil
}

func (s *MemoryStore) RelationshipsByFact(ctx context.Context, factID string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Relationship
	for _, r := range s.relationships {
		if r.FactID == factID {
			out = append(out, s.resolveEdge(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) RelationshipsByPattern(ctx context.Context, pattern RelationshipPattern) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	relType, ok := s.typesByName[pattern.TypeName]
	if !ok {
		return nil, nil
	}

	var out []*Relationship
	for _, r := range s.relationships {
		if r.TypeID != relType.ID {
			continue
		}
		if pattern.Count != nil && (r.Count == nil || *r.Count != *pattern.Count) {
			continue
		}
		if pattern.SubjectName != "" {
			if c, ok := s.conceptsByID[r.SubjectID]; !ok || c.Name != pattern.SubjectName {
				continue
			}
		}
		if pattern.ObjectName != "" {
			if c, ok := s.conceptsByID[r.ObjectID]; !ok || c.Name != pattern.ObjectName {
				continue
			}
		}
		out = append(out, s.resolveEdge(r))
	}
	return out, nil
}

func (s *MemoryStore) FactByText(ctx context.Context, text string) (*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.factsByText[text]; ok {
		if f := s.factsByID[id]; f != nil && !f.Deleted {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FactByID(ctx context.Context, id string) (*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.factsByID[id]; ok && !f.Deleted {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

// Apply commits a changeset under one lock. Staged concepts and
// relationship types that lost a name race are remapped onto the
// persisted record; a staged relationship whose triple is already
// present fails the whole changeset with ErrEdgeExists.
func (s *MemoryStore) Apply(ctx context.Context, cs *Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conceptRemap := make(map[string]string)
	for _, c := range cs.Concepts {
		if existing, ok := s.conceptsByName[c.Name]; ok {
			conceptRemap[c.ID] = existing.ID
			continue
		}
	}
	typeRemap := make(map[string]string)
	for _, t := range cs.RelationshipTypes {
		if existing, ok := s.typesByName[t.Name]; ok {
			typeRemap[t.ID] = existing.ID
		}
	}

	// Validate edge triples before any write
	for _, r := range cs.Relationships {
		key := tripleKey{
			subjectID: remapID(r.SubjectID, conceptRemap),
			objectID:  remapID(r.ObjectID, conceptRemap),
			typeID:    remapID(r.TypeID, typeRemap),
		}
		if _, ok := s.triples[key]; ok {
			return ErrEdgeExists
		}
	}
	if cs.Fact != nil {
		if _, ok := s.factsByText[cs.Fact.Text]; ok {
			return ErrEdgeExists
		}
	}

	for _, c := range cs.Concepts {
		if _, ok := conceptRemap[c.ID]; ok {
			continue
		}
		cp := *c
		s.conceptsByID[cp.ID] = &cp
		s.conceptsByName[cp.Name] = &cp
	}
	for _, t := range cs.RelationshipTypes {
		if _, ok := typeRemap[t.ID]; ok {
			continue
		}
		cp := *t
		s.typesByName[cp.Name] = &cp
	}
	for _, r := range cs.Relationships {
		cp := *r
		cp.SubjectID = remapID(cp.SubjectID, conceptRemap)
		cp.ObjectID = remapID(cp.ObjectID, conceptRemap)
		cp.TypeID = remapID(cp.TypeID, typeRemap)
		cp.Subject, cp.Object = nil, nil
		s.relationships[cp.ID] = &cp
		s.triples[tripleKey{cp.SubjectID, cp.ObjectID, cp.TypeID}] = cp.ID
	}
	for _, u := range cs.EdgeUpdates {
		if r, ok := s.relationships[u.RelationshipID]; ok {
			if u.Count != nil {
				r.Count = u.Count
			}
			if u.FactID != "" {
				r.FactID = u.FactID
			}
		}
	}
	if cs.Fact != nil {
		cp := *cs.Fact
		s.factsByID[cp.ID] = &cp
		s.factsByText[cp.Text] = cp.ID
	}

	return nil
}

func (s *MemoryStore) DeleteFact(ctx context.Context, factID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.factsByID[factID]
	if !ok || f.Deleted {
		return ErrFactMissing
	}

	removed := 0
	for id, r := range s.relationships {
		if r.FactID == factID {
			delete(s.triples, tripleKey{r.SubjectID, r.ObjectID, r.TypeID})
			delete(s.relationships, id)
			removed++
		}
	}
	f.Deleted = true
	delete(s.factsByText, f.Text)

	s.logger.Info("Fact deleted",
		zap.String("fact_id", factID),
		zap.Int("relationships_removed", removed),
	)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// resolveEdge returns a copy of the edge with subject and object
// concepts attached. Caller must hold at least a read lock.
func (s *MemoryStore) resolveEdge(r *Relationship) *Relationship {
	cp := *r
	if c, ok := s.conceptsByID[r.SubjectID]; ok {
		sc := *c
		cp.Subject = &sc
	}
	if c, ok := s.conceptsByID[r.ObjectID]; ok {
		oc := *c
		cp.Object = &oc
	}
	return &cp
}

func remapID(id string, remap map[string]string) string {
	if mapped, ok := remap[id]; ok {
		return mapped
	}
	return id
}
