// Package nlp defines the contract with the external natural-language
// service and the translation of its raw payload into the structured
// parse consumed by the ingestion and query engines.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"faunagraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// Entity classes with dedicated slots in the parse. Any other entity
// class is treated as the sentence object.
const (
	relationshipEntity = "relationship"
	numberEntity       = "number"
	negationEntity     = "negation"
)

// subjectEntityTypes name the entity classes that are always the
// sentence subject; altSubjectEntityTypes are sometimes subject and
// sometimes object, resolved after all entities are seen.
var (
	subjectEntityTypes    = map[string]bool{"animal": true}
	altSubjectEntityTypes = map[string]bool{"species": true}
)

// Parser is the external NLP collaborator: given a normalized sentence
// it returns a structured parse.
type Parser interface {
	Parse(ctx context.Context, sentence string) (*ParsedSentence, error)
}

// ParsedSentence is the structured record extracted from one sentence.
type ParsedSentence struct {
	Text                 string
	Confidence           float64
	Intent               string
	SubjectName          string
	SubjectType          string
	ObjectName           string
	ObjectType           string
	RelationshipTypeName string
	RelationshipNumber   *int
	RelationshipNegation bool
	// Raw preserves the serialized original payload for audit.
	Raw string
}

// ValidateFact checks that the parse represents a well-formed,
// single-outcome fact statement.
func (p *ParsedSentence) ValidateFact() error {
	if !strings.HasSuffix(p.Intent, "_fact") {
		return fmt.Errorf("sentence has non-fact intent '%s'", p.Intent)
	}
	if p.RelationshipNegation {
		return fmt.Errorf("cannot handle fact with negated relationship")
	}
	if p.RelationshipTypeName == "" {
		return fmt.Errorf("no relationship entity found")
	}
	if p.SubjectType == "" {
		return fmt.Errorf("no subject entity found")
	}
	if p.ObjectType == "" {
		return fmt.Errorf("no object entity found")
	}
	return nil
}

// Response is the raw payload returned by the NLP service.
type Response struct {
	Text     string    `json:"_text"`
	Outcomes []Outcome `json:"outcomes"`
}

// Outcome is one candidate interpretation of the sentence. Exactly one
// is expected.
type Outcome struct {
	Intent     string                   `json:"intent"`
	Confidence float64                  `json:"confidence"`
	Entities   map[string][]EntityValue `json:"entities"`
}

// EntityValue is one extracted value for an entity class. Suggested
// values are low-confidence alternatives, used only when no confirmed
// value exists.
type EntityValue struct {
	Type      string      `json:"type"`
	Value     interface{} `json:"value"`
	Suggested bool        `json:"suggested,omitempty"`
}

// FromResponse translates a raw NLP payload into a ParsedSentence,
// enforcing the adapter contract: exactly one outcome, at most one
// value per semantic slot, suggested values only as a logged fallback.
// Confidence below threshold is logged but does not reject the parse.
func FromResponse(resp *Response, raw []byte, threshold float64) (*ParsedSentence, error) {
	log := logger.Get()

	p := &ParsedSentence{Raw: string(raw)}

	p.Text = resp.Text
	if p.Text == "" {
		return nil, fmt.Errorf("response data has no _text attribute")
	}

	if len(resp.Outcomes) != 1 {
		return nil, fmt.Errorf("expected 1 outcome, found %d", len(resp.Outcomes))
	}
	outcome := resp.Outcomes[0]

	p.Intent = outcome.Intent
	if p.Intent == "" {
		return nil, fmt.Errorf("outcome has no intent attribute")
	}

	p.Confidence = outcome.Confidence
	if p.Confidence < threshold {
		log.Warn("Outcome confidence falls below threshold",
			zap.Float64("confidence", p.Confidence),
			zap.Float64("threshold", threshold),
			zap.String("text", p.Text),
		)
	}

	var altSubjectName, altSubjectType string

	for entityType, entityData := range outcome.Entities {
		val, suggested := entityValue(entityType, entityData, log)
		if val != "" && suggested {
			log.Warn("Using suggested parsed value",
				zap.String("entity", entityType),
				zap.String("value", val),
			)
		}

		switch {
		case entityType == relationshipEntity:
			p.RelationshipTypeName = val

		case entityType == numberEntity:
			if val != "" {
				n, err := strconv.Atoi(val)
				if err != nil {
					return nil, fmt.Errorf("non-numeric value for number entity: %q", val)
				}
				p.RelationshipNumber = &n
			}

		case entityType == negationEntity:
			p.RelationshipNegation = true

		case subjectEntityTypes[entityType]:
			if p.SubjectType != "" {
				return nil, fmt.Errorf("parsed multiple subject entities: %s, %s", p.SubjectType, entityType)
			}
			p.SubjectType = entityType
			p.SubjectName = val

		case altSubjectEntityTypes[entityType]:
			if altSubjectType != "" {
				return nil, fmt.Errorf("parsed multiple alt subject entities: %s, %s", altSubjectType, entityType)
			}
			altSubjectType = entityType
			altSubjectName = val

		default:
			if p.ObjectType != "" {
				return nil, fmt.Errorf("parsed multiple object entities: %s, %s", p.ObjectType, entityType)
			}
			p.ObjectType = entityType
			p.ObjectName = val
		}
	}

	// An alternate-subject entity is promoted to subject when that slot
	// is free, demoted to object when only the object slot is free, and
	// rejected when both slots are taken.
	if altSubjectType != "" {
		switch {
		case p.SubjectType == "":
			p.SubjectType = altSubjectType
			p.SubjectName = altSubjectName
		case p.ObjectType == "":
			p.ObjectType = altSubjectType
			p.ObjectName = altSubjectName
		default:
			return nil, fmt.Errorf("parsed alt subject but both subject and object were found")
		}
	}

	if p.Raw == "" {
		if serialized, err := json.Marshal(resp); err == nil {
			p.Raw = string(serialized)
		}
	}

	return p, nil
}

// entityValue extracts the single value for an entity class. Confirmed
// values win over suggested ones; extra values are dropped with a
// warning.
func entityValue(entityType string, entityData []EntityValue, log *zap.Logger) (string, bool) {
	var vals, suggestedVals []string
	for _, e := range entityData {
		if e.Type != "value" {
			continue
		}
		v := stringifyValue(e.Value)
		if v == "" {
			continue
		}
		if e.Suggested {
			suggestedVals = append(suggestedVals, v)
		} else {
			vals = append(vals, v)
		}
	}

	suggested := false
	if len(vals) == 0 && len(suggestedVals) > 0 {
		log.Warn("Only suggested values found for entity",
			zap.String("entity", entityType),
			zap.Strings("values", suggestedVals),
		)
		vals = suggestedVals
		suggested = true
	} else if len(suggestedVals) > 0 {
		log.Warn("Ignoring suggested values for entity",
			zap.String("entity", entityType),
			zap.Strings("values", suggestedVals),
		)
	}

	if len(vals) == 0 {
		return "", false
	}
	if len(vals) > 1 {
		log.Warn("Multiple values for entity, ignoring all but first",
			zap.String("entity", entityType),
			zap.Strings("values", vals),
		)
	}
	return vals[0], suggested
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(val))
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case nil:
		return ""
	default:
		return strings.ToLower(fmt.Sprintf("%v", val))
	}
}

// NormalizeSentence lowercases a sentence, strips characters that are
// not letters, digits or spaces, and collapses runs of whitespace.
// Returns "" when nothing survives.
func NormalizeSentence(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
