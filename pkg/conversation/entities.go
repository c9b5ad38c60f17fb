package conversation

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Candidate is one extracted value for an entity.
type Candidate struct {
	Value      interface{} `json:"value" mapstructure:"value"`
	Confidence float64     `json:"confidence,omitempty" mapstructure:"confidence"`
	Type       string      `json:"type,omitempty" mapstructure:"type"`
}

// Entities maps an entity name to its ordered candidates, most confident first.
type Entities map[string][]Candidate

// FirstValue returns the first candidate's value for the named entity.
// Structured values of the form {"value": ...} are unwrapped. Empty values
// count as missing.
func (e Entities) FirstValue(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	candidates, ok := e[name]
	if !ok || len(candidates) == 0 {
		return "", false
	}

	val := candidates[0].Value
	if nested, ok := val.(map[string]interface{}); ok {
		val = nested["value"]
	}

	switch v := val.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	default:
		return fmt.Sprint(v), true
	}
}

// Single builds an Entities value with one candidate per name.
func Single(values map[string]string) Entities {
	e := make(Entities, len(values))
	for name, v := range values {
		e[name] = []Candidate{{Value: v}}
	}
	return e
}

// DecodeEntities converts a raw JSON-decoded entity map, as returned by the NLU
// engine, into Entities. Entries that are not candidate lists are skipped.
func DecodeEntities(raw map[string]interface{}) (Entities, error) {
	out := make(Entities, len(raw))
	for name, value := range raw {
		list, ok := value.([]interface{})
		if !ok {
			continue
		}
		var candidates []Candidate
		if err := mapstructure.Decode(list, &candidates); err != nil {
			return nil, fmt.Errorf("failed to decode entity %q: %w", name, err)
		}
		out[name] = candidates
	}
	return out, nil
}
