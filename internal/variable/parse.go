package variable

import (
	"fmt"

	"github.com/vk/tracesweep/internal/document"
	"github.com/vk/tracesweep/internal/errs"
)

// Reserved document syntax. These markers cannot be escaped: a literal "?"
// string or a mapping whose only key is "*" always carry their special meaning.
const (
	ObjectTypeKey     = "object_type"
	SweepKey          = "*"
	UndeterminedValue = "?"
)

// Parse converts a document tree into a Variable tree.
func Parse(doc any) (Variable, error) {
	return parse(doc, "document")
}

func parse(doc any, path string) (Variable, error) {
	switch v := doc.(type) {
	case document.Map:
		return parseMap(v, path)

	case []any:
		items := make([]Variable, 0, len(v))
		for i, item := range v {
			parsed, err := parse(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items = append(items, parsed)
		}
		return &MultiVariable{Items: items}, nil

	case string:
		if v == UndeterminedValue {
			return Undetermined{}, nil
		}
		return Literal{Value: v}, nil

	default:
		return Literal{Value: v}, nil
	}
}

func parseMap(m document.Map, path string) (Variable, error) {
	if len(m) == 1 && m[0].Key == SweepKey {
		raw, ok := m[0].Value.([]any)
		if !ok {
			return nil, &errs.ValidationError{
				Class:  path,
				Detail: fmt.Sprintf("sweep marker %q must hold a list, got %T", SweepKey, m[0].Value),
			}
		}
		values := make([]Variable, 0, len(raw))
		for i, item := range raw {
			parsed, err := parse(item, fmt.Sprintf("%s.*[%d]", path, i))
			if err != nil {
				return nil, err
			}
			values = append(values, parsed)
		}
		return &Experimental{Values: values}, nil
	}

	def := NewDefinition()
	var objectType string
	hasType := false

	for _, entry := range m {
		if entry.Key == ObjectTypeKey {
			tag, ok := entry.Value.(string)
			if !ok {
				return nil, &errs.ValidationError{
					Class:  path,
					Detail: fmt.Sprintf("%s must be a string, got %T", ObjectTypeKey, entry.Value),
				}
			}
			objectType, hasType = tag, true
			continue
		}

		parsed, err := parse(entry.Value, path+"."+entry.Key)
		if err != nil {
			return nil, err
		}
		if err := def.Set(entry.Key, parsed); err != nil {
			return nil, &errs.ValidationError{Class: path, Detail: err.Error()}
		}
	}

	if hasType {
		return &TypedDefinition{ObjectType: objectType, Definition: def}, nil
	}
	return def, nil
}
