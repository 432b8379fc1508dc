package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML parses a YAML or JSON document. Decoding goes through yaml.Node
// rather than map[string]any so mapping keys keep their order.
func ParseYAML(data []byte, filename string) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if root.Kind == 0 {
		return nil, fmt.Errorf("document %s is empty", filename)
	}
	return fromNode(&root, filename)
}

func fromNode(n *yaml.Node, filename string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0], filename)

	case yaml.AliasNode:
		return fromNode(n.Alias, filename)

	case yaml.MappingNode:
		m := make(Map, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%s:%d: mapping keys must be scalars", filename, keyNode.Line)
			}
			val, err := fromNode(valNode, filename)
			if err != nil {
				return nil, err
			}
			m = append(m, Entry{Key: keyNode.Value, Value: val})
		}
		return m, nil

	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := fromNode(item, filename)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, n.Line, err)
		}
		return normalizeScalar(v), nil

	default:
		return nil, fmt.Errorf("%s:%d: unsupported YAML node kind %d", filename, n.Line, n.Kind)
	}
}

// normalizeScalar narrows the scalar types yaml.v3 may produce to the small
// set the rest of the engine expects.
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case uint64:
		return int(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
