// Package document reads configuration documents into a format-agnostic tree
// of ordered mappings, lists and scalars.
//
// Three formats are accepted. YAML and JSON go through the YAML 1.2 parser,
// HCL goes through hclsyntax. Key order is preserved in every format, which
// is what keeps sweep expansion reproducible: the builder walks a mapping in
// the order its keys were written.
//
// The tree uses only these Go types:
//
//   - Map for mappings, with keys in source order
//   - []any for lists
//   - string, int, float64, bool and nil for scalars
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/tracesweep/internal/ctxlog"
)

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   string
	Value any
}

// Map is a mapping that remembers the order its keys were declared in.
type Map []Entry

// Get returns the value stored under key, matched exactly.
func (m Map) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in declaration order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// Extensions lists the file extensions Load understands.
var Extensions = []string{".yaml", ".yml", ".json", ".hcl"}

// Load reads and parses the document at path, choosing the parser from the
// file extension.
func Load(ctx context.Context, path string) (any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading configuration document.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		return ParseYAML(data, path)
	case ".hcl":
		return ParseHCL(data, path)
	default:
		return nil, fmt.Errorf("unsupported document extension %q for %s", ext, path)
	}
}
