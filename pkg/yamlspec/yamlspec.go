// Package yamlspec implements the restricted `--apply-spec` YAML grammar
// spec.md §9 resolves as an open question: a sequence of flat, single-level
// service documents joined by "---", not the full cephadm spec schema. It
// deliberately rejects nested maps, sequences, and YAML anchors/aliases so
// that what gets deployed can be read off the file without a mental model
// of YAML merge semantics.
package yamlspec

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one parsed "---"-delimited document.
type Entry struct {
	ServiceType string
	ServiceID   string
	Extra       map[string]string
}

// Parse splits data on YAML document boundaries and decodes each document
// as a flat string-to-string map. service_type and service_id are pulled
// out by name; everything else is kept in Extra.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding yaml document: %w", err)
		}
		entry, err := decodeFlat(&node)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeFlat(node *yaml.Node) (Entry, error) {
	doc := node
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) != 1 {
			return Entry{}, fmt.Errorf("expected exactly one top-level document node")
		}
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return Entry{}, fmt.Errorf("apply-spec entries must be flat mappings, got %v", doc.Kind)
	}

	entry := Entry{Extra: map[string]string{}}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode := doc.Content[i]
		valNode := doc.Content[i+1]

		if keyNode.Kind != yaml.ScalarNode {
			return Entry{}, fmt.Errorf("apply-spec keys must be scalars, got %v", keyNode.Kind)
		}
		if valNode.Kind != yaml.ScalarNode {
			return Entry{}, fmt.Errorf("apply-spec value for %q must be a scalar (no nested maps/sequences/anchors allowed)", keyNode.Value)
		}
		if keyNode.Anchor != "" || valNode.Anchor != "" {
			return Entry{}, fmt.Errorf("apply-spec entry %q must not use YAML anchors", keyNode.Value)
		}

		switch keyNode.Value {
		case "service_type":
			entry.ServiceType = valNode.Value
		case "service_id":
			entry.ServiceID = valNode.Value
		default:
			entry.Extra[keyNode.Value] = valNode.Value
		}
	}

	if entry.ServiceType == "" {
		return Entry{}, fmt.Errorf("apply-spec entry missing required field service_type")
	}
	return entry, nil
}
