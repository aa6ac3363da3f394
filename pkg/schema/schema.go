// Package schema builds the graph schema summary handed to the language model.
package schema

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/TFMV/cypherplan/pkg/errors"
)

// Property is a property key and the Cypher type seen for it.
type Property struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NodeType describes one node label.
type NodeType struct {
	Label      string     `json:"label"`
	Count      int64      `json:"count"`
	Properties []Property `json:"properties"`
}

// RelationshipType describes one relationship type and the labels it connects.
type RelationshipType struct {
	Type        string     `json:"type"`
	Count       int64      `json:"count"`
	StartLabels []string   `json:"start_labels"`
	EndLabels   []string   `json:"end_labels"`
	Properties  []Property `json:"properties"`
}

// GraphSchema is the introspected shape of the graph.
type GraphSchema struct {
	NodeTypes         []NodeType          `json:"node_types"`
	RelationshipTypes []RelationshipType  `json:"relationship_types"`
	KeyEntities       map[string][]string `json:"key_entities,omitempty"`
}

const (
	maxNodeProps    = 5
	maxRelProps     = 3
	maxEntitiesShow = 10
)

// Summary renders the schema as the text block used in prompts.
func (g *GraphSchema) Summary() string {
	var b strings.Builder
	b.WriteString("=== GRAPH SCHEMA FOR CYPHER GENERATION ===\n\nNode Labels:\n")
	for _, n := range g.NodeTypes {
		fmt.Fprintf(&b, "- %s (%d nodes)", n.Label, n.Count)
		if props := joinProps(n.Properties, maxNodeProps); props != "" {
			fmt.Fprintf(&b, " - Properties: %s", props)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nRelationship Types:\n")
	for _, r := range g.RelationshipTypes {
		fmt.Fprintf(&b, "- %s (%d) - %s -> %s\n", r.Type, r.Count,
			strings.Join(r.StartLabels, "/"), strings.Join(r.EndLabels, "/"))
		if props := joinProps(r.Properties, maxRelProps); props != "" {
			fmt.Fprintf(&b, "  Properties: %s\n", props)
		}
	}

	if len(g.KeyEntities) > 0 {
		b.WriteString("\nKey Entities:\n")
		kinds := make([]string, 0, len(g.KeyEntities))
		for k := range g.KeyEntities {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			names := g.KeyEntities[k]
			if len(names) > maxEntitiesShow {
				names = names[:maxEntitiesShow]
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(names, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func joinProps(props []Property, limit int) string {
	if len(props) > limit {
		props = props[:limit]
	}
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = p.Name + ":" + p.Type
	}
	return strings.Join(parts, ", ")
}

// StaticProvider serves a fixed schema summary.
type StaticProvider struct {
	text string
}

// NewStaticProvider returns a provider that always answers text.
func NewStaticProvider(text string) *StaticProvider {
	return &StaticProvider{text: text}
}

// LoadStaticFile reads a schema summary from path.
func LoadStaticFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeSchemaUnavailable, "failed to read schema file %s", path)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.Newf(errors.CodeSchemaUnavailable, "schema file %s is empty", path)
	}
	return NewStaticProvider(text), nil
}

// Summary implements services.SchemaProvider.
func (p *StaticProvider) Summary(ctx context.Context) (string, error) {
	return p.text, nil
}
