package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
	"github.com/TFMV/cypherplan/pkg/repositories"
)

const (
	labelsQuery   = "CALL db.labels() YIELD label RETURN label ORDER BY label"
	relTypesQuery = "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType ORDER BY relationshipType"
)

// KeyEntityQuery lists representative names of one entity kind.
type KeyEntityQuery struct {
	Kind  string
	Query string
}

// DefaultKeyEntities samples the names most questions refer to.
var DefaultKeyEntities = []KeyEntityQuery{
	{Kind: "stations", Query: "MATCH (s:Station) WHERE s.name IS NOT NULL RETURN DISTINCT s.name AS name ORDER BY name LIMIT 50"},
	{Kind: "lines", Query: "MATCH (l:Line) WHERE l.name IS NOT NULL RETURN DISTINCT l.name AS name ORDER BY name LIMIT 30"},
}

// Loader introspects a live graph. Its queries bypass the safe executor
// because they are fixed and read-only.
type Loader struct {
	repo        repositories.GraphRepository
	keyEntities []KeyEntityQuery
	logger      zerolog.Logger
}

// NewLoader creates a loader. A nil keyEntities uses DefaultKeyEntities.
func NewLoader(repo repositories.GraphRepository, keyEntities []KeyEntityQuery, logger zerolog.Logger) *Loader {
	if keyEntities == nil {
		keyEntities = DefaultKeyEntities
	}
	return &Loader{
		repo:        repo,
		keyEntities: keyEntities,
		logger:      logger.With().Str("component", "schema_loader").Logger(),
	}
}

// Summary implements services.SchemaProvider.
func (l *Loader) Summary(ctx context.Context) (string, error) {
	g, err := l.Load(ctx)
	if err != nil {
		return "", err
	}
	return g.Summary(), nil
}

// Load introspects labels, relationship types, their counts and properties,
// and samples key entity names. Only the label and relationship type listings
// are required; per-type detail that fails is logged and left empty.
func (l *Loader) Load(ctx context.Context) (*GraphSchema, error) {
	l.logger.Debug().Msg("Loading graph schema")

	labels, err := l.column(ctx, labelsQuery, "label")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSchemaUnavailable, "failed to list node labels")
	}
	relTypes, err := l.column(ctx, relTypesQuery, "relationshipType")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSchemaUnavailable, "failed to list relationship types")
	}

	g := &GraphSchema{KeyEntities: make(map[string][]string)}
	for _, label := range labels {
		g.NodeTypes = append(g.NodeTypes, l.nodeType(ctx, label))
	}
	for _, rt := range relTypes {
		g.RelationshipTypes = append(g.RelationshipTypes, l.relationshipType(ctx, rt))
	}
	for _, ke := range l.keyEntities {
		names, err := l.column(ctx, ke.Query, "name")
		if err != nil {
			l.logger.Warn().Err(err).Str("kind", ke.Kind).Msg("Failed to sample key entities")
			continue
		}
		if len(names) > 0 {
			g.KeyEntities[ke.Kind] = names
		}
	}

	l.logger.Info().
		Int("labels", len(g.NodeTypes)).
		Int("relationship_types", len(g.RelationshipTypes)).
		Msg("Graph schema loaded")

	return g, nil
}

func (l *Loader) nodeType(ctx context.Context, label string) NodeType {
	nt := NodeType{Label: label}
	q := fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", quoteName(label))
	if rows, err := l.rows(ctx, q); err == nil && len(rows) > 0 {
		nt.Count = toInt64(rows[0]["count"])
	} else if err != nil {
		l.logger.Warn().Err(err).Str("label", label).Msg("Failed to count nodes")
	}

	q = fmt.Sprintf(`MATCH (n:%s) WITH n LIMIT 1000
UNWIND keys(n) AS prop
RETURN prop, count(*) AS frequency, collect(DISTINCT valueType(n[prop]))[0] AS type
ORDER BY frequency DESC LIMIT 20`, quoteName(label))
	nt.Properties = l.properties(ctx, q, "label", label)
	return nt
}

func (l *Loader) relationshipType(ctx context.Context, relType string) RelationshipType {
	rt := RelationshipType{Type: relType, StartLabels: []string{}, EndLabels: []string{}}
	q := fmt.Sprintf(`MATCH (a)-[r:%s]->(b)
RETURN count(r) AS count, collect(DISTINCT labels(a)[0]) AS start_labels, collect(DISTINCT labels(b)[0]) AS end_labels`,
		quoteName(relType))
	if rows, err := l.rows(ctx, q); err == nil && len(rows) > 0 {
		rt.Count = toInt64(rows[0]["count"])
		rt.StartLabels = toStrings(rows[0]["start_labels"])
		rt.EndLabels = toStrings(rows[0]["end_labels"])
	} else if err != nil {
		l.logger.Warn().Err(err).Str("relationship_type", relType).Msg("Failed to describe relationship type")
	}

	q = fmt.Sprintf(`MATCH ()-[r:%s]->() WITH r LIMIT 1000
UNWIND keys(r) AS prop
RETURN prop, count(*) AS frequency, collect(DISTINCT valueType(r[prop]))[0] AS type
ORDER BY frequency DESC LIMIT 10`, quoteName(relType))
	rt.Properties = l.properties(ctx, q, "relationship_type", relType)
	return rt
}

func (l *Loader) properties(ctx context.Context, query, key, name string) []Property {
	rows, err := l.rows(ctx, query)
	if err != nil {
		l.logger.Warn().Err(err).Str(key, name).Msg("Failed to list properties")
		return []Property{}
	}
	props := make([]Property, 0, len(rows))
	for _, r := range rows {
		p := Property{Name: fmt.Sprint(r["prop"]), Type: "unknown"}
		if t, ok := r["type"].(string); ok && t != "" {
			p.Type = t
		}
		props = append(props, p)
	}
	return props
}

func (l *Loader) rows(ctx context.Context, query string) ([]models.Row, error) {
	res, err := l.repo.ExecuteRead(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New(errors.CodeQueryFailed, res.ErrorMessage)
	}
	return res.Records, nil
}

func (l *Loader) column(ctx context.Context, query, key string) ([]string, error) {
	rows, err := l.rows(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r[key]; ok && v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}

// quoteName backtick-quotes a label or relationship type.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toStrings(v interface{}) []string {
	out := []string{}
	switch items := v.(type) {
	case []interface{}:
		for _, it := range items {
			if it != nil {
				out = append(out, fmt.Sprint(it))
			}
		}
	case []string:
		out = append(out, items...)
	}
	sort.Strings(out)
	return out
}
