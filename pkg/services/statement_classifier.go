package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TFMV/cypherplan/pkg/models"
)

// StatementType is the coarse kind of a Cypher statement.
type StatementType int

const (
	StatementTypeRead      StatementType = iota // MATCH, OPTIONAL MATCH, UNWIND, RETURN
	StatementTypeWrite                          // CREATE, MERGE, SET, DELETE, REMOVE
	StatementTypeSchema                         // CREATE/DROP INDEX or CONSTRAINT
	StatementTypeProcedure                      // CALL
	StatementTypeUtility                        // EXPLAIN, PROFILE, SHOW, USE
	StatementTypeOther                          // Unrecognized statements
)

// String returns the string representation of the statement type.
func (st StatementType) String() string {
	switch st {
	case StatementTypeRead:
		return "READ"
	case StatementTypeWrite:
		return "WRITE"
	case StatementTypeSchema:
		return "SCHEMA"
	case StatementTypeProcedure:
		return "PROCEDURE"
	case StatementTypeUtility:
		return "UTILITY"
	case StatementTypeOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// StatementInfo describes a Cypher statement for logs and the CLI.
type StatementInfo struct {
	Type       StatementType                `json:"-"`
	TypeName   string                       `json:"type"`
	Clauses    []string                     `json:"clauses"`
	Labels     []string                     `json:"labels"`
	RelTypes   []string                     `json:"relationship_types"`
	HasLimit   bool                         `json:"has_limit"`
	Aggregate  bool                         `json:"aggregate"`
	Validation models.QueryValidationResult `json:"validation"`
}

var (
	schemaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:CREATE|DROP)\s+(?:INDEX|CONSTRAINT|FULLTEXT\s+INDEX|RANGE\s+INDEX|TEXT\s+INDEX|POINT\s+INDEX|VECTOR\s+INDEX)\b`),
		regexp.MustCompile(`(?i)^\s*(?:CREATE|DROP|ALTER)\s+(?:DATABASE|ALIAS|USER|ROLE)\b`),
	}
	writePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bCREATE\b`),
		regexp.MustCompile(`(?i)\bMERGE\b`),
		regexp.MustCompile(`(?i)\bSET\b`),
		regexp.MustCompile(`(?i)\bDELETE\b`),
		regexp.MustCompile(`(?i)\bREMOVE\b`),
		regexp.MustCompile(`(?i)\bLOAD\s+CSV\b`),
		regexp.MustCompile(`(?i)\bFOREACH\b`),
	}
	procedurePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*CALL\b`),
	}
	utilityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*EXPLAIN\b`),
		regexp.MustCompile(`(?i)^\s*PROFILE\b`),
		regexp.MustCompile(`(?i)^\s*SHOW\b`),
		regexp.MustCompile(`(?i)^\s*USE\b`),
	}
	readPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:OPTIONAL\s+)?MATCH\b`),
		regexp.MustCompile(`(?i)^\s*UNWIND\b`),
		regexp.MustCompile(`(?i)^\s*WITH\b`),
		regexp.MustCompile(`(?i)^\s*RETURN\b`),
	}

	clauseKeywords = []string{
		"OPTIONAL MATCH", "MATCH", "WHERE", "WITH", "UNWIND", "RETURN", "ORDER BY",
		"SKIP", "LIMIT", "CALL", "UNION", "CREATE", "MERGE", "SET", "DELETE",
		"DETACH DELETE", "REMOVE", "FOREACH",
	}
	clausePatterns = compileClauses(clauseKeywords)

	reLabel   = regexp.MustCompile(`\(\s*\w*\s*((?::\s*\w+)+)`)
	reRelType = regexp.MustCompile(`\[\s*\w*\s*:\s*(\w+(?:\s*\|\s*:?\w+)*)`)
)

func compileClauses(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(keywords))
	for i, k := range keywords {
		out[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(k, " ", `\s+`) + `\b`)
	}
	return out
}

// ClassifyStatement analyses a Cypher statement.
func ClassifyStatement(query string) (*StatementInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("cypher statement cannot be empty")
	}

	info := &StatementInfo{
		Type:       classifyStatementType(query),
		Clauses:    extractClauses(query),
		Labels:     extractLabels(query),
		RelTypes:   extractRelTypes(query),
		HasLimit:   HasLimit(query),
		Aggregate:  IsAggregate(query),
		Validation: ValidateQuery(query),
	}
	info.TypeName = info.Type.String()
	return info, nil
}

// GetStatementType returns the coarse kind of query.
func GetStatementType(query string) StatementType {
	return classifyStatementType(query)
}

func classifyStatementType(query string) StatementType {
	if anyMatch(schemaPatterns, query) {
		return StatementTypeSchema
	}
	if anyMatch(utilityPatterns, query) {
		return StatementTypeUtility
	}
	if anyMatch(writePatterns, query) {
		return StatementTypeWrite
	}
	if anyMatch(procedurePatterns, query) {
		return StatementTypeProcedure
	}
	if anyMatch(readPatterns, query) {
		return StatementTypeRead
	}
	return StatementTypeOther
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func extractClauses(query string) []string {
	clauses := []string{}
	for i, p := range clausePatterns {
		if p.MatchString(query) {
			clauses = append(clauses, clauseKeywords[i])
		}
	}
	return clauses
}

func extractLabels(query string) []string {
	seen := make(map[string]bool)
	labels := []string{}
	for _, m := range reLabel.FindAllStringSubmatch(query, -1) {
		for _, part := range strings.Split(m[1], ":") {
			l := strings.TrimSpace(part)
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels
}

func extractRelTypes(query string) []string {
	seen := make(map[string]bool)
	types := []string{}
	for _, m := range reRelType.FindAllStringSubmatch(query, -1) {
		for _, part := range strings.Split(m[1], "|") {
			t := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), ":"))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
