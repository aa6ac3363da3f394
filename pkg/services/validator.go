package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TFMV/cypherplan/pkg/models"
)

const (
	// MinComplexity is the score of a query that matches nothing.
	MinComplexity = 1
	// MaxComplexity caps the estimated complexity.
	MaxComplexity = 5

	issueDangerous    = "Potentially dangerous operation detected: "
	issueExpensive    = "Potentially expensive operation: "
	issueMissingLimit = "Consider adding LIMIT clause for performance"
)

// cypherPattern is a named rule. A rule fires when re matches at least
// minCount times and, if set, accept approves at least one of the matches.
type cypherPattern struct {
	name     string
	re       *regexp.Regexp
	minCount int
	accept   func(query string, loc []int) bool
}

func (p cypherPattern) matches(query string) bool {
	locs := p.re.FindAllStringIndex(query, -1)
	need := p.minCount
	if need < 1 {
		need = 1
	}
	if len(locs) < need {
		return false
	}
	if p.accept == nil {
		return true
	}
	for _, loc := range locs {
		if p.accept(query, loc) {
			return true
		}
	}
	return false
}

var (
	reWhereWord    = regexp.MustCompile(`(?i)\bWHERE\b`)
	reLeadingWhere = regexp.MustCompile(`(?i)^\s*WHERE\b`)
	reMatchWord    = regexp.MustCompile(`(?i)\bMATCH\b`)
	reLimitWord    = regexp.MustCompile(`(?i)\bLIMIT\b`)
	reWithWord     = regexp.MustCompile(`(?i)\bWITH\b`)
	reStringWith   = regexp.MustCompile(`(?i)\b(?:STARTS|ENDS)\s+WITH\b`)
	reBoundTrigger = regexp.MustCompile(`(?i)\b(?:COLLECT|COUNT|UNWIND)\b`)
	reShortestPath = regexp.MustCompile(`(?i)SHORTESTPATH`)
)

// notFollowedByWhere accepts a match whose next clause is not WHERE.
func notFollowedByWhere(query string, loc []int) bool {
	return !reLeadingWhere.MatchString(query[loc[1]:])
}

// noWhereOnLine accepts a match with no WHERE between it and the end of its line.
func noWhereOnLine(query string, loc []int) bool {
	rest := query[loc[1]:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return !reWhereWord.MatchString(rest)
}

// Dangerous rules run first; each hit marks the query as writing.
var dangerousPatterns = []cypherPattern{
	{name: "DELETE", re: regexp.MustCompile(`(?i)\bDELETE\b`)},
	{name: "REMOVE", re: regexp.MustCompile(`(?i)\bREMOVE\b`)},
	{name: "SET ... = null", re: regexp.MustCompile(`(?i)\bSET\b.*=\s*NULL\b`)},
	{name: "DROP", re: regexp.MustCompile(`(?i)\bDROP\b`)},
	{name: "CREATE without WHERE", re: regexp.MustCompile(`(?i)\bCREATE\b`), accept: noWhereOnLine},
	{name: "MERGE", re: regexp.MustCompile(`(?i)\bMERGE\b`)},
	{name: "DETACH DELETE", re: regexp.MustCompile(`(?i)\bDETACH\s+DELETE\b`)},
}

var expensivePatterns = []cypherPattern{
	{
		name:   "relationship traversal without WHERE",
		re:     regexp.MustCompile(`(?i)\bMATCH\s*\([^)]*\)\s*<?-\s*\[[^\]]*\]\s*->?\s*\([^)]*\)`),
		accept: notFollowedByWhere,
	},
	{
		name:   "MATCH without WHERE",
		re:     regexp.MustCompile(`(?i)\bMATCH\s*\([^)]*\)`),
		accept: notFollowedByWhere,
	},
	{name: "COLLECT", re: regexp.MustCompile(`(?i)\bCOLLECT\s*\(`)},
	{name: "multiple UNWIND", re: regexp.MustCompile(`(?i)\bUNWIND\b`), minCount: 2},
}

// QueryValidator statically vets Cypher text. It holds no mutable state and
// is safe for concurrent use.
type QueryValidator struct {
	dangerous []cypherPattern
	expensive []cypherPattern
}

// NewQueryValidator returns a validator with the built-in rule tables.
func NewQueryValidator() *QueryValidator {
	return &QueryValidator{
		dangerous: dangerousPatterns,
		expensive: expensivePatterns,
	}
}

var defaultValidator = NewQueryValidator()

// ValidateQuery vets query with the built-in rule tables.
func ValidateQuery(query string) models.QueryValidationResult {
	return defaultValidator.Validate(query)
}

// Validate classifies query as read-only or writing, lists the rules it trips
// and scores its complexity from 1 to 5. Only dangerous rules invalidate.
func (v *QueryValidator) Validate(query string) models.QueryValidationResult {
	issues := []string{}
	readOnly := true
	valid := true
	complexity := MinComplexity

	for _, p := range v.dangerous {
		if p.matches(query) {
			issues = append(issues, issueDangerous+p.name)
			readOnly = false
			valid = false
		}
	}

	for _, p := range v.expensive {
		if p.matches(query) {
			issues = append(issues, issueExpensive+p.name)
			complexity++
		}
	}

	hasMatch := reMatchWord.MatchString(query)
	if hasMatch && !reLimitWord.MatchString(query) && reBoundTrigger.MatchString(query) {
		issues = append(issues, issueMissingLimit)
		complexity++
	}

	if len(reMatchWord.FindAllStringIndex(query, -1)) > 2 {
		complexity++
	}
	if countProjections(query) > 1 {
		complexity++
	}
	if reShortestPath.MatchString(query) {
		complexity += 2
	}

	if complexity > MaxComplexity {
		complexity = MaxComplexity
	}

	return models.QueryValidationResult{
		IsValid:             valid,
		Issues:              issues,
		IsReadOnly:          readOnly,
		EstimatedComplexity: complexity,
	}
}

// countProjections counts WITH clauses, ignoring the STARTS WITH and ENDS WITH operators.
func countProjections(query string) int {
	return len(reWithWord.FindAllStringIndex(query, -1)) - len(reStringWith.FindAllStringIndex(query, -1))
}

// DescribeValidation renders a one-line summary for logs and the CLI.
func DescribeValidation(v models.QueryValidationResult) string {
	mode := "read-only"
	if !v.IsReadOnly {
		mode = "write"
	}
	return fmt.Sprintf("valid=%t mode=%s complexity=%d issues=%d", v.IsValid, mode, v.EstimatedComplexity, len(v.Issues))
}
