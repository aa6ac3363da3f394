package services

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultQueryLimit bounds unbounded generated queries.
const DefaultQueryLimit = 1000

var aggregatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bCOUNT\s*\(`),
	regexp.MustCompile(`(?i)\bSUM\s*\(`),
	regexp.MustCompile(`(?i)\bAVG\s*\(`),
	regexp.MustCompile(`(?i)\bMIN\s*\(`),
	regexp.MustCompile(`(?i)\bMAX\s*\(`),
	regexp.MustCompile(`(?i)\bRETURN\s+count\s*\(`),
}

// IsAggregate reports whether query computes an aggregate and therefore
// returns a bounded number of rows.
func IsAggregate(query string) bool {
	for _, re := range aggregatePatterns {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// HasLimit reports whether query already carries a LIMIT clause.
func HasLimit(query string) bool {
	return reLimitWord.MatchString(query)
}

// AddSafetyLimit appends " LIMIT n" to the right-trimmed query unless it is
// already bounded or is an aggregate. Applying it twice is a no-op.
// A non-positive limit falls back to DefaultQueryLimit.
func AddSafetyLimit(query string, limit int) string {
	if HasLimit(query) || IsAggregate(query) {
		return query
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return strings.TrimRight(query, " \t\r\n") + " LIMIT " + strconv.Itoa(limit)
}

// OptimizeQuery applies the default bounding rewrite.
func OptimizeQuery(query string) string {
	return AddSafetyLimit(query, DefaultQueryLimit)
}
