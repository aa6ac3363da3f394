package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// IntegrationStrategy tags how the results of a plan are meant to be combined.
// It only travels to the synthesizer; the integrator treats every strategy alike.
type IntegrationStrategy string

const (
	StrategySingle    IntegrationStrategy = "single"
	StrategyAggregate IntegrationStrategy = "aggregate"
	StrategyCompare   IntegrationStrategy = "compare"
	StrategyCorrelate IntegrationStrategy = "correlate"
	StrategyTimeline  IntegrationStrategy = "timeline"
)

// Valid reports whether s is a known strategy.
func (s IntegrationStrategy) Valid() bool {
	switch s {
	case StrategySingle, StrategyAggregate, StrategyCompare, StrategyCorrelate, StrategyTimeline:
		return true
	}
	return false
}

// QueryPlan is an ordered decomposition of a question into queries.
type QueryPlan struct {
	Queries             []string            `json:"queries"`
	IntegrationStrategy IntegrationStrategy `json:"integration_strategy"`
	Dependencies        [][]int             `json:"dependencies"`
	Reasoning           string              `json:"reasoning"`
}

// PlanParseError describes why planner output could not become a plan.
type PlanParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *PlanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid query plan: %s: %v", e.Reason, e.Err)
	}
	return "invalid query plan: " + e.Reason
}

func (e *PlanParseError) Unwrap() error {
	return e.Err
}

// Validate checks the plan shape: at least one non-empty query and a known
// strategy. Dependencies are checked by ValidateDependencies.
func (p *QueryPlan) Validate() error {
	if p == nil {
		return &PlanParseError{Reason: "plan is nil"}
	}
	if len(p.Queries) == 0 {
		return &PlanParseError{Reason: "plan has no queries"}
	}
	for i, q := range p.Queries {
		if strings.TrimSpace(q) == "" {
			return &PlanParseError{Reason: fmt.Sprintf("query %d is empty", i)}
		}
	}
	if !p.IntegrationStrategy.Valid() {
		return &PlanParseError{Reason: fmt.Sprintf("unknown integration strategy %q", p.IntegrationStrategy)}
	}
	return nil
}

// ValidateDependencies requires one dependency set per query, each pointing
// only at earlier queries.
func (p *QueryPlan) ValidateDependencies() error {
	if len(p.Dependencies) != len(p.Queries) {
		return &PlanParseError{Reason: fmt.Sprintf("dependencies has %d entries for %d queries", len(p.Dependencies), len(p.Queries))}
	}
	for i, deps := range p.Dependencies {
		for _, d := range deps {
			if d < 0 || d >= i {
				return &PlanParseError{Reason: fmt.Sprintf("query %d depends on invalid index %d", i, d)}
			}
		}
	}
	return nil
}

// PadDependencies appends an empty set for every query without one.
func (p *QueryPlan) PadDependencies() {
	for len(p.Dependencies) < len(p.Queries) {
		p.Dependencies = append(p.Dependencies, []int{})
	}
}

// NormalizeDependencies rewrites Dependencies in place to one set per query,
// dropping extra sets and indices that do not point at an earlier query.
// It returns how many sets and indices were dropped.
func (p *QueryPlan) NormalizeDependencies() int {
	dropped := 0
	p.PadDependencies()
	if extra := len(p.Dependencies) - len(p.Queries); extra > 0 {
		dropped += extra
		p.Dependencies = p.Dependencies[:len(p.Queries)]
	}
	for i, deps := range p.Dependencies {
		kept := make([]int, 0, len(deps))
		for _, d := range deps {
			if d < 0 || d >= i {
				dropped++
				continue
			}
			kept = append(kept, d)
		}
		p.Dependencies[i] = kept
	}
	return dropped
}

// IsSingle reports whether the plan collapses to one query.
func (p *QueryPlan) IsSingle() bool {
	return p != nil && len(p.Queries) == 1
}

type rawPlan struct {
	Queries             []string `json:"queries"`
	IntegrationStrategy *string  `json:"integration_strategy"`
	Dependencies        [][]int  `json:"dependencies"`
	Reasoning           string   `json:"reasoning"`
}

// ParseQueryPlan turns planner output into a plan with a valid shape. The JSON
// may be wrapped in a fenced block or surrounded by prose. A missing or short
// dependencies list is padded with empty sets.
func ParseQueryPlan(text string) (*QueryPlan, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &PlanParseError{Reason: "empty planner response"}
	}

	payload, ok := ExtractJSONObject(text)
	if !ok {
		return nil, &PlanParseError{Reason: "no JSON object found", Raw: text}
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, &PlanParseError{Reason: "malformed JSON", Raw: payload, Err: err}
	}
	if raw.Queries == nil {
		return nil, &PlanParseError{Reason: "missing queries", Raw: payload}
	}
	if raw.IntegrationStrategy == nil {
		return nil, &PlanParseError{Reason: "missing integration_strategy", Raw: payload}
	}

	plan := &QueryPlan{
		Queries:             raw.Queries,
		IntegrationStrategy: IntegrationStrategy(strings.ToLower(strings.TrimSpace(*raw.IntegrationStrategy))),
		Dependencies:        raw.Dependencies,
		Reasoning:           raw.Reasoning,
	}
	// Dependencies are kept as given apart from padding; the executor decides
	// whether to normalise or enforce them.
	plan.PadDependencies()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

var fencedBlock = regexp.MustCompile("(?s)```(\\w*)\\s*\\n?(.*?)```")

// ExtractJSONObject finds a JSON object in free text. Fenced blocks tagged
// json or untagged are tried first, then the first balanced {...} span.
func ExtractJSONObject(text string) (string, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(m[2])
		if strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
			return content, true
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	candidate := matchBraces(text[start:])
	if candidate == "" || !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// matchBraces returns the shortest prefix of s that closes the brace opening it.
func matchBraces(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
