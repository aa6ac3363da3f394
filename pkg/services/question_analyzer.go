package services

import (
	"regexp"
	"strings"
)

// Thresholds for routing a question to the multi-query path.
const (
	minIndicatorHits   = 2
	minTemporalHits    = 2
	minEntityHits      = 3
	minCompareEntities = 2
)

var complexityIndicators = []string{
	"compare", "comparison", "between", "before and after", "change",
	"difference", "evolution", "timeline", "both", "as well as",
	"in addition to", "meanwhile", "at the same time", "correlation",
	"relationship between", "impact of", "how did", "what happened to",
	"breakdown by", "analysis of", "multiple", "various",
}

var entityIndicators = []string{
	"station", "line", "district", "transport", "bezirk", "ortsteil",
}

var comparisonKeywords = []string{"compare", "comparison"}

var (
	reTemporalWord = regexp.MustCompile(`\b(?:from|to|between|before|after)\b`)
	reYearToken    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// Trigger names the rule that routed a question to multiple queries.
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerIndicators Trigger = "complexity_indicators"
	TriggerTemporal   Trigger = "temporal_indicators"
	TriggerEntities   Trigger = "entity_types"
	TriggerComparison Trigger = "comparison_entities"
)

// QuestionAnalysis holds the counts behind a routing decision.
type QuestionAnalysis struct {
	IndicatorCount int     `json:"indicator_count"`
	TemporalCount  int     `json:"temporal_count"`
	EntityCount    int     `json:"entity_count"`
	HasComparison  bool    `json:"has_comparison"`
	NeedsMulti     bool    `json:"needs_multi_query"`
	Trigger        Trigger `json:"trigger,omitempty"`
}

// AnalyzeQuestion counts indicator phrases in question, case-insensitively.
// Indicator and entity phrases match as substrings. Temporal keywords match
// as whole words and every distinct four-digit year counts once.
func AnalyzeQuestion(question string) QuestionAnalysis {
	q := strings.ToLower(question)

	a := QuestionAnalysis{
		IndicatorCount: countContained(q, complexityIndicators),
		EntityCount:    countContained(q, entityIndicators),
		HasComparison:  countContained(q, comparisonKeywords) > 0,
	}

	temporal := make(map[string]struct{})
	for _, w := range reTemporalWord.FindAllString(q, -1) {
		temporal[w] = struct{}{}
	}
	for _, y := range reYearToken.FindAllString(q, -1) {
		temporal[y] = struct{}{}
	}
	a.TemporalCount = len(temporal)

	switch {
	case a.IndicatorCount >= minIndicatorHits:
		a.Trigger = TriggerIndicators
	case a.TemporalCount >= minTemporalHits:
		a.Trigger = TriggerTemporal
	case a.EntityCount >= minEntityHits:
		a.Trigger = TriggerEntities
	case a.HasComparison && a.EntityCount >= minCompareEntities:
		a.Trigger = TriggerComparison
	}
	a.NeedsMulti = a.Trigger != TriggerNone
	return a
}

// NeedsMultiQuery reports whether question should be decomposed.
func NeedsMultiQuery(question string) bool {
	return AnalyzeQuestion(question).NeedsMulti
}

func countContained(s string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(s, p) {
			n++
		}
	}
	return n
}
