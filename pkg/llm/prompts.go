package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TFMV/cypherplan/pkg/models"
)

// Sampling settings per prompt.
const (
	planTemperature       = 0.1
	planMaxTokens         = 800
	generateMaxTokens     = 500
	synthTemperature      = 0.1
	singleSynthMaxTokens  = 300
	integratedSynthTokens = 500
	singleSynthSampleRows = 20
)

// DefaultDomainContext describes the historical Berlin transport graph.
const DefaultDomainContext = `- The database covers the Berlin transport network from 1946 to 1989
- Political division: unified (1946-1960), east/west (1961 onwards), see the east_west property
- Year nodes carry a year property: (y:Year {year: 1964}), entities link to them via :IN_YEAR
- Administrative hierarchy: Station -> HistoricalOrtsteil -> HistoricalBezirk
- Transport types: tram, u-bahn, s-bahn, autobus, ferry, oberleitungsbus`

const planSystemPrompt = `You decompose complex questions about a graph database into a small number of focused Cypher queries.

Respond with valid JSON only. Do not add explanations, markdown or any other text.

Rules:
1. Use several queries only when the question genuinely needs them
2. Each query must be answerable on its own
3. Record dependencies between queries by index
4. Pick the integration strategy that fits the question

Integration strategies:
- "single": one query is enough
- "aggregate": combine counts, sums or other aggregates
- "compare": set results side by side
- "correlate": relate different result sets to each other
- "timeline": merge temporal results into a chronology

Output format:
{
    "queries": ["MATCH (s:Station) RETURN count(s)", "MATCH (l:Line) RETURN count(l)"],
    "integration_strategy": "compare",
    "dependencies": [[], [0]],
    "reasoning": "Why this decomposition was chosen"
}`

const generateSystemPrompt = `You translate natural language questions into precise, read-only Neo4j Cypher queries.

Principles:
- Use only labels, relationship types and properties from the schema
- Filter by time with Year nodes when a period is mentioned
- Apply aggregation and ordering where the question asks for it
- Always include a reasonable LIMIT
- Reply with the Cypher query only, without explanation`

const singleSynthSystemPrompt = `You interpret Neo4j query results and answer questions about them clearly.

Analyse the results in the light of the question, give a factual answer based on the data, add relevant context where it helps, explain what an empty result means, and keep the answer concise.`

const integratedSynthSystemPrompt = `You combine the results of several related Neo4j queries into one answer.

Integrate the results according to the given strategy, tolerate partial results when some queries failed, mention limitations that follow from failures, and answer the original question as a single coherent narrative.`

func planUserPrompt(question, schema, domain string) string {
	return fmt.Sprintf(`Create a query plan for this question.

QUESTION: %s

GRAPH SCHEMA:
%s

Context:
%s

If a single focused query answers the question, return:
{"queries": ["SINGLE_QUERY"], "integration_strategy": "single", "dependencies": [[]], "reasoning": "Single query sufficient"}

Query plan:`, question, schema, domain)
}

func generateUserPrompt(question, schema, domain string) string {
	return fmt.Sprintf(`Write a Cypher query that answers this question using the schema below.

QUESTION: %s

GRAPH SCHEMA:
%s

Context:
%s

Guidelines:
1. Return only the Cypher query
2. Use the node labels and relationship types of the schema
3. Filter with WHERE clauses
4. Add a LIMIT clause (default LIMIT 100)

Cypher query:`, question, schema, domain)
}

func singleSynthUserPrompt(question, query string, records []models.Row) string {
	sample := records
	if len(sample) > singleSynthSampleRows {
		sample = sample[:singleSynthSampleRows]
	}
	return fmt.Sprintf(`Original question: %s

Cypher query used: %s

Query results (%d records in total, showing the first %d):
%s

Answer the original question from these results. Include relevant numbers, names and context.

Answer:`, question, query, len(records), len(sample), toJSON(sample))
}

func integratedSynthUserPrompt(question string, ic *models.IntegratedContext) string {
	var queries strings.Builder
	for i, q := range ic.Queries {
		fmt.Fprintf(&queries, "%d. %s\n", i+1, q)
	}
	return fmt.Sprintf(`Original question: %s

Plan strategy: %s
Plan reasoning: %s

Queries executed:
%s
Query results:
%s

Integrate these results into one answer to the original question. If some queries failed, work with the data that is available and say what is missing.

Answer:`, question, ic.Strategy, ic.Reasoning, queries.String(), ic.PromptSummary())
}

func toJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
