package llm

import (
	"context"
	"strings"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/models"
)

// Completer is the prompt-level model call used by the agents.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// Planner asks the model to decompose a question into a query plan.
// It implements services.Planner and returns the raw model text.
type Planner struct {
	client Completer
	domain string
}

// NewPlanner creates a planner. An empty domain uses DefaultDomainContext.
func NewPlanner(client Completer, domain string) *Planner {
	return &Planner{client: client, domain: domainOrDefault(domain)}
}

// Plan returns the model's plan text. Parsing is left to the caller.
func (p *Planner) Plan(ctx context.Context, question, schemaSummary string) (string, error) {
	text, err := p.client.Complete(ctx, planSystemPrompt, planUserPrompt(question, schemaSummary, p.domain), planTemperature, planMaxTokens)
	if err != nil {
		return "", errors.Wrap(err, errors.CodePlanningFailed, "query planning call failed")
	}
	if text == "" {
		return "", errors.New(errors.CodePlanningFailed, "empty response from query planner")
	}
	return text, nil
}

// Generator turns a question into a single Cypher query. It implements services.QueryGenerator.
type Generator struct {
	client      Completer
	domain      string
	temperature float64
}

// NewGenerator creates a generator sampling at temperature.
func NewGenerator(client Completer, domain string, temperature float64) *Generator {
	return &Generator{client: client, domain: domainOrDefault(domain), temperature: temperature}
}

// GenerateQuery returns the Cypher text extracted from the model reply.
func (g *Generator) GenerateQuery(ctx context.Context, question, schemaSummary string) (string, error) {
	text, err := g.client.Complete(ctx, generateSystemPrompt, generateUserPrompt(question, schemaSummary, g.domain), g.temperature, generateMaxTokens)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeGenerationFailed, "cypher generation call failed")
	}
	query := ExtractCypher(text)
	if query == "" {
		return "", errors.New(errors.CodeGenerationFailed, "model returned no query")
	}
	return query, nil
}

// Synthesizer writes natural language answers from query results.
// It implements services.Synthesizer.
type Synthesizer struct {
	client Completer
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client Completer) *Synthesizer {
	return &Synthesizer{client: client}
}

// SynthesizeSingle answers from one query's rows.
func (s *Synthesizer) SynthesizeSingle(ctx context.Context, question, query string, records []models.Row) (string, error) {
	text, err := s.client.Complete(ctx, singleSynthSystemPrompt, singleSynthUserPrompt(question, query, records), synthTemperature, singleSynthMaxTokens)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeSynthesisFailed, "answer synthesis call failed")
	}
	return text, nil
}

// SynthesizeIntegrated answers from the merged results of a plan.
func (s *Synthesizer) SynthesizeIntegrated(ctx context.Context, question string, integrated *models.IntegratedContext) (string, error) {
	text, err := s.client.Complete(ctx, integratedSynthSystemPrompt, integratedSynthUserPrompt(question, integrated), synthTemperature, integratedSynthTokens)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeSynthesisFailed, "integrated synthesis call failed")
	}
	return text, nil
}

var cypherPrefixes = []string{
	"cypher:",
	"query:",
	"here's the query:",
	"the cypher query is:",
}

// ExtractCypher strips a surrounding code fence and one leading label such
// as "Query:" from a model reply.
func ExtractCypher(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		text = strings.Join(lines, "\n")
	}

	lower := strings.ToLower(text)
	for _, p := range cypherPrefixes {
		if strings.HasPrefix(lower, p) {
			text = strings.TrimSpace(text[len(p):])
			break
		}
	}
	return strings.TrimSpace(text)
}

func domainOrDefault(domain string) string {
	if strings.TrimSpace(domain) == "" {
		return DefaultDomainContext
	}
	return domain
}
