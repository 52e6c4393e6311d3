package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
)

// GenAIAssist is the generative fallback the Translator calls when its
// heuristic pipeline resolves zero conditions from a non-empty query
// (spec §4.1 step 7). It asks the model for the same DSL wire JSON
// internal/screenql.ParseRule already decodes, rather than inventing a
// second rule format, so a malformed completion fails the same validation
// path a malformed client request would.
//
// The client/model setup — genai.NewClient with an API key, JSON response
// mode, safety thresholds relaxed for a finance-domain prompt that
// legitimately discusses debt and distress — is carried from the teacher's
// hedge-fund DSL agent (hedge-fund-investor-source/web/internal/hf-agent/
// hf_dsl_agent.go's NewHedgeFundDSLAgent), and the markdown-fence stripping
// from internal/agent/dsl_agent.go's cleanJSONResponse.
type GenAIAssist struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGenAIAssist constructs a GenAIAssist bound to the given API key. The
// caller owns the returned value's lifetime; call Close when done.
func NewGenAIAssist(ctx context.Context, apiKey, modelName string) (*GenAIAssist, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("translator: genai api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-exp"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("translator: create genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	model.ResponseMIMEType = "application/json"

	return &GenAIAssist{client: client, model: model}, nil
}

// Close releases the underlying genai client.
func (g *GenAIAssist) Close() error { return g.client.Close() }

// Assist asks the model to emit a screenql wire-format Rule for query,
// restricted to the fields the catalog actually exposes, then decodes it
// through the same screenql.ParseRule path used for client-submitted DSL.
// The Validator still runs on whatever comes back; Assist makes no
// correctness claim beyond "well-formed enough to parse".
func (g *GenAIAssist) Assist(ctx context.Context, query string, cat *catalog.Catalog) (*screenql.Rule, error) {
	if g == nil || g.model == nil {
		return nil, fmt.Errorf("translator: genai assist is not initialized")
	}

	systemPrompt := fmt.Sprintf(`You translate an English instrument-screening request into a JSON DSL tree.

Respond ONLY with a single JSON object shaped:
{"filter": <node>, "sort": {"field": "<name>", "order": "asc"|"desc"} (optional), "limit": <int> (optional)}

A <node> is one of:
  {"and": [<node>, ...]}
  {"or": [<node>, ...]}
  {"not": <node>}
  {"field": "<catalog field name>", "operator": "<op>", "value": <literal>}

Valid operators: >, <, >=, <=, =, !=, between, in, not_in, exists.
Only reference field names from this catalog, exactly as spelled:
%s

Do not include markdown, code fences, or any text outside the JSON object.`, catalogFieldList(cat))

	g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := g.model.GenerateContent(ctx, genai.Text(query))
	if err != nil {
		return nil, fmt.Errorf("translator: genai generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("translator: empty genai response")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("translator: unexpected genai response part type %T", resp.Candidates[0].Content.Parts[0])
	}

	rule, err := screenql.ParseRule([]byte(cleanJSONResponse(string(text))))
	if err != nil {
		return nil, fmt.Errorf("translator: genai response did not parse as a rule: %w", err)
	}
	return rule, nil
}

func catalogFieldList(cat *catalog.Catalog) string {
	var b strings.Builder
	for _, f := range cat.All() {
		fmt.Fprintf(&b, "- %s (%s)", f.Name, f.Kind)
		if len(f.Aliases) > 0 {
			fmt.Fprintf(&b, " aliases: %s", strings.Join(f.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// cleanJSONResponse strips markdown code-fence wrappers a model sometimes
// emits even in JSON response mode.
func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		if nl := strings.Index(cleaned, "\n"); nl != -1 {
			cleaned = cleaned[nl+1:]
		}
	}
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if json.Valid([]byte(cleaned)) {
		return cleaned
	}
	if first, last := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); first != -1 && last > first {
		extracted := cleaned[first : last+1]
		if json.Valid([]byte(extracted)) {
			return extracted
		}
	}
	return cleaned
}
