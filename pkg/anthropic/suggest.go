package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Suggestion holds search criteria derived from a free-text activity
// description. Codes come back exactly as the model produced them; callers
// validate them against the activity referential before use.
type Suggestion struct {
	Sections       []string `json:"naf_sections"`
	Codes          []string `json:"naf_codes"`
	HeadcountCodes []string `json:"headcount_codes"`
	Summary        string   `json:"summary"`
}

// suggestSystemPrompt steers the model toward a strict JSON object whose
// fields match the criteria the search command accepts.
const suggestSystemPrompt = `Tu es un expert de la nomenclature NAF rév. 2 de l'INSEE et des tranches d'effectifs salariés.
À partir de la description d'un métier ou d'un projet professionnel, propose des critères de recherche d'entreprises.

Réponds UNIQUEMENT avec un objet JSON de la forme :
{"naf_sections": ["J"], "naf_codes": ["62.01Z"], "headcount_codes": ["11", "12"], "summary": "explication courte"}

Règles :
- les sections NAF sont des lettres de A à U
- les codes NAF suivent le format 00.00X (deux chiffres, un point, deux chiffres, une lettre majuscule)
- les tranches d'effectifs sont les codes INSEE : NN, 00, 01, 02, 03, 11, 12, 21, 22, 31, 32, 41, 42, 51, 52, 53
- exclus par défaut les tranches TPE (01, 02, 03) sauf si la demande évoque une petite structure, un artisan ou un indépendant
- aucun texte en dehors de l'objet JSON`

// SuggestRequest configures a single suggestion call.
type SuggestRequest struct {
	Model     string
	MaxTokens int64
	Query     string
}

// SuggestNAF asks the model to translate a free-text activity description
// into NAF sections, specific codes and headcount brackets.
func SuggestNAF(ctx context.Context, client Client, req SuggestRequest) (*Suggestion, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, eris.New("anthropic: empty suggestion query")
	}

	// Classification, not creative writing.
	temperature := 0.0
	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      suggestSystemPrompt,
		Messages:    []Message{{Role: "user", Content: req.Query}},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: suggest naf")
	}

	var out Suggestion
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &out); err != nil {
		return nil, eris.Wrap(err, "anthropic: parse suggestion")
	}

	out.Sections = cleanCodes(out.Sections)
	out.Codes = cleanCodes(out.Codes)
	out.HeadcountCodes = cleanCodes(out.HeadcountCodes)
	out.Summary = strings.TrimSpace(out.Summary)

	if len(out.Sections) == 0 && len(out.Codes) == 0 {
		return nil, eris.New("anthropic: no usable criteria in suggestion")
	}
	return &out, nil
}

// cleanCodes uppercases, trims and deduplicates codes, dropping blanks.
func cleanCodes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
