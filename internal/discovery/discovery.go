// Package discovery finds hiring targets through web-search-enabled model
// calls and normalizes the response into structured target records.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/llm"
	"github.com/applydraft/pkg/models"
)

const (
	// MinTargets and MaxTargets bound a single search request.
	MinTargets = 1
	MaxTargets = 10

	snippetLen = 300
)

// Request describes one target search.
type Request struct {
	Instructions string
	Definitions  string
	Requirements string
	Count        int
	Excluded     []string
}

// Result holds parsed targets plus firms the model reported but skipped.
// Err carries a non-fatal parse failure description; callers surface it to
// the user without charging for targets.
type Result struct {
	Targets []models.Target
	Skipped []models.SkippedFirm
	Usage   models.TokenUsage
	Err     string
}

// Searcher runs target discovery against a generator.
type Searcher struct {
	gen ai.Generator
}

func NewSearcher(gen ai.Generator) *Searcher {
	return &Searcher{gen: gen}
}

// ClampCount bounds a requested target count to the allowed range. Zero and
// negative counts are rejected by Search before any call is made; this is
// for callers that want to normalize user input up front.
func ClampCount(count int) int {
	if count < MinTargets {
		return MinTargets
	}
	if count > MaxTargets {
		return MaxTargets
	}
	return count
}

// Search runs one discovery call. It validates inputs before spending any
// tokens, builds the search prompt, and parses the response through a chain
// of progressively more tolerant strategies.
func (s *Searcher) Search(ctx context.Context, req Request) (*Result, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("target count must be positive, got %d", req.Count)
	}
	if strings.TrimSpace(req.Requirements) == "" {
		return nil, fmt.Errorf("job requirements are empty")
	}
	count := req.Count
	if count > MaxTargets {
		count = MaxTargets
	}

	maxSearches := count + 2
	maxOutput := count*1000 + 2000
	if maxOutput > 12000 {
		maxOutput = 12000
	}

	res, err := s.gen.Generate(ctx, ai.GenerateRequest{
		System:          searchSystemPrompt(req),
		Prompt:          searchUserPrompt(req, count),
		MaxOutputTokens: maxOutput,
		SearchEnabled:   true,
		MaxSearchOps:    maxSearches,
	})
	if err != nil {
		return nil, fmt.Errorf("target search failed: %w", err)
	}

	out := parseSearchResponse(res.Text)
	out.Usage = res.Usage
	out.Targets = filterExcluded(out.Targets, req.Excluded)
	for i := range out.Targets {
		out.Targets[i].Source = "search"
	}

	log.Debug().
		Int("requested", count).
		Int("found", len(out.Targets)).
		Int("skipped", len(out.Skipped)).
		Msg("target search completed")
	return out, nil
}

func searchSystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a job application research assistant. You search the web for organizations currently hiring that match the candidate's requirements, and you return structured contact data.\n\n")
	if strings.TrimSpace(req.Instructions) != "" {
		b.WriteString("Candidate search instructions:\n")
		b.WriteString(strings.TrimSpace(req.Instructions))
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(req.Definitions) != "" {
		b.WriteString("The cover letter uses these custom sections; prefer targets where you can find the information they need:\n")
		b.WriteString(strings.TrimSpace(req.Definitions))
		b.WriteString("\n\n")
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Only include organizations with a direct application email address. Skip postings that require a web portal or form.\n")
	b.WriteString("- If a posting names a contact person but no address, infer the address only when the organization's email pattern is published or evident from other addresses on the same domain.\n")
	b.WriteString("- Never invent email addresses.\n")
	b.WriteString("- Respond with JSON only, no prose around it.\n")
	return b.String()
}

func searchUserPrompt(req Request, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find %d organizations currently hiring that match these requirements:\n\n%s\n\n", count, strings.TrimSpace(req.Requirements))
	if len(req.Excluded) > 0 {
		excluded, _ := json.Marshal(req.Excluded)
		fmt.Fprintf(&b, "Exclude these organizations (already contacted): %s\n\n", excluded)
	}
	b.WriteString(`Return a JSON object:
{
  "targets": [
    {
      "firm": "organization name",
      "email": "application email address",
      "location": "city, region",
      "position": "advertised position",
      "open_date": "posting date if known, else empty",
      "subject": "application subject line the posting asks for, else empty",
      "website": "posting or organization URL"`)
	if strings.TrimSpace(req.Definitions) != "" {
		b.WriteString(`,
      "custom_1": "content for the first custom section, grounded in what you found about this organization"`)
	}
	b.WriteString(`
    }
  ],
  "skipped": [
    {"firm": "organization name", "reason": "why it was skipped"}
  ]
}`)
	if strings.TrimSpace(req.Definitions) != "" {
		b.WriteString("\n\nFor each target, include one custom_K field per custom section listed above (custom_1, custom_2, ...), in the listed order. Leave a custom_K value empty when your search found nothing usable for it.")
	}
	return b.String()
}

// searchEnvelope mirrors the expected response shape.
type searchEnvelope struct {
	Targets []models.Target      `json:"targets"`
	Skipped []models.SkippedFirm `json:"skipped"`
}

// parseSearchResponse tries, in order: an object carrying a "targets" key,
// any JSON object (treated as a single target when it names a firm), and a
// bare array of targets. When everything fails the result carries an error
// description with a snippet of the raw text.
func parseSearchResponse(raw string) *Result {
	var env searchEnvelope
	if err := llm.UnmarshalObject(raw, &env); err == nil && env.Targets != nil {
		return &Result{Targets: env.Targets, Skipped: env.Skipped}
	}

	var single models.Target
	if err := llm.UnmarshalObject(raw, &single); err == nil && strings.TrimSpace(single.Firm) != "" {
		return &Result{Targets: []models.Target{single}}
	}

	var arr []models.Target
	if err := llm.UnmarshalArray(raw, &arr); err == nil && len(arr) > 0 {
		return &Result{Targets: arr}
	}

	return &Result{
		Err: fmt.Sprintf("could not parse search response: %s", llm.Snippet(raw, snippetLen)),
	}
}

// filterExcluded drops targets whose firm matches an exclusion entry,
// case-insensitively. The model is told to exclude them, but the filter is
// the invariant.
func filterExcluded(targets []models.Target, excluded []string) []models.Target {
	if len(excluded) == 0 {
		return targets
	}
	seen := make(map[string]struct{}, len(excluded))
	for _, f := range excluded {
		seen[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	kept := targets[:0]
	for _, t := range targets {
		if _, dup := seen[strings.ToLower(strings.TrimSpace(t.Firm))]; dup {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// ResolveSubject asks the model for the exact subject line a specific firm's
// posting requires, using a short search-enabled call. An empty string means
// no explicit requirement was found.
func (s *Searcher) ResolveSubject(ctx context.Context, target models.Target, position string) (string, models.TokenUsage, error) {
	if position == "" {
		position = target.Position
	}
	prompt := fmt.Sprintf(
		"Search for the current %s job posting at %s (%s). If the posting specifies an exact email subject line for applications, respond with that subject line and nothing else. If it does not, respond with the single word NONE.",
		position, target.Firm, target.Location)

	res, err := s.gen.Generate(ctx, ai.GenerateRequest{
		System:          "You verify application submission requirements in job postings. Respond with the required subject line only, or NONE.",
		Prompt:          prompt,
		MaxOutputTokens: ai.MaxOutputTokensSubject,
		SearchEnabled:   true,
		MaxSearchOps:    3,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}

	subject := strings.TrimSpace(res.Text)
	subject = strings.Trim(subject, `"'`)
	if subject == "" || strings.EqualFold(subject, "NONE") || len(subject) > 200 {
		return "", res.Usage, nil
	}
	return subject, res.Usage, nil
}
