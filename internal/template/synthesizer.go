package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/llm"
	"github.com/applydraft/pkg/models"
)

// SynthesisResult carries the synthesized template plus realized usage.
// When ManualEditRequired is set, the response could not be parsed as JSON
// and Body holds the raw model text; synthesis degrades, it never blocks.
type SynthesisResult struct {
	Body               string
	Definitions        string
	ManualEditRequired bool
	Usage              models.TokenUsage
}

// Synthesizer turns example documents of one type into a reusable template
// with a small set of custom slots. Pure transform over the generation
// capability; persistence is the caller's responsibility.
type Synthesizer struct {
	gen ai.Generator
}

// NewSynthesizer wraps the given generation capability.
func NewSynthesizer(gen ai.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

const synthesisSystemTemplate = `You are an expert at analyzing %s documents and creating reusable HTML templates for PDF generation.
Compare the provided examples to identify:
- FIXED parts (identical or nearly identical across all examples)
- VARIABLE parts (different in each example, customized per firm/position)

Replace each variable section with a {{CUSTOM_X}} placeholder (numbered sequentially: CUSTOM_1, CUSTOM_2, CUSTOM_3...).
Also support {{NAME}}, {{PHONE}}, {{EMAIL}}, {{FIRM_NAME}}, {{POSITION}} as standard placeholders.

IMPORTANT: The "template" must be a COMPLETE HTML document for PDF generation, with an @page rule, a styled body, and each letter paragraph wrapped in <p> tags.

RULES for template:
- Keep the number of CUSTOM_X placeholders SMALL (2-5 max). Group related variable content into one placeholder rather than splitting every sentence.
- Use &amp; for & and other HTML entities where needed
- The template must be a complete, valid HTML document

You must return valid JSON with exactly two keys:
- "template": the full HTML template (complete HTML document)
- "definitions": a structured description of each CUSTOM_X placeholder using this EXACT format:

[CUSTOM_1]: <brief description of what this section is about>
PROMPT: <detailed instruction for AI to generate this content for a specific firm>
EXAMPLES: <one real example extracted from the provided samples>
CONSTRAINTS: <word count and sentence limits, e.g. "30 words. two sentences">
KEY INFORMATIONS: <key personal/professional keywords relevant to this placeholder, drawn from the applicant's background>

(continue for all CUSTOM_X placeholders, each block separated by a blank line)`

// Synthesize analyzes example documents and produces a template plus slot
// definitions. On a malformed response it returns the raw text as the body
// with empty definitions rather than failing.
func (s *Synthesizer) Synthesize(ctx context.Context, examples []string, label string) (*SynthesisResult, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("template: at least one example document is required")
	}
	if label == "" {
		label = "Cover Letter"
	}

	var examplesText strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&examplesText, "\n--- Example %d ---\n%s\n", i+1, ex)
	}

	prompt := fmt.Sprintf(`Analyze these %d %s examples and create a reusable HTML template for PDF generation.
Keep CUSTOM_X placeholders to 2-5 (group related variable content together).
%s

Return JSON with "template" (complete HTML document) and "definitions" keys.`,
		len(examples), label, examplesText.String())

	result, err := s.gen.Generate(ctx, ai.GenerateRequest{
		System:          fmt.Sprintf(synthesisSystemTemplate, label),
		Prompt:          prompt,
		MaxOutputTokens: ai.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("template: synthesis call failed: %w", err)
	}

	return parseSynthesisResponse(result), nil
}

// SynthesizeEmail produces an email body template from a single example.
func (s *Synthesizer) SynthesizeEmail(ctx context.Context, example string) (*SynthesisResult, error) {
	if strings.TrimSpace(example) == "" {
		return nil, fmt.Errorf("template: an example email is required")
	}

	system := `You are an expert at analyzing emails and creating reusable templates.
Identify the variable parts and replace them with {{CUSTOM_X}} placeholders.
Standard placeholders: {{NAME}}, {{PHONE}}, {{EMAIL}}, {{FIRM_NAME}}, {{POSITION}}.

Return valid JSON with:
- "template": the email template with placeholders
- "definitions": description of each CUSTOM_X placeholder`

	prompt := fmt.Sprintf("Analyze this email example and create a reusable template:\n\n%s\n\nReturn JSON.", example)

	result, err := s.gen.Generate(ctx, ai.GenerateRequest{
		System:          system,
		Prompt:          prompt,
		MaxOutputTokens: ai.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("template: email synthesis call failed: %w", err)
	}

	return parseSynthesisResponse(result), nil
}

// GenerateInstructions produces the project instructions document that seeds
// discovery prompts, from free-text job requirements.
func (s *Synthesizer) GenerateInstructions(ctx context.Context, jobRequirements string, identity models.Identity) (string, models.TokenUsage, error) {
	system := `You are an expert job search assistant. Generate a structured markdown instruction file
for an AI agent that will search for jobs and write tailored application materials.
Output ONLY the markdown content, no code fences.`

	prompt := fmt.Sprintf(`Based on the following job requirements, generate an instructions file that includes:
1. Target locations (cities, priority order)
2. Target positions (job titles to search for)
3. Industry/specialization preferences
4. Search platforms to use
5. Application filtering rules (email vs portal)
6. Custom writing style guidelines for cover letters and emails

Job Requirements (natural language):
%s

User Profile:
- Name: %s
- Phone: %s`, jobRequirements, valueOr(identity.Name, "Not provided"), valueOr(identity.Phone, "Not provided"))

	result, err := s.gen.Generate(ctx, ai.GenerateRequest{
		System:          system,
		Prompt:          prompt,
		MaxOutputTokens: ai.MaxOutputTokens,
	})
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("template: instructions call failed: %w", err)
	}
	return result.Text, result.Usage, nil
}

func parseSynthesisResponse(result *ai.GenerateResult) *SynthesisResult {
	var parsed struct {
		Template    string `json:"template"`
		Definitions string `json:"definitions"`
	}
	if err := llm.UnmarshalObject(result.Text, &parsed); err != nil || parsed.Template == "" {
		log.Warn().Err(err).Msg("Template synthesis response was not parseable JSON, falling back to raw text")
		return &SynthesisResult{
			Body:               result.Text,
			Definitions:        "",
			ManualEditRequired: true,
			Usage:              result.Usage,
		}
	}

	return &SynthesisResult{
		Body:        parsed.Template,
		Definitions: parsed.Definitions,
		Usage:       result.Usage,
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
