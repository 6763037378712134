package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/fill"
	"github.com/applydraft/internal/llm"
	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

// generateContent produces the custom slot values for one target in a single
// model call covering all document types. Values already present on the
// target override the generated ones, so manually curated targets skip
// nothing but pay nothing extra either.
func (o *Orchestrator) generateContent(ctx context.Context, tc targetContext) (map[string]string, models.TokenUsage, error) {
	defs := collectDefinitions(tc.docs)
	provided := normalizeCustom(tc.target.Custom)

	missing := make([]template.SlotDefinition, 0, len(defs))
	for _, def := range defs {
		if _, ok := provided[def.Name]; !ok {
			missing = append(missing, def)
		}
	}
	if len(missing) == 0 {
		return provided, models.TokenUsage{}, nil
	}

	res, err := o.Gen.Generate(ctx, ai.GenerateRequest{
		System:          contentSystemPrompt(tc.identity, tc.target),
		Prompt:          contentUserPrompt(missing, tc.target),
		MaxOutputTokens: ai.MaxOutputTokensGenerate,
	})
	if err != nil {
		return nil, models.TokenUsage{}, fmt.Errorf("generating content for %s: %w", tc.target.Firm, err)
	}

	var generated map[string]string
	if err := llm.UnmarshalObject(res.Text, &generated); err != nil {
		return nil, res.Usage, fmt.Errorf("parsing content for %s: %s", tc.target.Firm, llm.Snippet(res.Text, 300))
	}

	out := make(map[string]string, len(defs))
	for k, v := range normalizeCustom(generated) {
		out[k] = fill.EnforceLimit(strings.TrimSpace(v), fill.MaxTextUnits)
	}
	for k, v := range provided {
		out[k] = v
	}
	return out, res.Usage, nil
}

// collectDefinitions merges slot definitions across documents, first
// occurrence wins.
func collectDefinitions(docs []document) []template.SlotDefinition {
	var defs []template.SlotDefinition
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, def := range doc.tmpl.Definitions {
			if _, dup := seen[def.Name]; dup {
				continue
			}
			seen[def.Name] = struct{}{}
			defs = append(defs, def)
		}
	}
	return defs
}

func normalizeCustom(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

func contentSystemPrompt(identity models.Identity, target models.Target) string {
	var b strings.Builder
	b.WriteString("You write personalized sections of a job application letter. The surrounding letter already exists; you produce only the requested sections, matching its professional register.\n\n")
	fmt.Fprintf(&b, "Applicant: %s\n", identity.Name)
	fmt.Fprintf(&b, "Organization: %s", target.Firm)
	if target.Location != "" {
		fmt.Fprintf(&b, " (%s)", target.Location)
	}
	b.WriteString("\n")
	if target.Position != "" {
		fmt.Fprintf(&b, "Position: %s\n", target.Position)
	}
	if target.Website != "" {
		fmt.Fprintf(&b, "Posting: %s\n", target.Website)
	}
	b.WriteString("\nRespond with a single JSON object mapping each section name to its text. No prose outside the JSON.")
	return b.String()
}

func contentUserPrompt(defs []template.SlotDefinition, target models.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write these sections for the application to %s:\n\n", target.Firm)
	for _, def := range defs {
		fmt.Fprintf(&b, "[%s]", def.Name)
		if def.Description != "" {
			fmt.Fprintf(&b, ": %s", def.Description)
		}
		b.WriteString("\n")
		if def.Prompt != "" {
			fmt.Fprintf(&b, "Instructions: %s\n", def.Prompt)
		}
		if def.Constraints != "" {
			fmt.Fprintf(&b, "Constraints: %s\n", def.Constraints)
		}
		if def.KeyInfo != "" {
			fmt.Fprintf(&b, "Key information: %s\n", def.KeyInfo)
		}
		if def.Example != "" {
			fmt.Fprintf(&b, "Example of tone:\n%s\n", def.Example)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Return JSON: {%s}", exampleKeys(defs))
	return b.String()
}

func exampleKeys(defs []template.SlotDefinition) string {
	parts := make([]string, len(defs))
	for i, def := range defs {
		parts[i] = fmt.Sprintf("%q: \"...\"", def.Name)
	}
	return strings.Join(parts, ", ")
}
