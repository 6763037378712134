// Package template holds the placeholder template model: a document body
// with {{SLOT}} markers plus a definitions block describing how each custom
// slot is generated per target.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Reserved slot names always resolvable from target + project identity.
// The synthesizer never defines these.
var ReservedSlots = []string{"NAME", "PHONE", "EMAIL", "FIRM_NAME", "POSITION"}

// SlotDefinition describes one custom variable slot of a template.
type SlotDefinition struct {
	Name        string `json:"name"`        // e.g. "CUSTOM_1"
	Description string `json:"description"` // what this section is about
	Prompt      string `json:"prompt"`      // generation instruction per firm
	Example     string `json:"example"`     // one real example from the samples
	Constraints string `json:"constraints"` // word/sentence limits
	KeyInfo     string `json:"key_info"`    // background keywords to bias content
}

// Template is one renderable document skeleton plus its slot definitions.
type Template struct {
	Body        string           `json:"body"`
	Definitions []SlotDefinition `json:"definitions"`
}

var slotPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// Slots returns every distinct slot name referenced in body, in order of
// first appearance.
func Slots(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range slotPattern.FindAllStringSubmatch(body, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// CustomSlots returns the non-reserved slot names referenced in body.
func CustomSlots(body string) []string {
	var names []string
	for _, name := range Slots(body) {
		if !isReserved(name) {
			names = append(names, name)
		}
	}
	return names
}

func isReserved(name string) bool {
	for _, r := range ReservedSlots {
		if name == r {
			return true
		}
	}
	return false
}

// Validate checks the cross-structure invariant: every custom slot in the
// body has exactly one definition, and no definition references an undefined
// slot. Violations are reported, not fatal; the fill engine tolerates them
// by blanking unresolved slots.
func (t *Template) Validate() error {
	defined := make(map[string]int)
	for _, def := range t.Definitions {
		defined[def.Name]++
	}

	var problems []string
	for name, n := range defined {
		if n > 1 {
			problems = append(problems, fmt.Sprintf("slot %s defined %d times", name, n))
		}
	}

	bodySlots := make(map[string]bool)
	for _, name := range CustomSlots(t.Body) {
		bodySlots[name] = true
		if defined[name] == 0 {
			problems = append(problems, fmt.Sprintf("slot %s referenced in body but not defined", name))
		}
	}
	for name := range defined {
		if !bodySlots[name] {
			problems = append(problems, fmt.Sprintf("slot %s defined but never referenced in body", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("template validation: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Definition-block field labels, in the on-disk text format.
const (
	fieldPrompt      = "PROMPT:"
	fieldExamples    = "EXAMPLES:"
	fieldConstraints = "CONSTRAINTS:"
	fieldKeyInfo     = "KEY INFORMATIONS:"
)

var headerPattern = regexp.MustCompile(`^\[([A-Z0-9_]+)\]:\s*(.*)$`)

// ParseDefinitions parses the definitions text format:
//
//	[CUSTOM_1]: brief description
//	PROMPT: detailed instruction
//	EXAMPLES: one extracted example
//	CONSTRAINTS: 30 words. two sentences
//	KEY INFORMATIONS: keyword, keyword
//
// Blocks are separated by blank lines; unlabeled lines continue the previous
// field. Malformed lines are skipped rather than failing the parse, since
// this text may be hand-edited.
func ParseDefinitions(text string) []SlotDefinition {
	var defs []SlotDefinition
	var current *SlotDefinition
	currentField := ""

	appendToField := func(def *SlotDefinition, field, value string) {
		target := map[string]*string{
			"description": &def.Description,
			"prompt":      &def.Prompt,
			"example":     &def.Example,
			"constraints": &def.Constraints,
			"keyinfo":     &def.KeyInfo,
		}[field]
		if target == nil {
			return
		}
		if *target == "" {
			*target = value
		} else {
			*target += "\n" + value
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := headerPattern.FindStringSubmatch(trimmed); m != nil {
			if current != nil {
				defs = append(defs, *current)
			}
			current = &SlotDefinition{Name: m[1], Description: m[2]}
			currentField = "description"
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, fieldPrompt):
			currentField = "prompt"
			appendToField(current, currentField, strings.TrimSpace(trimmed[len(fieldPrompt):]))
		case strings.HasPrefix(trimmed, fieldExamples):
			currentField = "example"
			appendToField(current, currentField, strings.TrimSpace(trimmed[len(fieldExamples):]))
		case strings.HasPrefix(trimmed, fieldConstraints):
			currentField = "constraints"
			appendToField(current, currentField, strings.TrimSpace(trimmed[len(fieldConstraints):]))
		case strings.HasPrefix(trimmed, fieldKeyInfo):
			currentField = "keyinfo"
			appendToField(current, currentField, strings.TrimSpace(trimmed[len(fieldKeyInfo):]))
		default:
			appendToField(current, currentField, trimmed)
		}
	}
	if current != nil {
		defs = append(defs, *current)
	}
	return defs
}

// FormatDefinitions renders definitions back to the on-disk text format.
func FormatDefinitions(defs []SlotDefinition) string {
	var blocks []string
	for _, def := range defs {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]: %s\n", def.Name, def.Description)
		fmt.Fprintf(&b, "%s %s\n", fieldPrompt, def.Prompt)
		fmt.Fprintf(&b, "%s %s\n", fieldExamples, def.Example)
		fmt.Fprintf(&b, "%s %s\n", fieldConstraints, def.Constraints)
		fmt.Fprintf(&b, "%s %s", fieldKeyInfo, def.KeyInfo)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
