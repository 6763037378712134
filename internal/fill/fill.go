// Package fill performs deterministic slot substitution on letter templates
// and converts filled text to printable HTML. No model calls happen here;
// the same inputs always produce the same letter.
package fill

import (
	"fmt"
	"strings"

	"github.com/applydraft/internal/template"
	"github.com/applydraft/pkg/models"
)

// Inputs carries everything a fill needs for one target.
type Inputs struct {
	Identity models.Identity
	Target   models.Target
	// Custom maps CUSTOM slot names (upper case, without braces) to their
	// generated content.
	Custom map[string]string
}

// Fill substitutes every slot in body. Reserved slots come from the identity
// and target, custom slots from the generated content map. Slots with no
// value are removed so no placeholder ever reaches a rendered letter.
func Fill(body string, in Inputs) string {
	values := map[string]string{
		"NAME":      in.Identity.Name,
		"PHONE":     in.Identity.Phone,
		"EMAIL":     in.Identity.Email,
		"FIRM_NAME": in.Target.Firm,
		"POSITION":  in.Target.Position,
	}
	for k, v := range in.Custom {
		values[strings.ToUpper(k)] = v
	}

	out := body
	for name, value := range values {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	// sweep anything unresolved
	for _, slot := range template.Slots(out) {
		out = strings.ReplaceAll(out, "{{"+slot+"}}", "")
	}
	return out
}

// Subject fills a subject template with the same substitution rules.
func Subject(subjectTemplate string, in Inputs) string {
	return strings.TrimSpace(Fill(subjectTemplate, in))
}

// DefaultSubject is the last-resort subject line.
func DefaultSubject(identity models.Identity, target models.Target) string {
	return fmt.Sprintf("Application for %s - %s", target.Position, identity.Name)
}

// Filename builds an output filename from a document type's format string,
// applying the same slot substitution and then sanitizing for the
// filesystem.
func Filename(format string, in Inputs, ext string) string {
	if strings.TrimSpace(format) == "" {
		format = "{{FIRM_NAME}} - {{NAME}}"
	}
	name := strings.TrimSpace(Fill(format, in))
	if name == "" {
		name = "document"
	}
	return SafeFilename(name) + ext
}

// SafeFilename replaces characters that are unsafe in filenames on any
// supported platform.
func SafeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '-'
		}
		return r
	}, name)
}
