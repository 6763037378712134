package fill

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
)

// TextToHTML converts plain letter text to HTML paragraphs. Blank lines
// separate paragraphs, single newlines become <br>, and the markdown-style
// **bold** and *italic* markers the model occasionally emits are honored.
func TextToHTML(text string) string {
	paragraphs := regexp.MustCompile(`\n\s*\n`).Split(strings.TrimSpace(text), -1)
	var out []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		escaped := html.EscapeString(p)
		escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
		escaped = italicPattern.ReplaceAllString(escaped, "<em>$1</em>")
		escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
		out = append(out, "<p>"+escaped+"</p>")
	}
	return strings.Join(out, "\n")
}

// IsHTMLDocument reports whether text is already a complete HTML document,
// which synthesized templates typically are. Such text must pass to the
// renderer unchanged; promoting it with TextToHTML would escape its markup.
func IsHTMLDocument(text string) bool {
	return strings.Contains(strings.ToLower(text), "<html")
}

// WrapInHTML produces a complete printable document around letter body HTML.
func WrapInHTML(bodyHTML, title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
@page { size: A4; margin: 2.5cm; }
body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 11pt;
  line-height: 1.5;
  color: #1a1a1a;
}
p { margin: 0 0 0.8em 0; }
</style>
</head>
<body>
%s
</body>
</html>
`, html.EscapeString(title), bodyHTML)
}
