package mail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// BuildMIME assembles an RFC 2822 multipart message for a draft. Gmail's
// draft endpoint takes the raw message; the structure is
// multipart/mixed wrapping a multipart/alternative text+html part plus one
// part per attachment.
func BuildMIME(draft Draft) (string, error) {
	mixedBoundary := "applydraft-mixed-0000000000000001"
	altBoundary := "applydraft-alt-0000000000000001"

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", draft.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(draft.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\nContent-Transfer-Encoding: base64\r\n\r\n")
	writeWrapped(&b, base64.StdEncoding.EncodeToString([]byte(draft.BodyText)))

	if draft.BodyHTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", altBoundary)
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\nContent-Transfer-Encoding: base64\r\n\r\n")
		writeWrapped(&b, base64.StdEncoding.EncodeToString([]byte(draft.BodyHTML)))
	}
	fmt.Fprintf(&b, "--%s--\r\n", altBoundary)

	for _, att := range draft.Attachments {
		data, err := os.ReadFile(att.Path)
		if err != nil {
			return "", fmt.Errorf("reading attachment %s: %w", att.Filename, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(att.Filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
		fmt.Fprintf(&b, "Content-Type: %s; name=%q\r\n", contentType, att.Filename)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", att.Filename)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeWrapped(&b, base64.StdEncoding.EncodeToString(data))
	}
	fmt.Fprintf(&b, "--%s--\r\n", mixedBoundary)
	return b.String(), nil
}

// writeWrapped emits base64 content folded at 76 columns.
func writeWrapped(b *strings.Builder, s string) {
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	b.WriteString("\r\n")
}

func encodeHeader(s string) string {
	return mime.QEncoding.Encode("utf-8", s)
}
