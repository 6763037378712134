package mail

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIME(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "letter.pdf")
	require.NoError(t, os.WriteFile(attPath, []byte("%PDF-1.4 fake"), 0o644))

	msg, err := BuildMIME(Draft{
		To:       "jobs@example.org",
		Subject:  "Application for Violin II",
		BodyText: "Dear committee,\n\nPlease find my application attached.",
		BodyHTML: "<p>Dear committee,</p>",
		Attachments: []Attachment{
			{Filename: "letter.pdf", Path: attPath},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, msg, "To: jobs@example.org\r\n")
	assert.Contains(t, msg, "Subject: Application for Violin II\r\n")
	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "text/html")
	assert.Contains(t, msg, `filename="letter.pdf"`)
	assert.Contains(t, msg, "application/pdf")
}

func TestBuildMIMEMissingAttachment(t *testing.T) {
	_, err := BuildMIME(Draft{
		To:          "jobs@example.org",
		Subject:     "Application",
		BodyText:    "body",
		Attachments: []Attachment{{Filename: "gone.pdf", Path: "/nonexistent/gone.pdf"}},
	})
	assert.Error(t, err)
}

func TestOAuthTokensExpired(t *testing.T) {
	assert.True(t, OAuthTokens{}.Expired())
	assert.True(t, OAuthTokens{AccessToken: "x", Expiry: time.Now().Add(30 * time.Second)}.Expired())
	assert.False(t, OAuthTokens{AccessToken: "x", Expiry: time.Now().Add(5 * time.Minute)}.Expired())
	assert.False(t, OAuthTokens{AccessToken: "x"}.Expired())
}
