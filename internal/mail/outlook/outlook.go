// Package outlook stages drafts through the Microsoft Graph API.
package outlook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/mail"
)

const (
	graphBase = "https://graph.microsoft.com/v1.0"
	tokenURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	// Attachments above this size must go through an upload session.
	inlineAttachmentLimit = 3 * 1024 * 1024
	uploadChunkSize       = 4 * 1024 * 1024
)

// Provider implements mail.Provider for Outlook / Microsoft 365.
type Provider struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func New(clientID, clientSecret string) *Provider {
	return &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Name() string { return "outlook" }

// CreateDraft creates a Graph draft message and attaches files, using an
// upload session for attachments too large to inline.
func (p *Provider) CreateDraft(ctx context.Context, tokens mail.OAuthTokens, draft mail.Draft) (mail.OAuthTokens, error) {
	if tokens.Expired() {
		refreshed, err := p.refresh(ctx, tokens)
		if err != nil {
			return tokens, fmt.Errorf("refreshing outlook token: %w", err)
		}
		tokens = refreshed
	}

	body := map[string]any{"contentType": "Text", "content": draft.BodyText}
	if draft.BodyHTML != "" {
		body = map[string]any{"contentType": "HTML", "content": draft.BodyHTML}
	}
	message := map[string]any{
		"subject": draft.Subject,
		"body":    body,
		"toRecipients": []map[string]any{
			{"emailAddress": map[string]string{"address": draft.To}},
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.doJSON(ctx, tokens, http.MethodPost, graphBase+"/me/messages", message, &created); err != nil {
		return tokens, fmt.Errorf("creating outlook draft: %w", err)
	}

	for _, att := range draft.Attachments {
		if err := p.attach(ctx, tokens, created.ID, att); err != nil {
			return tokens, fmt.Errorf("attaching %s: %w", att.Filename, err)
		}
	}

	log.Debug().Str("to", draft.To).Int("attachments", len(draft.Attachments)).Msg("outlook draft staged")
	return tokens, nil
}

func (p *Provider) attach(ctx context.Context, tokens mail.OAuthTokens, messageID string, att mail.Attachment) error {
	data, err := os.ReadFile(att.Path)
	if err != nil {
		return err
	}
	if len(data) <= inlineAttachmentLimit {
		payload := map[string]any{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         att.Filename,
			"contentBytes": base64.StdEncoding.EncodeToString(data),
		}
		url := fmt.Sprintf("%s/me/messages/%s/attachments", graphBase, messageID)
		return p.doJSON(ctx, tokens, http.MethodPost, url, payload, nil)
	}
	return p.uploadLarge(ctx, tokens, messageID, att.Filename, data)
}

// uploadLarge streams an attachment through a Graph upload session in fixed
// size chunks.
func (p *Provider) uploadLarge(ctx context.Context, tokens mail.OAuthTokens, messageID, filename string, data []byte) error {
	sessionReq := map[string]any{
		"AttachmentItem": map[string]any{
			"attachmentType": "file",
			"name":           filename,
			"size":           len(data),
		},
	}
	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	url := fmt.Sprintf("%s/me/messages/%s/attachments/createUploadSession", graphBase, messageID)
	if err := p.doJSON(ctx, tokens, http.MethodPost, url, sessionReq, &session); err != nil {
		return fmt.Errorf("creating upload session: %w", err)
	}

	for offset := 0; offset < len(data); offset += uploadChunkSize {
		end := offset + uploadChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(chunk)))
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, len(data)))

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("uploading chunk at %d: %w", offset, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("chunk upload at %d failed: %d", offset, resp.StatusCode)
		}
	}
	return nil
}

func (p *Provider) doJSON(ctx context.Context, tokens mail.OAuthTokens, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (p *Provider) refresh(ctx context.Context, tokens mail.OAuthTokens) (mail.OAuthTokens, error) {
	if tokens.RefreshToken == "" {
		return tokens, fmt.Errorf("no refresh token available")
	}
	form := url.Values{
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"refresh_token": {tokens.RefreshToken},
		"grant_type":    {"refresh_token"},
		"scope":         {"offline_access Mail.ReadWrite"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokens, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tokens, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return tokens, fmt.Errorf("token refresh failed: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return tokens, fmt.Errorf("decoding token response: %w", err)
	}

	tokens.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		tokens.RefreshToken = payload.RefreshToken
	}
	tokens.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return tokens, nil
}
