// Package gmail stages drafts through the Gmail REST API.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/mail"
)

const (
	draftsURL = "https://gmail.googleapis.com/gmail/v1/users/me/drafts"
	tokenURL  = "https://oauth2.googleapis.com/token"
)

// Provider implements mail.Provider for Gmail.
type Provider struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func New(clientID, clientSecret string) *Provider {
	return &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Provider) Name() string { return "gmail" }

// CreateDraft refreshes the access token when needed, builds the raw MIME
// message, and stages it as a draft.
func (p *Provider) CreateDraft(ctx context.Context, tokens mail.OAuthTokens, draft mail.Draft) (mail.OAuthTokens, error) {
	if tokens.Expired() {
		refreshed, err := p.refresh(ctx, tokens)
		if err != nil {
			return tokens, fmt.Errorf("refreshing gmail token: %w", err)
		}
		tokens = refreshed
	}

	raw, err := mail.BuildMIME(draft)
	if err != nil {
		return tokens, err
	}

	payload, err := json.Marshal(map[string]any{
		"message": map[string]string{
			"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
		},
	})
	if err != nil {
		return tokens, fmt.Errorf("encoding draft payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, draftsURL, bytes.NewReader(payload))
	if err != nil {
		return tokens, err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tokens, fmt.Errorf("gmail draft request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return tokens, fmt.Errorf("gmail draft create failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Debug().Str("to", draft.To).Msg("gmail draft staged")
	return tokens, nil
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
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return tokens, fmt.Errorf("token refresh failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return tokens, fmt.Errorf("decoding token response: %w", err)
	}

	tokens.AccessToken = payload.AccessToken
	tokens.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return tokens, nil
}
