// Package mail stages application drafts in the user's mailbox through
// provider-specific APIs. Drafts are never sent; the user reviews and sends
// from their own client.
package mail

import (
	"context"
	"time"
)

// Attachment is one file to attach to a draft.
type Attachment struct {
	Filename string
	Path     string
}

// Draft is a fully composed message ready to stage.
type Draft struct {
	To          string
	Subject     string
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
}

// OAuthTokens carries a provider's current token pair. Providers refresh
// access tokens transparently and report the new pair back so callers can
// persist it.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token needs refreshing, with a safety
// margin so a token never expires mid-request.
func (t OAuthTokens) Expired() bool {
	if t.Expiry.IsZero() {
		return t.AccessToken == ""
	}
	return time.Now().After(t.Expiry.Add(-60 * time.Second))
}

// Provider stages drafts in one mail service.
type Provider interface {
	// Name identifies the provider ("gmail", "outlook").
	Name() string
	// CreateDraft stages the draft and returns the token pair in effect
	// afterwards, which may have been refreshed.
	CreateDraft(ctx context.Context, tokens OAuthTokens, draft Draft) (OAuthTokens, error)
}
