package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/applydraft/internal/config"
	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/mail/gmail"
	"github.com/applydraft/internal/mail/outlook"
	"github.com/applydraft/pkg/models"
)

// SettingsStore persists per-user settings including mail provider tokens.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// InitSchema creates the settings table when missing.
func (s *SettingsStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_settings (
		user_id TEXT PRIMARY KEY,
		mail_provider TEXT NOT NULL DEFAULT 'none',
		gmail_address TEXT NOT NULL DEFAULT '',
		gmail_tokens TEXT NOT NULL DEFAULT '',
		outlook_email TEXT NOT NULL DEFAULT '',
		outlook_tokens TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing settings schema: %w", err)
	}
	return nil
}

// Get loads a user's settings, returning defaults for unknown users.
func (s *SettingsStore) Get(ctx context.Context, userID string) (models.UserSettings, error) {
	settings := models.UserSettings{UserID: userID, MailProvider: "none"}
	err := s.db.QueryRowContext(ctx,
		`SELECT mail_provider, gmail_address, gmail_tokens, outlook_email, outlook_tokens
		 FROM user_settings WHERE user_id = $1`, userID).
		Scan(&settings.MailProvider, &settings.GmailAddress, &settings.GmailTokens,
			&settings.OutlookEmail, &settings.OutlookTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("loading settings for %s: %w", userID, err)
	}
	return settings, nil
}

// Save upserts a user's settings.
func (s *SettingsStore) Save(ctx context.Context, settings models.UserSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, mail_provider, gmail_address, gmail_tokens, outlook_email, outlook_tokens, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			mail_provider = $2, gmail_address = $3, gmail_tokens = $4,
			outlook_email = $5, outlook_tokens = $6, updated_at = NOW()`,
		settings.UserID, settings.MailProvider, settings.GmailAddress,
		settings.GmailTokens, settings.OutlookEmail, settings.OutlookTokens)
	if err != nil {
		return fmt.Errorf("saving settings for %s: %w", settings.UserID, err)
	}
	return nil
}

// ProviderFor builds the user's configured mail provider plus their current
// tokens. A "none" provider returns nil, which degrades draft staging.
func (s *SettingsStore) ProviderFor(ctx context.Context, userID string, cfg *config.Config) (mail.Provider, mail.OAuthTokens, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, mail.OAuthTokens{}, err
	}

	var tokens mail.OAuthTokens
	switch settings.MailProvider {
	case "gmail":
		if err := decodeTokens(settings.GmailTokens, &tokens); err != nil {
			return nil, tokens, err
		}
		return gmail.New(cfg.Mail.Google.ClientID, cfg.Mail.Google.ClientSecret), tokens, nil
	case "outlook":
		if err := decodeTokens(settings.OutlookTokens, &tokens); err != nil {
			return nil, tokens, err
		}
		return outlook.New(cfg.Mail.Microsoft.ClientID, cfg.Mail.Microsoft.ClientSecret), tokens, nil
	}
	return nil, tokens, nil
}

// Tokens implements the job queue's token source.
func (s *SettingsStore) Tokens(ctx context.Context, userID string) (mail.OAuthTokens, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return mail.OAuthTokens{}, err
	}
	var tokens mail.OAuthTokens
	switch settings.MailProvider {
	case "gmail":
		err = decodeTokens(settings.GmailTokens, &tokens)
	case "outlook":
		err = decodeTokens(settings.OutlookTokens, &tokens)
	}
	return tokens, err
}

// SaveTokens persists a refreshed token pair for the active provider.
func (s *SettingsStore) SaveTokens(ctx context.Context, userID string, tokens mail.OAuthTokens) error {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	switch settings.MailProvider {
	case "gmail":
		settings.GmailTokens = string(encoded)
	case "outlook":
		settings.OutlookTokens = string(encoded)
	default:
		return nil
	}
	return s.Save(ctx, settings)
}

func decodeTokens(raw string, tokens *mail.OAuthTokens) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), tokens); err != nil {
		return fmt.Errorf("decoding stored mail tokens: %w", err)
	}
	return nil
}

func (s *Server) getSettings(c echo.Context) error {
	user := CurrentUser(c)
	settings, err := s.settings.Get(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// never hand tokens back to the client
	settings.GmailTokens = ""
	settings.OutlookTokens = ""
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) putSettings(c echo.Context) error {
	user := CurrentUser(c)
	var req models.UserSettings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings payload")
	}
	switch req.MailProvider {
	case "gmail", "outlook", "none":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mail_provider must be gmail, outlook, or none")
	}

	current, err := s.settings.Get(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// token blobs are only replaced when the client sends new ones
	if req.GmailTokens == "" {
		req.GmailTokens = current.GmailTokens
	}
	if req.OutlookTokens == "" {
		req.OutlookTokens = current.OutlookTokens
	}
	req.UserID = user.ID

	if err := s.settings.Save(c.Request().Context(), req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}
