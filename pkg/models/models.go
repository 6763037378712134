package models

import (
	"encoding/json"
	"strings"
	"time"
)

// User represents an authenticated account. Credits and mail tokens hang off
// the user, projects hang off the user's directory tree.
type User struct {
	ID          string     `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// UserSettings is the per-user settings record fetched from the store and
// merged with process-wide config per request. Never cached globally.
type UserSettings struct {
	UserID        string `json:"user_id" db:"user_id"`
	MailProvider  string `json:"mail_provider" db:"mail_provider"` // "gmail", "outlook", "none"
	GmailAddress  string `json:"gmail_address" db:"gmail_address"`
	GmailTokens   string `json:"gmail_tokens,omitempty" db:"gmail_tokens"` // JSON-encoded OAuthTokens
	OutlookEmail  string `json:"outlook_email" db:"outlook_email"`
	OutlookTokens string `json:"outlook_tokens,omitempty" db:"outlook_tokens"`
}

// Identity carries the applicant fields every template can reference through
// the reserved NAME / PHONE / EMAIL slots.
type Identity struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// DocumentType identifies one kind of output document a project produces,
// e.g. a cover letter attachment or the inline email body.
type DocumentType struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	IsAttachment   bool   `json:"is_attachment"`
	FilenameFormat string `json:"filename_format,omitempty"`
}

// EmailBodyTypeID is the document type delivered inline rather than attached.
const EmailBodyTypeID = "email_body"

// ProjectConfig is the persisted per-project configuration record.
type ProjectConfig struct {
	ProjectName     string         `json:"project_name"`
	JobRequirements string         `json:"job_requirements"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	FilenameFormat  string         `json:"filename_format"`
	SubjectTemplate string         `json:"subject_template,omitempty"`
	DocumentTypes   []DocumentType `json:"document_types"`
}

// Target is one prospective application entry. Once consumed by a generation
// batch it is immutable history; new information about the same firm becomes
// a new Target.
type Target struct {
	Firm     string            `json:"firm"`
	Email    string            `json:"email"`
	Location string            `json:"location"`
	Position string            `json:"position"`
	OpenDate string            `json:"openDate,omitempty"`
	Subject  string            `json:"subject,omitempty"`
	Source   string            `json:"source,omitempty"` // "search" or "manual"
	Website  string            `json:"website,omitempty"`
	Manual   bool              `json:"_manual,omitempty"`
	Custom   map[string]string `json:"custom,omitempty"` // CUSTOM_1, CUSTOM_2, ...
}

// UnmarshalJSON accepts both shapes the pipeline produces: the stored form
// with a nested "custom" map, and search responses that put custom_K fields
// at the top level of the target object. Top-level custom keys are folded
// into Custom, upper-cased.
func (t *Target) UnmarshalJSON(data []byte) error {
	type plain Target
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		upper := strings.ToUpper(k)
		if !strings.HasPrefix(upper, "CUSTOM_") {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil || strings.TrimSpace(s) == "" {
			continue
		}
		if p.Custom == nil {
			p.Custom = make(map[string]string)
		}
		p.Custom[upper] = s
	}

	*t = Target(p)
	return nil
}

// IsManual reports whether the target was entered by hand rather than found
// by web search. Manual targets are billed at the search rate at generate time.
func (t *Target) IsManual() bool {
	return t.Manual || strings.EqualFold(t.Source, "manual")
}

// SkippedFirm records a firm found during discovery that cannot be applied to
// directly (e.g. portal-only application with no published email).
type SkippedFirm struct {
	Firm   string `json:"firm"`
	Reason string `json:"reason"`
	URL    string `json:"url,omitempty"`
}

// TrackerRow is one audit-log line per delivery attempt. Append-only.
type TrackerRow struct {
	Firm        string `json:"Firm"`
	Location    string `json:"Location"`
	Position    string `json:"Position"`
	OpenDate    string `json:"OpenDate"`
	AppliedDate string `json:"AppliedDate"`
	Email       string `json:"Email"`
	Source      string `json:"Source"`
	Status      string `json:"Status"`
}

// Tracker row statuses.
const (
	TrackerStatusGenerated = "Generated"
)

// TokenUsage aggregates token consumption across one or more AI invocations.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	APICalls     int `json:"api_calls"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.APICalls += other.APICalls
}

// Total returns combined input+output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// UsageRecord is one append-only usage-log entry per billable operation.
type UsageRecord struct {
	Operation string     `json:"operation"` // "search", "generate", "template"
	Usage     TokenUsage `json:"usage"`
	Timestamp time.Time  `json:"timestamp"`
}

// CreditUsage is the billing breakdown attached to a batch result.
type CreditUsage struct {
	Base        float64 `json:"base"`
	Overage     float64 `json:"overage"`
	Total       float64 `json:"total"`
	LimitTokens float64 `json:"limit_tokens"`
	Balance     float64 `json:"balance,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// CreditTransaction is one immutable ledger entry.
type CreditTransaction struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      float64   `json:"amount" db:"amount"`
	Type        string    `json:"type" db:"type"` // "purchase" or "usage"
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TargetResult is the per-target outcome entry in a batch result.
type TargetResult struct {
	Firm       string   `json:"firm"`
	PDFs       []string `json:"pdfs"` // labels of rendered attachments
	PDF        bool     `json:"pdf"`
	Draft      bool     `json:"draft"`
	DraftError string   `json:"draft_error,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// BatchResult is the synchronous output of a generation batch.
type BatchResult struct {
	Generated   []TargetResult `json:"generated"`
	TokenUsage  TokenUsage     `json:"token_usage"`
	CreditUsage CreditUsage    `json:"credit_usage"`
	SaveError   string         `json:"save_error,omitempty"`
}
