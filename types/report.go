package types

import "time"

// Report is a career-assessment report synthesized from LLM output.
type Report struct {
	// ID is the unique identifier of the report.
	ID string `json:"id" db:"id"`

	// UserID references the student the report was generated for.
	UserID int `json:"userId" db:"user_id"`

	// Model is the LLM model that produced the raw text.
	Model string `json:"model" db:"model"`

	// RawText is the unprocessed LLM completion the sections were
	// parsed from. Kept for re-parsing and audit.
	RawText string `json:"-" db:"raw_text"`

	// Sections holds the structured report content in display order.
	Sections []ReportSection `json:"sections" db:"-"`

	// TokensUsed is the total token usage reported by the LLM API.
	TokensUsed int `json:"tokensUsed" db:"tokens_used"`

	// PDFKey is the object storage key of the exported PDF, empty when
	// the upload failed or storage is not configured.
	PDFKey string `json:"-" db:"pdf_key"`

	// CreatedAt is the timestamp when the report was generated.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ReportSection is one titled block of a parsed report.
type ReportSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
