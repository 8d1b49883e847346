package models

import "time"

// PaperInfo is one work item: the bibliographic metadata for a single paper.
// Every field except PDFPath is optional; identity derivation falls back
// through DOI, then title plus authors.
type PaperInfo struct {
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Year    string   `json:"year,omitempty"`
	Journal string   `json:"journal,omitempty"`
	DOI     string   `json:"doi,omitempty"`
	PDFPath string   `json:"pdf_path,omitempty"`
}

// Summary is the structured record produced by the model for one paper.
// Normalization guarantees the core text fields are never absent (a
// placeholder is filled in) and KeyPoints is never nil.
type Summary struct {
	Title       string   `json:"title,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Year        string   `json:"year,omitempty"`
	Journal     string   `json:"journal,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Methodology string   `json:"methodology"`
	Findings    string   `json:"findings"`
	Conclusions string   `json:"conclusions"`
	Relevance   string   `json:"relevance"`
	Limitations string   `json:"limitations"`

	Details map[string]any `json:"type_specific_details,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ProcessingResult is the per-item outcome for one run. Retries supersede
// the previous result for the same identity rather than duplicating it.
type ProcessingResult struct {
	Paper         PaperInfo `json:"paper_info"`
	Status        string    `json:"status"`
	Summary       *Summary  `json:"ai_summary,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Retriable     bool      `json:"retriable,omitempty"`
	ProcessedAt   time.Time `json:"processed_at,omitempty"`
	TextLength    int       `json:"text_length,omitempty"`
}
