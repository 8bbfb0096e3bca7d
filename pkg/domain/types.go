package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the stored extraction result for one locator.
type Document struct {
	ID           string         `json:"id"`
	Locator      string         `json:"locator"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	PageCount    int            `json:"pageCount"`
	Pages        []Page         `json:"pages,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Page is one reconciled page of a stored Document.
type Page struct {
	Index          int               `json:"index"`
	Text           string            `json:"text"`
	Source         string            `json:"source"`
	Confidence     float64           `json:"confidence"`
	ExtractedRunes int               `json:"extractedRunes"`
	OCRRunes       int               `json:"ocrRunes"`
	ImageKey       string            `json:"imageKey,omitempty"`
	// ImageURL is a short-lived link to ImageKey; it is never persisted.
	ImageURL       string            `json:"imageUrl,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
