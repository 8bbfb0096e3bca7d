package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"pagetext/pkg/domain"
)

// GORM models used for persistence.
type DocumentModel struct {
	ID           string `gorm:"primaryKey"`
	Locator      string `gorm:"type:text;not null"`
	Status       string `gorm:"not null;index"`
	ErrorMessage string
	PageCount    int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type PageModel struct {
	ID             string `gorm:"primaryKey"`
	DocumentID     string `gorm:"not null;uniqueIndex:idx_page_document_index"`
	PageIndex      int    `gorm:"not null;uniqueIndex:idx_page_document_index"`
	Text           string `gorm:"type:text;not null"`
	Source         string `gorm:"not null"`
	Confidence     float64
	ExtractedRunes int
	OCRRunes       int
	ImageKey       string
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:           d.ID,
		Locator:      d.Locator,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		PageCount:    d.PageCount,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:           m.ID,
		Locator:      m.Locator,
		Status:       domain.DocumentStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		PageCount:    m.PageCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func pageToModel(id, documentID string, p domain.Page) (PageModel, error) {
	model := PageModel{
		ID:             id,
		DocumentID:     documentID,
		PageIndex:      p.Index,
		Text:           p.Text,
		Source:         p.Source,
		Confidence:     p.Confidence,
		ExtractedRunes: p.ExtractedRunes,
		OCRRunes:       p.OCRRunes,
		ImageKey:       p.ImageKey,
	}
	if len(p.Metadata) > 0 {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return PageModel{}, err
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func pageFromModel(m PageModel) domain.Page {
	page := domain.Page{
		Index:          m.PageIndex,
		Text:           m.Text,
		Source:         m.Source,
		Confidence:     m.Confidence,
		ExtractedRunes: m.ExtractedRunes,
		OCRRunes:       m.OCRRunes,
		ImageKey:       m.ImageKey,
	}
	if len(m.Metadata) > 0 {
		var meta map[string]string
		if err := json.Unmarshal(m.Metadata, &meta); err == nil {
			page.Metadata = meta
		}
	}
	return page
}
