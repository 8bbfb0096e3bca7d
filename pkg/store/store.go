package store

import (
	"errors"

	"pagetext/pkg/domain"
)

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("document not found")

// Store persists extraction results.
type Store interface {
	// SaveDocument creates or replaces a document together with its pages.
	SaveDocument(doc domain.Document) error
	SetStatus(id string, status domain.DocumentStatus, errMsg string) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(limit int) ([]domain.Document, error)
	DeleteDocument(id string) error
}
