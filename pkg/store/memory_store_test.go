package store

import (
	"errors"
	"testing"
	"time"

	"pagetext/pkg/domain"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	doc := domain.Document{
		ID:        "doc-1",
		Locator:   "https://example.com/a.pdf",
		Status:    domain.StatusReady,
		PageCount: 1,
		Pages: []domain.Page{
			{Index: 0, Text: "hello", Source: "extracted", Metadata: map[string]string{"ocr_error": "disabled"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	doc.Pages[0].Metadata["ocr_error"] = "mutated"

	got, ok, err := s.GetDocument("doc-1")
	if err != nil || !ok {
		t.Fatalf("GetDocument() = %v, %v", ok, err)
	}
	if got.Pages[0].Text != "hello" || got.Pages[0].Metadata["ocr_error"] != "disabled" {
		t.Fatalf("stored page was not copied: %+v", got.Pages[0])
	}
	if _, ok, _ := s.GetDocument("missing"); ok {
		t.Fatalf("expected missing document")
	}
}

func TestMemoryStoreSetStatus(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SetStatus("missing", domain.StatusFailed, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
	_ = s.SaveDocument(domain.Document{ID: "doc-1", Status: domain.StatusProcessing})
	if err := s.SetStatus("doc-1", domain.StatusFailed, "fetch failed"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, _, _ := s.GetDocument("doc-1")
	if got.Status != domain.StatusFailed || got.ErrorMessage != "fetch failed" {
		t.Fatalf("document = %+v", got)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		_ = s.SaveDocument(domain.Document{ID: id, Pages: []domain.Page{{Index: 0}}})
	}
	docs, err := s.ListDocuments(2)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "c" || docs[1].ID != "b" {
		t.Fatalf("ListDocuments() = %+v", docs)
	}
	if docs[0].Pages != nil {
		t.Fatalf("list should not include pages")
	}

	if err := s.DeleteDocument("c"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	docs, _ = s.ListDocuments(0)
	if len(docs) != 2 || docs[0].ID != "b" {
		t.Fatalf("after delete = %+v", docs)
	}
}
