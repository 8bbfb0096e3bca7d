package store

import (
	"sync"
	"time"

	"pagetext/pkg/domain"
)

// MemoryStore keeps results in-process; used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	orders []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]domain.Document)}
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[d.ID]; !exists {
		m.orders = append(m.orders, d.ID)
	}
	m.docs[d.ID] = cloneDocument(d)
	return nil
}

// SetStatus updates status and optional error message.
func (m *MemoryStore) SetStatus(id string, status domain.DocumentStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errMsg
	doc.UpdatedAt = time.Now().UTC()
	m.docs[id] = doc
	return nil
}

// GetDocument returns a copy of the stored document.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	return cloneDocument(doc), true, nil
}

// ListDocuments returns the newest documents first, without pages.
func (m *MemoryStore) ListDocuments(limit int) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	res := make([]domain.Document, 0, limit)
	for i := len(m.orders) - 1; i >= 0 && len(res) < limit; i-- {
		doc, ok := m.docs[m.orders[i]]
		if !ok {
			continue
		}
		doc.Pages = nil
		res = append(res, doc)
	}
	return res, nil
}

// DeleteDocument removes a document.
func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	for i, existing := range m.orders {
		if existing == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			break
		}
	}
	return nil
}

func cloneDocument(d domain.Document) domain.Document {
	if d.Pages == nil {
		return d
	}
	pages := make([]domain.Page, len(d.Pages))
	for i, p := range d.Pages {
		if p.Metadata != nil {
			meta := make(map[string]string, len(p.Metadata))
			for k, v := range p.Metadata {
				meta[k] = v
			}
			p.Metadata = meta
		}
		pages[i] = p
	}
	d.Pages = pages
	return d
}
