package app

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pagetext/pkg/domain"
	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/queue"
	"pagetext/pkg/reconcile"
	"pagetext/pkg/storage"
	"pagetext/pkg/store"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	doc   pdfproc.Document
	err   error
}

func (f *fakeProcessor) Process(_ context.Context, locator string) (pdfproc.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, locator)
	if f.err != nil {
		return pdfproc.Document{}, f.err
	}
	doc := f.doc
	doc.Locator = locator
	return doc, nil
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func newMemoryObjects(baseURL string) *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, baseURL: baseURL}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return m.baseURL + "/" + key, nil
}

func (m *memoryObjects) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *memoryObjects) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeQueue struct {
	jobs map[string]queue.Job
	next int
}

func newFakeQueue() *fakeQueue { return &fakeQueue{jobs: map[string]queue.Job{}} }

func (q *fakeQueue) Enqueue(_ context.Context, locator string) (queue.Job, error) {
	q.next++
	job := queue.Job{ID: "job-" + string(rune('0'+q.next)), Locator: locator, Status: queue.StatusQueued}
	q.jobs[job.ID] = job
	return job, nil
}

func (q *fakeQueue) GetJob(_ context.Context, id string) (queue.Job, bool, error) {
	job, ok := q.jobs[id]
	return job, ok, nil
}

func (q *fakeQueue) Start(context.Context, int, queue.Handler) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func twoPageDocument() pdfproc.Document {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	return pdfproc.Document{Pages: []pdfproc.Page{
		{
			Index:     0,
			Image:     img,
			Extracted: pdfproc.Ok("short"),
			OCR:       pdfproc.Ok("a much longer recognized text"),
			Text:      "a much longer recognized text",
			Source:    reconcile.SourceOCR,
		},
		{
			Index:      1,
			Image:      img,
			Extracted:  pdfproc.Failed(errors.New("pdftotext: exit status 1")),
			OCR:        pdfproc.Failed(errors.New("tesseract crashed")),
			Confidence: 0,
			Source:     reconcile.SourceNone,
		},
	}}
}

func newTestApp(t *testing.T, proc Processor, objects storage.ObjectStore) (*App, *store.MemoryStore) {
	t.Helper()
	results := store.NewMemoryStore()
	a, err := New(Config{
		Queue:     newFakeQueue(),
		Store:     results,
		Objects:   objects,
		Processor: proc,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, results
}

func TestProcessStoresReadyDocument(t *testing.T) {
	objects := newMemoryObjects("http://objects.local")
	a, results := newTestApp(t, &fakeProcessor{doc: twoPageDocument()}, objects)
	ctx := context.Background()

	if err := a.Process(ctx, queue.Job{ID: "doc-1", Locator: "https://example.com/a.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	doc, ok, err := results.GetDocument("doc-1")
	if err != nil || !ok {
		t.Fatalf("get document: ok=%v err=%v", ok, err)
	}
	if doc.Status != domain.StatusReady || doc.PageCount != 2 || len(doc.Pages) != 2 {
		t.Fatalf("document = %+v", doc)
	}
	first, second := doc.Pages[0], doc.Pages[1]
	if first.Source != "ocr" || first.ExtractedRunes != 5 || first.OCRRunes != 29 {
		t.Fatalf("first page = %+v", first)
	}
	if first.ImageKey != storage.PageImageKey("doc-1", 0) {
		t.Fatalf("first page image key = %q", first.ImageKey)
	}
	if second.Metadata["extract_error"] == "" || second.Metadata["ocr_error"] != "tesseract crashed" {
		t.Fatalf("second page metadata = %v", second.Metadata)
	}
	if keys := objects.Keys(); len(keys) != 2 {
		t.Fatalf("stored images = %v", keys)
	}

	withURLs, ok, err := a.GetDocument(ctx, "doc-1")
	if err != nil || !ok {
		t.Fatalf("app get document: ok=%v err=%v", ok, err)
	}
	if withURLs.Pages[0].ImageURL != "http://objects.local/documents/doc-1/pages/0001.png" {
		t.Fatalf("image url = %q", withURLs.Pages[0].ImageURL)
	}
}

func TestProcessWithoutObjectStore(t *testing.T) {
	a, results := newTestApp(t, &fakeProcessor{doc: twoPageDocument()}, nil)
	if err := a.Process(context.Background(), queue.Job{ID: "doc-1", Locator: "https://example.com/a.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	doc, _, _ := results.GetDocument("doc-1")
	if doc.Pages[0].ImageKey != "" {
		t.Fatalf("image key set without object store: %q", doc.Pages[0].ImageKey)
	}
}

func TestProcessFailureMarksDocumentFailed(t *testing.T) {
	fetchErr := errors.New("fetch document: 404 Not Found")
	a, results := newTestApp(t, &fakeProcessor{err: fetchErr}, nil)

	err := a.Process(context.Background(), queue.Job{ID: "doc-1", Locator: "https://example.com/missing.pdf"})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("process error = %v, want %v", err, fetchErr)
	}
	doc, ok, _ := results.GetDocument("doc-1")
	if !ok || doc.Status != domain.StatusFailed || doc.ErrorMessage != fetchErr.Error() {
		t.Fatalf("document = %+v", doc)
	}
}

func TestToDomainPageIgnoresDisabledOCR(t *testing.T) {
	page := toDomainPage(pdfproc.Page{
		Extracted: pdfproc.Ok("  text  "),
		OCR:       pdfproc.Failed(ocr.ErrOCRNotEnabled),
		Text:      "  text  ",
		Source:    reconcile.SourceExtracted,
	})
	if page.Metadata != nil {
		t.Fatalf("metadata = %v, want none", page.Metadata)
	}
	if page.ExtractedRunes != 4 || page.OCRRunes != 0 {
		t.Fatalf("rune counts = %d/%d", page.ExtractedRunes, page.OCRRunes)
	}
}

func TestEnqueueValidatesLocator(t *testing.T) {
	a, _ := newTestApp(t, &fakeProcessor{}, nil)
	ctx := context.Background()

	if _, err := a.Enqueue(ctx, "https://example.com/a.pdf"); err != nil {
		t.Fatalf("enqueue https: %v", err)
	}
	for _, locator := range []string{"", "/etc/passwd", "file:///tmp/a.pdf", "ftp://example.com/a.pdf", "https:///a.pdf"} {
		if _, err := a.Enqueue(ctx, locator); !errors.Is(err, ErrInvalidLocator) {
			t.Fatalf("Enqueue(%q) error = %v, want ErrInvalidLocator", locator, err)
		}
	}

	a.allowLocal = true
	if _, err := a.Enqueue(ctx, "/tmp/a.pdf"); err != nil {
		t.Fatalf("enqueue local path with AllowLocal: %v", err)
	}
}

func TestDeleteDocumentRemovesImages(t *testing.T) {
	objects := newMemoryObjects("")
	a, results := newTestApp(t, &fakeProcessor{doc: twoPageDocument()}, objects)
	ctx := context.Background()
	if err := a.Process(ctx, queue.Job{ID: "doc-1", Locator: "https://example.com/a.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := a.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := results.GetDocument("doc-1"); ok {
		t.Fatalf("document still stored")
	}
	if keys := objects.Keys(); len(keys) != 0 {
		t.Fatalf("images left: %v", keys)
	}
	if err := a.DeleteDocument(ctx, "doc-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Store: store.NewMemoryStore(), Processor: &fakeProcessor{}}); err == nil {
		t.Fatalf("expected error without queue")
	}
	if _, err := New(Config{Queue: newFakeQueue(), Processor: &fakeProcessor{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Config{Queue: newFakeQueue(), Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error without processor")
	}
}

func TestRedisQueueEndToEnd(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:   redisSrv.Addr(),
		Stream: "test:extract",
		Block:  20 * time.Millisecond,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Close()

	results := store.NewMemoryStore()
	a, err := New(Config{Queue: q, Store: results, Processor: &fakeProcessor{doc: twoPageDocument()}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		q.Wait()
	}()
	a.Start(ctx, 1)

	job, err := a.Enqueue(ctx, "https://example.com/a.pdf")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, ok, err := a.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && got.Status == queue.StatusDone {
			doc, ok, _ := a.GetDocument(ctx, job.ID)
			if !ok || doc.Status != domain.StatusReady || doc.PageCount != 2 {
				t.Fatalf("document = %+v", doc)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
}
