package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"pagetext/internal/util"
	"pagetext/pkg/domain"
	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/queue"
	"pagetext/pkg/storage"
	"pagetext/pkg/store"
)

// Processor turns a locator into reconciled pages.
type Processor interface {
	Process(ctx context.Context, locator string) (pdfproc.Document, error)
}

// JobQueue is the subset of queue.RedisJobQueue the service uses.
type JobQueue interface {
	Enqueue(ctx context.Context, locator string) (queue.Job, error)
	GetJob(ctx context.Context, id string) (queue.Job, bool, error)
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

// ErrInvalidLocator is returned by Enqueue for locators the service will not fetch.
var ErrInvalidLocator = errors.New("invalid locator")

// Config wires the App's collaborators. Objects may be nil, in which case
// page images are not kept.
type Config struct {
	Queue       JobQueue
	Store       store.Store
	Objects     storage.ObjectStore
	Processor   Processor
	ImageURLTTL time.Duration
	// AllowLocal admits file:// and bare path locators.
	AllowLocal bool
	Logger     *slog.Logger
}

// App runs extraction jobs and serves their results.
type App struct {
	queue       JobQueue
	store       store.Store
	objects     storage.ObjectStore
	processor   Processor
	imageURLTTL time.Duration
	allowLocal  bool
	logger      *slog.Logger
}

func New(cfg Config) (*App, error) {
	if cfg.Queue == nil {
		return nil, errors.New("job queue required")
	}
	if cfg.Store == nil {
		return nil, errors.New("result store required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("processor required")
	}
	a := &App{
		queue:       cfg.Queue,
		store:       cfg.Store,
		objects:     cfg.Objects,
		processor:   cfg.Processor,
		imageURLTTL: cfg.ImageURLTTL,
		allowLocal:  cfg.AllowLocal,
		logger:      cfg.Logger,
	}
	if a.imageURLTTL <= 0 {
		a.imageURLTTL = 15 * time.Minute
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Start launches the queue consumers. They stop when ctx is canceled.
func (a *App) Start(ctx context.Context, concurrency int) {
	a.queue.Start(ctx, concurrency, a.Process)
}

// Enqueue validates locator and schedules an extraction job.
func (a *App) Enqueue(ctx context.Context, locator string) (queue.Job, error) {
	locator = strings.TrimSpace(locator)
	if err := a.checkLocator(locator); err != nil {
		return queue.Job{}, err
	}
	return a.queue.Enqueue(ctx, locator)
}

func (a *App) checkLocator(locator string) error {
	if locator == "" {
		return fmt.Errorf("%w: locator required", ErrInvalidLocator)
	}
	u, err := url.Parse(locator)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: missing host", ErrInvalidLocator)
		}
		return nil
	default:
		if a.allowLocal {
			return nil
		}
		return fmt.Errorf("%w: only http and https locators are accepted", ErrInvalidLocator)
	}
}

// GetJob returns job state by id.
func (a *App) GetJob(ctx context.Context, id string) (queue.Job, bool, error) {
	return a.queue.GetJob(ctx, id)
}

// GetDocument returns a stored result with fresh image links.
func (a *App) GetDocument(ctx context.Context, id string) (domain.Document, bool, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil || !ok {
		return doc, ok, err
	}
	if a.objects == nil {
		return doc, true, nil
	}
	for i := range doc.Pages {
		key := doc.Pages[i].ImageKey
		if key == "" {
			continue
		}
		link, err := a.objects.PresignGet(ctx, key, a.imageURLTTL)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("presign_page_image_failed", "document_id", id, "key", key, "err", err)
			continue
		}
		doc.Pages[i].ImageURL = link
	}
	return doc, true, nil
}

// ListDocuments returns stored results without pages, newest first.
func (a *App) ListDocuments(limit int) ([]domain.Document, error) {
	return a.store.ListDocuments(limit)
}

// DeleteDocument removes a stored result and its page images.
func (a *App) DeleteDocument(ctx context.Context, id string) error {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	if a.objects != nil {
		if err := storage.DeletePageImages(ctx, a.objects, doc.ID); err != nil {
			return fmt.Errorf("delete page images: %w", err)
		}
	}
	return a.store.DeleteDocument(id)
}

// Process is the queue handler. The stored document shares the job id.
func (a *App) Process(ctx context.Context, job queue.Job) error {
	log := util.LoggerFromContext(ctx).With("document_id", job.ID, "locator", job.Locator)
	ctx = util.ContextWithLogger(ctx, log)
	now := time.Now().UTC()

	created := now
	if existing, ok, err := a.store.GetDocument(job.ID); err == nil && ok {
		created = existing.CreatedAt
	}
	if err := a.store.SaveDocument(domain.Document{
		ID:        job.ID,
		Locator:   job.Locator,
		Status:    domain.StatusProcessing,
		CreatedAt: created,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("save processing document: %w", err)
	}

	result, err := a.processor.Process(ctx, job.Locator)
	if err != nil {
		if serr := a.store.SetStatus(job.ID, domain.StatusFailed, err.Error()); serr != nil {
			log.Warn("set_failed_status_failed", "err", serr)
		}
		return err
	}

	doc := domain.Document{
		ID:        job.ID,
		Locator:   job.Locator,
		Status:    domain.StatusReady,
		PageCount: len(result.Pages),
		Pages:     make([]domain.Page, 0, len(result.Pages)),
		CreatedAt: created,
	}
	for _, p := range result.Pages {
		page := toDomainPage(p)
		if a.objects != nil && p.Image != nil {
			key, err := storage.PutPageImage(ctx, a.objects, job.ID, p.Index, p.Image)
			if err != nil {
				if serr := a.store.SetStatus(job.ID, domain.StatusFailed, err.Error()); serr != nil {
					log.Warn("set_failed_status_failed", "err", serr)
				}
				return fmt.Errorf("store page image: %w", err)
			}
			page.ImageKey = key
		}
		doc.Pages = append(doc.Pages, page)
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveDocument(doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	log.Info("document_ready", "pages", doc.PageCount)
	return nil
}

func toDomainPage(p pdfproc.Page) domain.Page {
	page := domain.Page{
		Index:          p.Index,
		Text:           p.Text,
		Source:         string(p.Source),
		Confidence:     p.Confidence,
		ExtractedRunes: utf8.RuneCountInString(strings.TrimSpace(p.Extracted.Text)),
		OCRRunes:       utf8.RuneCountInString(strings.TrimSpace(p.OCR.Text)),
	}
	meta := map[string]string{}
	if p.Extracted.Failed() {
		meta["extract_error"] = p.Extracted.Reason()
	}
	if p.OCR.Failed() && !errors.Is(p.OCR.Err, ocr.ErrOCRNotEnabled) {
		meta["ocr_error"] = p.OCR.Reason()
	}
	if len(meta) > 0 {
		page.Metadata = meta
	}
	return page
}
