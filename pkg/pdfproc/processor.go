package pdfproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pagetext/internal/util"
	"pagetext/pkg/ocr"
	"pagetext/pkg/reconcile"
)

// ErrNoPages is returned when a document rasterizes to zero pages.
var ErrNoPages = errors.New("document has no pages")

// Page is one reconciled page. It is not modified after Process returns.
type Page struct {
	Index      int
	Image      image.Image
	Extracted  Result
	OCR        Result
	Confidence float64
	Text       string
	Source     reconcile.Source
}

// Document is the ordered page list produced for one locator.
type Document struct {
	Locator string
	Pages   []Page
}

// Images returns the page images in page order.
func (d Document) Images() []image.Image {
	out := make([]image.Image, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Image
	}
	return out
}

// Texts returns the reconciled page texts in page order.
func (d Document) Texts() []string {
	out := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Text
	}
	return out
}

// Options wires the processor's collaborators. Zero values select defaults.
type Options struct {
	Fetcher    DocumentFetcher
	Rasterizer Rasterizer
	Extractor  TextExtractor
	// Engine defaults to ocr.Disabled, which yields structural text only.
	Engine ocr.Engine
	Policy reconcile.Policy
	// Confidence enables per-page OCR confidence scoring.
	Confidence bool
	// Workers bounds concurrent page work. 1 processes pages one by one.
	Workers int
	Logger  *slog.Logger
}

// Processor runs the per-page pipeline. It holds no per-document state and
// may be shared between goroutines if its collaborators allow it.
type Processor struct {
	fetcher    DocumentFetcher
	rasterizer Rasterizer
	extractor  TextExtractor
	engine     ocr.Engine
	policy     reconcile.Policy
	confidence bool
	workers    int
	logger     *slog.Logger
}

// New constructs a Processor.
func New(opts Options) *Processor {
	p := &Processor{
		fetcher:    opts.Fetcher,
		rasterizer: opts.Rasterizer,
		extractor:  opts.Extractor,
		engine:     opts.Engine,
		policy:     opts.Policy,
		confidence: opts.Confidence,
		workers:    opts.Workers,
		logger:     opts.Logger,
	}
	if p.fetcher == nil {
		p.fetcher = NewFetcher()
	}
	if p.rasterizer == nil {
		p.rasterizer = FitzRasterizer{DPI: DefaultDPI}
	}
	if p.extractor == nil {
		p.extractor = DefaultExtractor()
	}
	if p.engine == nil {
		p.engine = ocr.Disabled{}
	}
	if p.policy.MinExtractedRunes <= 0 {
		p.policy = reconcile.DefaultPolicy()
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// ImagesAndTexts returns two parallel, equal-length sequences: the page
// images and the reconciled page texts.
func (p *Processor) ImagesAndTexts(ctx context.Context, locator string) ([]image.Image, []string, error) {
	doc, err := p.Process(ctx, locator)
	if err != nil {
		return nil, nil, err
	}
	return doc.Images(), doc.Texts(), nil
}

// Process fetches the document and reconciles every page. Fetch and
// rasterization failures are returned; structural extraction, OCR,
// preprocessing and confidence failures degrade the affected page only.
func (p *Processor) Process(ctx context.Context, locator string) (Document, error) {
	data, err := p.fetcher.Fetch(ctx, locator)
	if err != nil {
		return Document{}, err
	}
	return p.ProcessBytes(ctx, locator, data)
}

// ProcessBytes is Process for a document already in memory.
func (p *Processor) ProcessBytes(ctx context.Context, locator string, data []byte) (Document, error) {
	logger := p.log(ctx).With("locator", locator)
	start := time.Now()

	images, err := p.rasterizer.Rasterize(ctx, data)
	if err != nil {
		return Document{}, err
	}
	if len(images) == 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrNoPages, locator)
	}

	texts, extractErr := p.extractor.ExtractPages(ctx, data)
	if extractErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Document{}, ctxErr
		}
		logger.Warn("structural extraction failed", "extractor", p.extractor.Name(), "err", extractErr)
		texts = nil
	}
	if extractErr == nil && len(texts) != len(images) {
		logger.Warn("page count mismatch", "images", len(images), "texts", len(texts))
	}

	pages := make([]Page, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, img := range images {
		extracted := Ok("")
		switch {
		case extractErr != nil:
			extracted = Failed(extractErr)
		case i < len(texts):
			extracted = Ok(texts[i])
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[i] = p.processPage(gctx, logger, i, img, extracted)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Document{}, err
	}

	logger.Info("document processed", "pages", len(pages), "duration_ms", time.Since(start).Milliseconds())
	return Document{Locator: locator, Pages: pages}, nil
}

func (p *Processor) processPage(ctx context.Context, logger *slog.Logger, index int, img image.Image, extracted Result) Page {
	page := Page{Index: index, Image: img, Extracted: extracted}
	logger = logger.With("page", index+1)

	if !ocr.Enabled(p.engine) {
		page.OCR = Failed(ocr.ErrOCRNotEnabled)
	} else {
		prepared, err := ocr.Preprocess(img)
		if err != nil {
			logger.Warn("preprocess failed, using original image", "err", err)
		}
		text, err := p.engine.Recognize(ctx, prepared)
		switch {
		case errors.Is(err, ocr.ErrOCRNotEnabled):
			page.OCR = Failed(err)
		case err != nil:
			logger.Warn("ocr failed", "err", err)
			page.OCR = Failed(err)
		default:
			page.OCR = Ok(text)
		}
		if p.confidence {
			score, err := p.engine.Confidence(ctx, prepared)
			if err != nil {
				logger.Debug("confidence scoring failed", "err", err)
				score = 0
			}
			page.Confidence = score
		}
	}

	decision := p.policy.Reconcile(page.Extracted.Text, page.OCR.Text)
	page.Text = decision.Text
	page.Source = decision.Source
	logger.Debug("page reconciled", "source", decision.Source, "runes", len([]rune(decision.Text)))
	return page
}

func (p *Processor) log(ctx context.Context) *slog.Logger {
	if logger, ok := util.ContextLogger(ctx); ok {
		return logger
	}
	return p.logger
}
