package pdfproc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pagetext/pkg/ocr"
	"pagetext/pkg/reconcile"
)

// Settings are the processing knobs exposed by the CLI and the extract
// service configuration.
type Settings struct {
	DPI               float64
	Workers           int
	OCREnabled        bool
	OCR               ocr.Options
	Confidence        bool
	MinExtractedRunes int
	AllowLocal        bool
	MaxDocumentBytes  int64
	FetchTimeout      time.Duration
	PdftotextCommand  string
}

// DefaultSettings enables OCR with the default recognition parameters.
func DefaultSettings() Settings {
	return Settings{
		DPI:               DefaultDPI,
		Workers:           1,
		OCREnabled:        true,
		OCR:               ocr.DefaultOptions(),
		MinExtractedRunes: reconcile.DefaultMinExtractedRunes,
		AllowLocal:        true,
		MaxDocumentBytes:  DefaultMaxDocumentBytes,
		FetchTimeout:      60 * time.Second,
	}
}

// NewFromSettings builds a Processor and the OCR engine it uses. The caller
// owns the engine and must Close it when done. A binary built without OCR
// support falls back to ocr.Disabled.
func NewFromSettings(s Settings, logger *slog.Logger) (*Processor, ocr.Engine, error) {
	var engine ocr.Engine = ocr.Disabled{}
	if s.OCREnabled {
		if err := s.OCR.Validate(); err != nil {
			return nil, nil, err
		}
		t, err := ocr.NewTesseract(s.OCR)
		switch {
		case errors.Is(err, ocr.ErrOCRNotEnabled):
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("ocr not compiled in, using embedded text only")
		case err != nil:
			return nil, nil, fmt.Errorf("init ocr engine: %w", err)
		default:
			engine = t
		}
	}
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxBytes := s.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	extractor := DefaultExtractor()
	if s.PdftotextCommand != "" {
		extractor[0] = PdftotextExtractor{Command: s.PdftotextCommand}
	}
	p := New(Options{
		Fetcher: &Fetcher{
			Client:     &http.Client{Timeout: timeout},
			MaxBytes:   maxBytes,
			AllowLocal: s.AllowLocal,
		},
		Rasterizer: FitzRasterizer{DPI: s.DPI},
		Extractor:  extractor,
		Engine:     engine,
		Policy:     reconcile.Policy{MinExtractedRunes: s.MinExtractedRunes},
		Confidence: s.Confidence && ocr.Enabled(engine),
		Workers:    s.Workers,
		Logger:     logger,
	})
	return p, engine, nil
}
