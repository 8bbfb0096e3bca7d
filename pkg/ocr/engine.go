package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrOCRNotEnabled is returned by engines that cannot run recognition, either
// because OCR is switched off or because the binary was built without the
// "ocr" tag.
var ErrOCRNotEnabled = errors.New("OCR support not enabled")

// Engine recognizes text in a single page image.
type Engine interface {
	// Recognize returns the text found on the image.
	Recognize(ctx context.Context, img image.Image) (string, error)
	// Confidence returns the mean word confidence in [0, 100].
	Confidence(ctx context.Context, img image.Image) (float64, error)
	Close() error
}

// Tesseract page segmentation and engine modes used by default.
const (
	DefaultPageSegMode = 6 // single uniform block of text
	DefaultEngineMode  = 3 // whatever the installed build supports
	DefaultLanguage    = "eng"
)

// DefaultWhitelist restricts recognition to printable ASCII.
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" +
	" .,;:!?'\"()[]{}<>-_/\\@#$%&*+=|~`^"

// Options are the fixed recognition parameters handed to the engine.
type Options struct {
	Languages      []string
	PageSegMode    int
	EngineMode     int
	Whitelist      string
	TessdataPrefix string
}

// DefaultOptions returns the parameters pages are recognized with unless
// configured otherwise.
func DefaultOptions() Options {
	return Options{
		Languages:   []string{DefaultLanguage},
		PageSegMode: DefaultPageSegMode,
		EngineMode:  DefaultEngineMode,
		Whitelist:   DefaultWhitelist,
	}
}

// ParseLanguages splits a Tesseract language list such as "eng+deu".
func ParseLanguages(list string) []string {
	var langs []string
	for _, part := range strings.FieldsFunc(list, func(r rune) bool { return r == '+' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			langs = append(langs, part)
		}
	}
	return langs
}

// Validate reports parameters Tesseract would reject.
func (o Options) Validate() error {
	if len(o.Languages) == 0 {
		return errors.New("ocr: at least one language is required")
	}
	if o.PageSegMode < 0 || o.PageSegMode > 13 {
		return fmt.Errorf("ocr: page segmentation mode %d out of range 0-13", o.PageSegMode)
	}
	if o.EngineMode < 0 || o.EngineMode > 3 {
		return fmt.Errorf("ocr: engine mode %d out of range 0-3", o.EngineMode)
	}
	return nil
}

// Disabled is an Engine used when OCR is switched off by configuration.
type Disabled struct{}

func (Disabled) Recognize(context.Context, image.Image) (string, error) {
	return "", ErrOCRNotEnabled
}

func (Disabled) Confidence(context.Context, image.Image) (float64, error) {
	return 0, ErrOCRNotEnabled
}

func (Disabled) Close() error { return nil }

// Enabled reports whether e can recognize text at all.
func Enabled(e Engine) bool {
	switch e.(type) {
	case nil, Disabled, *Disabled:
		return false
	}
	return true
}

// MeanConfidence averages the positive word confidences. Tesseract reports
// -1 or 0 for non-word boxes; those are ignored. It returns 0 when nothing
// qualifies.
func MeanConfidence(scores []float64) float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s <= 0 {
			continue
		}
		sum += s
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	if mean > 100 {
		return 100
	}
	return mean
}
