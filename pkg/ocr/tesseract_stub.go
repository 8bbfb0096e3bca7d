//go:build !ocr

package ocr

import (
	"context"
	"image"
)

// Tesseract is the stand-in used when the binary is built without the "ocr"
// tag. Every call returns ErrOCRNotEnabled.
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled. Rebuild with -tags ocr to enable.
func NewTesseract(Options) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Close is safe on a nil Tesseract.
func (t *Tesseract) Close() error { return nil }

func (t *Tesseract) Recognize(context.Context, image.Image) (string, error) {
	return "", ErrOCRNotEnabled
}

func (t *Tesseract) Confidence(context.Context, image.Image) (float64, error) {
	return 0, ErrOCRNotEnabled
}
