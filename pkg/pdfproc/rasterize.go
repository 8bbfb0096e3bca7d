package pdfproc

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is the rasterization resolution used when none is configured.
const DefaultDPI = 200

// ErrRasterize wraps failures to render the document into page images.
var ErrRasterize = errors.New("rasterize document")

// Rasterizer renders every page of a PDF to an image, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]image.Image, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	DPI float64
}

func (r FitzRasterizer) Rasterize(ctx context.Context, pdf []byte) ([]image.Image, error) {
	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrRasterize, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	images := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrRasterize, i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}
