package pdfproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls text from a PDF's text objects, one string per page.
type TextExtractor interface {
	Name() string
	ExtractPages(ctx context.Context, pdf []byte) ([]string, error)
}

// DefaultExtractor tries pdftotext first (better with complex and CJK
// layouts), then MuPDF, then the pure Go reader.
func DefaultExtractor() ChainExtractor {
	return ChainExtractor{
		PdftotextExtractor{},
		FitzTextExtractor{},
		GoExtractor{},
	}
}

// PdftotextExtractor runs poppler's pdftotext.
type PdftotextExtractor struct {
	// Command defaults to "pdftotext" on PATH.
	Command string
}

func (PdftotextExtractor) Name() string { return "pdftotext" }

func (e PdftotextExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	command := e.Command
	if command == "" {
		command = "pdftotext"
	}
	bin, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("pdftotext not found: %w", err)
	}
	tmp, err := os.CreateTemp("", "pagetext-*.pdf")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pdftotext failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	return splitFormFeeds(string(output)), nil
}

// splitFormFeeds splits pdftotext output, which terminates every page with a
// form feed.
func splitFormFeeds(out string) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	if last := pages[len(pages)-1]; len(pages) > 1 && strings.TrimSpace(last) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// FitzTextExtractor reads the text layer through MuPDF.
type FitzTextExtractor struct{}

func (FitzTextExtractor) Name() string { return "mupdf" }

func (FitzTextExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	n := doc.NumPage()
	pages := make([]string, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			// Keep the page slot; one broken page must not drop the rest.
			continue
		}
		pages[i] = text
	}
	return pages, nil
}

// GoExtractor uses github.com/ledongthuc/pdf and needs no system libraries.
type GoExtractor struct{}

func (GoExtractor) Name() string { return "ledongthuc" }

func (GoExtractor) ExtractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// The reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages = make([]string, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

// ChainExtractor returns the first extractor result containing any text.
// When every extractor succeeds without text (a scanned document) the first
// successful result is returned; when all fail the errors are joined.
type ChainExtractor []TextExtractor

func (c ChainExtractor) Name() string {
	names := make([]string, 0, len(c))
	for _, e := range c {
		names = append(names, e.Name())
	}
	return strings.Join(names, ",")
}

func (c ChainExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	var (
		errs      []error
		fallback  []string
		succeeded bool
	)
	for _, e := range c {
		pages, err := e.ExtractPages(ctx, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if hasText(pages) {
			return pages, nil
		}
		if !succeeded {
			fallback, succeeded = pages, true
		}
	}
	if succeeded {
		return fallback, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("no text extractor configured")
	}
	return nil, errors.Join(errs...)
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}
