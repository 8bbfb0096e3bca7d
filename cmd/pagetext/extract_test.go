package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/reconcile"
)

type stubProcessor struct {
	failing map[string]error
	seen    []string
}

func (s *stubProcessor) Process(_ context.Context, locator string) (pdfproc.Document, error) {
	s.seen = append(s.seen, locator)
	if err := s.failing[locator]; err != nil {
		return pdfproc.Document{}, err
	}
	return pdfproc.Document{Locator: locator, Pages: []pdfproc.Page{
		{Index: 0, Extracted: pdfproc.Ok("embedded"), OCR: pdfproc.Failed(ocr.ErrOCRNotEnabled), Text: "embedded", Source: reconcile.SourceExtracted},
		{Index: 1, Extracted: pdfproc.Ok(""), OCR: pdfproc.Failed(errors.New("tesseract crashed")), Source: reconcile.SourceNone},
	}}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunExtractSkipsFailingDocuments(t *testing.T) {
	proc := &stubProcessor{failing: map[string]error{"bad.pdf": pdfproc.ErrFetch}}
	var out bytes.Buffer
	err := runExtract(context.Background(), proc, []string{"bad.pdf", "good.pdf"}, &out, false, discardLogger())
	if err != nil {
		t.Fatalf("runExtract() error = %v", err)
	}
	if len(proc.seen) != 2 {
		t.Fatalf("processed %v, want both locators", proc.seen)
	}
	text := out.String()
	if strings.Contains(text, "bad.pdf") {
		t.Fatalf("failed document printed: %q", text)
	}
	want := "==> good.pdf <==\n--- page 1 (extracted) ---\nembedded\n--- page 2 (none) ---\n\n"
	if text != want {
		t.Fatalf("output = %q, want %q", text, want)
	}
}

func TestRunExtractFailsWhenNothingSucceeds(t *testing.T) {
	proc := &stubProcessor{failing: map[string]error{"a.pdf": pdfproc.ErrFetch, "b.pdf": pdfproc.ErrRasterize}}
	err := runExtract(context.Background(), proc, []string{"a.pdf", "b.pdf"}, io.Discard, false, discardLogger())
	if err == nil {
		t.Fatalf("expected error when every document fails")
	}
}

func TestRunExtractJSON(t *testing.T) {
	proc := &stubProcessor{failing: map[string]error{"bad.pdf": errors.New("fetch document: 404")}}
	var out bytes.Buffer
	if err := runExtract(context.Background(), proc, []string{"good.pdf", "bad.pdf"}, &out, true, discardLogger()); err != nil {
		t.Fatalf("runExtract() error = %v", err)
	}
	var docs []documentOutput
	if err := json.Unmarshal(out.Bytes(), &docs); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
	good, bad := docs[0], docs[1]
	if len(good.Pages) != 2 || good.Pages[0].Index != 1 || good.Pages[0].ExtractedRunes != 8 {
		t.Fatalf("good document = %+v", good)
	}
	if good.Pages[0].OCRError != "" {
		t.Fatalf("disabled OCR reported as error: %q", good.Pages[0].OCRError)
	}
	if good.Pages[1].OCRError != "tesseract crashed" {
		t.Fatalf("page 2 ocr error = %q", good.Pages[1].OCRError)
	}
	if bad.Error == "" || bad.Pages != nil {
		t.Fatalf("bad document = %+v", bad)
	}
}

func TestRunExtractStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc := &stubProcessor{}
	if err := runExtract(ctx, proc, []string{"a.pdf"}, io.Discard, false, discardLogger()); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(proc.seen) != 0 {
		t.Fatalf("processed %v after cancel", proc.seen)
	}
}

func TestExtractCmdFlags(t *testing.T) {
	var got pdfproc.Settings
	prev := buildProcessor
	buildProcessor = func(s pdfproc.Settings, _ *slog.Logger) (documentProcessor, io.Closer, error) {
		got = s
		return &stubProcessor{}, nopCloser{}, nil
	}
	t.Cleanup(func() { buildProcessor = prev })

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"extract", "--workers", "3", "--lang", "eng+deu", "--psm", "4", "--oem", "1",
		"--whitelist", "", "--no-ocr", "--confidence", "--min-extracted-runes", "50", "--dpi", "150", "a.pdf"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Workers != 3 || got.DPI != 150 || got.MinExtractedRunes != 50 || !got.Confidence || got.OCREnabled {
		t.Fatalf("settings = %+v", got)
	}
	if strings.Join(got.OCR.Languages, "+") != "eng+deu" || got.OCR.PageSegMode != 4 || got.OCR.EngineMode != 1 || got.OCR.Whitelist != "" {
		t.Fatalf("ocr options = %+v", got.OCR)
	}
	if !strings.Contains(out.String(), "==> a.pdf <==") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestExtractCmdRejectsBadFlags(t *testing.T) {
	for _, args := range [][]string{
		{"extract"},
		{"extract", "--workers", "0", "a.pdf"},
		{"extract", "--min-extracted-runes", "0", "a.pdf"},
		{"extract", "--dpi", "-1", "a.pdf"},
	} {
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs(args)
		if err := root.Execute(); err == nil {
			t.Fatalf("args %v: expected error", args)
		}
	}
}
