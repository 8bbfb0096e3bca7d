package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pagetext/pkg/pdfproc"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	if cmd.Use != "pagetext" {
		t.Errorf("expected use 'pagetext', got %q", cmd.Use)
	}
	want := map[string]bool{"extract": false, "doctor": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("log-level") == nil {
		t.Error("missing --log-level flag")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, s := range []string{"pagetext version", "commit:", "ocr:"} {
		if !strings.Contains(out, s) {
			t.Errorf("expected output to contain %q, got %q", s, out)
		}
	}
}

func TestRunDoctor(t *testing.T) {
	t.Parallel()

	tools := []pdfproc.Tool{
		{Name: "pdftotext", Purpose: "structural text extraction", Path: "/usr/bin/pdftotext"},
		{Name: "tesseract", Purpose: "OCR", Err: errors.New("not found")},
	}
	var buf bytes.Buffer
	err := runDoctor(&buf, tools, ocrEnabled)
	if err == nil || !strings.Contains(err.Error(), "1 requirement") {
		t.Fatalf("runDoctor() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "/usr/bin/pdftotext") || !strings.Contains(out, "missing") {
		t.Fatalf("report = %q", out)
	}

	tools[1].Err = nil
	tools[1].Path = "/usr/bin/tesseract"
	if err := runDoctor(&buf, tools, ocrEnabled); err != nil {
		t.Fatalf("runDoctor() with everything present = %v", err)
	}
	if err := runDoctor(&buf, tools, "disabled"); err == nil {
		t.Fatalf("expected error when OCR is not compiled in")
	}
}
