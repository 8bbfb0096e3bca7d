package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and OCR support",
		Long: `Doctor reports whether pdftotext and tesseract are on PATH and whether
this binary was built with OCR support. It exits non-zero when anything
is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), pdfproc.CheckTools(), ocrSupport())
		},
	}
}

func runDoctor(w io.Writer, tools []pdfproc.Tool, ocrStatus string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	missing := 0
	for _, t := range tools {
		status, detail := "ok", t.Path
		if !t.Available() {
			status, detail = "missing", t.Purpose
			missing++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, status, detail)
	}
	fmt.Fprintf(tw, "ocr build\t%s\t\n", ocrStatus)
	if err := tw.Flush(); err != nil {
		return err
	}
	if ocrStatus != ocrEnabled {
		missing++
	}
	if missing > 0 {
		return fmt.Errorf("%d requirement(s) missing", missing)
	}
	return nil
}

const ocrEnabled = "enabled"

// ocrSupport reports whether the binary links libtesseract.
func ocrSupport() string {
	engine, err := ocr.NewTesseract(ocr.DefaultOptions())
	if errors.Is(err, ocr.ErrOCRNotEnabled) {
		return "disabled (rebuild with -tags ocr)"
	}
	if err != nil {
		return "error: " + err.Error()
	}
	_ = engine.Close()
	return ocrEnabled
}
