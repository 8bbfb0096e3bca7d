package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"pagetext/internal/util"
	"pagetext/pkg/ocr"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/reconcile"
)

type documentProcessor interface {
	Process(ctx context.Context, locator string) (pdfproc.Document, error)
}

// buildProcessor is replaced in tests.
var buildProcessor = func(s pdfproc.Settings, logger *slog.Logger) (documentProcessor, io.Closer, error) {
	p, engine, err := pdfproc.NewFromSettings(s, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, engine, nil
}

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <locator>...",
		Short: "Extract reconciled text from each page of one or more PDFs",
		Long: `Extract fetches each PDF (http(s) URL, file:// URL or local path), renders
its pages, and prints one reconciled text per page.

A page keeps its embedded text when that text is longer than
--min-extracted-runes; otherwise the OCR text wins when it is longer, and
both are merged under an "--- OCR TEXT ---" marker when neither wins.

A document that cannot be fetched or rendered is reported and skipped. The
command fails only when no document was processed.

Examples:
  pagetext extract report.pdf
  pagetext extract --json --workers 4 https://example.com/scan.pdf
  pagetext extract --lang eng+deu --psm 3 --confidence scan.pdf
  pagetext extract --no-ocr a.pdf b.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExtractCmd,
	}

	defaults := pdfproc.DefaultSettings()
	cmd.Flags().BoolP("json", "j", false, "Output JSON instead of plain text")
	cmd.Flags().IntP("workers", "w", defaults.Workers, "Pages processed concurrently")
	cmd.Flags().Float64("dpi", defaults.DPI, "Rasterization resolution")
	cmd.Flags().StringP("lang", "l", ocr.DefaultLanguage, "Tesseract languages, e.g. eng+deu")
	cmd.Flags().Int("psm", ocr.DefaultPageSegMode, "Tesseract page segmentation mode (0-13)")
	cmd.Flags().Int("oem", ocr.DefaultEngineMode, "Tesseract OCR engine mode (0-3)")
	cmd.Flags().String("whitelist", ocr.DefaultWhitelist, "Characters OCR may emit; empty allows all")
	cmd.Flags().Bool("no-ocr", false, "Use embedded text only")
	cmd.Flags().Bool("confidence", false, "Score each page's OCR confidence")
	cmd.Flags().Int("min-extracted-runes", reconcile.DefaultMinExtractedRunes,
		"Embedded text longer than this is kept without consulting OCR")
	cmd.Flags().String("pdftotext", "", "Path to the pdftotext binary")
	cmd.Flags().String("tessdata", "", "Tesseract tessdata directory")

	return cmd
}

func runExtractCmd(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromFlags(cmd)
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: util.ParseLevel(level)}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc, closer, err := buildProcessor(settings, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	return runExtract(ctx, proc, args, cmd.OutOrStdout(), asJSON, logger)
}

func settingsFromFlags(cmd *cobra.Command) (pdfproc.Settings, error) {
	s := pdfproc.DefaultSettings()
	flags := cmd.Flags()
	var err error
	if s.Workers, err = flags.GetInt("workers"); err != nil {
		return s, err
	}
	if s.DPI, err = flags.GetFloat64("dpi"); err != nil {
		return s, err
	}
	lang, err := flags.GetString("lang")
	if err != nil {
		return s, err
	}
	s.OCR.Languages = ocr.ParseLanguages(lang)
	if s.OCR.PageSegMode, err = flags.GetInt("psm"); err != nil {
		return s, err
	}
	if s.OCR.EngineMode, err = flags.GetInt("oem"); err != nil {
		return s, err
	}
	if s.OCR.Whitelist, err = flags.GetString("whitelist"); err != nil {
		return s, err
	}
	if s.OCR.TessdataPrefix, err = flags.GetString("tessdata"); err != nil {
		return s, err
	}
	noOCR, err := flags.GetBool("no-ocr")
	if err != nil {
		return s, err
	}
	s.OCREnabled = !noOCR
	if s.Confidence, err = flags.GetBool("confidence"); err != nil {
		return s, err
	}
	if s.MinExtractedRunes, err = flags.GetInt("min-extracted-runes"); err != nil {
		return s, err
	}
	if s.PdftotextCommand, err = flags.GetString("pdftotext"); err != nil {
		return s, err
	}
	if s.Workers < 1 {
		return s, errors.New("--workers must be at least 1")
	}
	if s.DPI <= 0 {
		return s, errors.New("--dpi must be positive")
	}
	if s.MinExtractedRunes < 1 {
		return s, errors.New("--min-extracted-runes must be at least 1")
	}
	return s, nil
}

type pageOutput struct {
	Index          int     `json:"index"`
	Text           string  `json:"text"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence,omitempty"`
	ExtractedRunes int     `json:"extractedRunes"`
	OCRRunes       int     `json:"ocrRunes"`
	ExtractError   string  `json:"extractError,omitempty"`
	OCRError       string  `json:"ocrError,omitempty"`
}

type documentOutput struct {
	Locator string       `json:"locator"`
	Error   string       `json:"error,omitempty"`
	Pages   []pageOutput `json:"pages,omitempty"`
}

func runExtract(ctx context.Context, proc documentProcessor, locators []string, w io.Writer, asJSON bool, logger *slog.Logger) error {
	results := make([]documentOutput, 0, len(locators))
	succeeded := 0
	for _, locator := range locators {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := proc.Process(ctx, locator)
		if err != nil {
			logger.Error("document failed", "locator", locator, "err", err)
			results = append(results, documentOutput{Locator: locator, Error: err.Error()})
			continue
		}
		succeeded++
		results = append(results, toOutput(doc))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else if err := writeText(w, results); err != nil {
		return err
	}

	if succeeded == 0 {
		return errors.New("no documents were processed")
	}
	return nil
}

func toOutput(doc pdfproc.Document) documentOutput {
	out := documentOutput{Locator: doc.Locator, Pages: make([]pageOutput, 0, len(doc.Pages))}
	for _, p := range doc.Pages {
		po := pageOutput{
			Index:          p.Index + 1,
			Text:           p.Text,
			Source:         string(p.Source),
			Confidence:     p.Confidence,
			ExtractedRunes: utf8.RuneCountInString(strings.TrimSpace(p.Extracted.Text)),
			OCRRunes:       utf8.RuneCountInString(strings.TrimSpace(p.OCR.Text)),
			ExtractError:   p.Extracted.Reason(),
		}
		if !errors.Is(p.OCR.Err, ocr.ErrOCRNotEnabled) {
			po.OCRError = p.OCR.Reason()
		}
		out.Pages = append(out.Pages, po)
	}
	return out
}

func writeText(w io.Writer, docs []documentOutput) error {
	for _, d := range docs {
		if d.Error != "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "==> %s <==\n", d.Locator); err != nil {
			return err
		}
		for _, p := range d.Pages {
			if _, err := fmt.Fprintf(w, "--- page %d (%s) ---\n%s\n", p.Index, p.Source, p.Text); err != nil {
				return err
			}
		}
	}
	return nil
}
