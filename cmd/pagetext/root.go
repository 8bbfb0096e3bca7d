package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pagetext.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagetext",
		Short: "Extract per-page text from PDFs with OCR fallback",
		Long: `pagetext renders every page of a PDF, reads the text embedded in the file,
runs OCR on the rendered page and keeps whichever text is more complete.

OCR needs a binary built with -tags ocr and Tesseract installed.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(NewExtractCmd())
	cmd.AddCommand(NewDoctorCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
