// Package pdfproc turns a PDF locator into per-page images and text.
//
// For every page two candidates are produced independently: structural text
// pulled from the PDF's text objects, and OCR text recognized on the
// rasterized page. The reconcile package decides which of them, or both, is
// returned for the page.
package pdfproc
