// Package main provides the pagetext CLI.
//
// pagetext extracts per-page text from PDF documents, combining the text
// embedded in the file with OCR of the rendered page.
//
// Usage:
//
//	pagetext extract <locator>...
//	pagetext doctor
//
// See --help for all available options.
package main

func main() {
	Execute()
}
