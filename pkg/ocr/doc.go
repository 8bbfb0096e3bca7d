// Package ocr recognizes text on rasterized PDF pages.
//
// The Tesseract engine wraps gosseract and is compiled only with the "ocr"
// build tag, since it links against libtesseract:
//
//	go build -tags ocr ./...
//
// Without the tag NewTesseract returns ErrOCRNotEnabled and callers degrade
// to structural text only. Image preprocessing is pure Go and always
// available.
package ocr
