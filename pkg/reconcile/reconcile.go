// Package reconcile decides, per page, how structural PDF text and OCR text
// are combined into the text that is returned for that page.
package reconcile

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinExtractedRunes is the trimmed length above which structural
	// text is returned as-is.
	DefaultMinExtractedRunes = 100
	// OCRSeparator joins structural and OCR text when both are kept.
	OCRSeparator = "\n\n--- OCR TEXT ---\n"
)

// Source names the candidate a Decision was built from.
type Source string

const (
	SourceExtracted Source = "extracted"
	SourceOCR       Source = "ocr"
	SourceMerged    Source = "merged"
	SourceNone      Source = "none"
)

// Decision is the reconciled text for one page.
type Decision struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Policy holds the tunable threshold of the reconciliation rules.
type Policy struct {
	MinExtractedRunes int
}

// DefaultPolicy returns the policy with the stock threshold.
func DefaultPolicy() Policy {
	return Policy{MinExtractedRunes: DefaultMinExtractedRunes}
}

// Combine reconciles one page with the default policy.
func Combine(extracted, ocr string) string {
	return DefaultPolicy().Reconcile(extracted, ocr).Text
}

// Reconcile applies the rules in order:
//  1. long enough structural text wins unchanged;
//  2. strictly longer OCR text wins;
//  3. both non-empty are joined with OCRSeparator;
//  4. otherwise the non-empty one, or "".
//
// Lengths are rune counts after trimming surrounding whitespace. The inputs
// themselves are returned untrimmed.
func (p Policy) Reconcile(extracted, ocr string) Decision {
	threshold := p.MinExtractedRunes
	if threshold <= 0 {
		threshold = DefaultMinExtractedRunes
	}
	extractedLen := trimmedLen(extracted)
	ocrLen := trimmedLen(ocr)

	switch {
	case extractedLen > threshold:
		return Decision{Text: extracted, Source: SourceExtracted}
	case ocrLen > extractedLen:
		return Decision{Text: ocr, Source: SourceOCR}
	case extractedLen > 0 && ocrLen > 0:
		return Decision{Text: extracted + OCRSeparator + ocr, Source: SourceMerged}
	case extractedLen > 0:
		return Decision{Text: extracted, Source: SourceExtracted}
	case ocrLen > 0:
		return Decision{Text: ocr, Source: SourceOCR}
	default:
		return Decision{Text: "", Source: SourceNone}
	}
}

func trimmedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
