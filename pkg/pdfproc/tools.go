package pdfproc

import "os/exec"

// Tool is an external binary the pipeline can use.
type Tool struct {
	Name    string
	Purpose string
	Path    string
	Err     error
}

// Available reports whether the tool was found on PATH.
func (t Tool) Available() bool { return t.Err == nil }

// CheckTools looks up the external binaries. Rasterization goes through
// MuPDF bindings, so none of them is strictly required.
func CheckTools() []Tool {
	tools := []Tool{
		{Name: "pdftotext", Purpose: "structural text extraction (poppler)"},
		{Name: "tesseract", Purpose: "OCR language data and CLI (libtesseract is linked with -tags ocr)"},
	}
	for i := range tools {
		tools[i].Path, tools[i].Err = exec.LookPath(tools[i].Name)
	}
	return tools
}
