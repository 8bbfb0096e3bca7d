package pdfproc

// Result is the outcome of one text source for one page. A failed Result has
// empty Text and a non-nil Err; callers decide whether empty-on-failure is
// acceptable.
type Result struct {
	Text string
	Err  error
}

// Ok wraps successfully extracted text.
func Ok(text string) Result {
	return Result{Text: text}
}

// Failed records why a source produced no text.
func Failed(err error) Result {
	return Result{Err: err}
}

// Failed reports whether the source failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Reason returns the failure message, or "" for a successful Result.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
