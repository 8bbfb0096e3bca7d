package pdfproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultMaxDocumentBytes caps downloaded and local documents.
const DefaultMaxDocumentBytes = 64 << 20

// ErrFetch wraps every failure to obtain document bytes.
var ErrFetch = errors.New("fetch document")

// DocumentFetcher resolves a locator to PDF bytes.
type DocumentFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Fetcher loads documents from HTTP(S) URLs and, when allowed, from the
// local filesystem (bare paths or file:// URLs).
type Fetcher struct {
	Client     *http.Client
	MaxBytes   int64
	AllowLocal bool
}

// NewFetcher returns a Fetcher with a 60s HTTP timeout and local paths allowed.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: 60 * time.Second},
		MaxBytes:   DefaultMaxDocumentBytes,
		AllowLocal: true,
	}
}

// Fetch returns the document bytes. Failures are not retried.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrFetch)
	}
	if u, err := url.Parse(locator); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.fetchHTTP(ctx, locator)
		case "file":
			return f.readLocal(u.Path)
		case "":
		default:
			// A single letter is a Windows drive, not a scheme.
			if len(u.Scheme) > 1 {
				return nil, fmt.Errorf("%w: unsupported scheme %q", ErrFetch, u.Scheme)
			}
		}
	}
	return f.readLocal(locator)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: download failed: %s", ErrFetch, resp.Status)
	}
	return f.readAll(resp.Body)
}

func (f *Fetcher) readLocal(path string) ([]byte, error) {
	if !f.AllowLocal {
		return nil, fmt.Errorf("%w: local paths are not allowed", ErrFetch)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer file.Close()
	return f.readAll(file)
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDocumentBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrFetch, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrFetch)
	}
	return data, nil
}
