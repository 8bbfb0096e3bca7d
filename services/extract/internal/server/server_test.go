package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pagetext/internal/ratelimit"
	"pagetext/internal/servicetoken"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/queue"
	"pagetext/pkg/reconcile"
	"pagetext/pkg/store"
	"pagetext/services/extract/internal/app"
)

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, locator string) (pdfproc.Document, error) {
	return pdfproc.Document{Locator: locator, Pages: []pdfproc.Page{{
		Index:     0,
		Extracted: pdfproc.Ok("hello"),
		Text:      "hello",
		Source:    reconcile.SourceExtracted,
	}}}, nil
}

type testEnv struct {
	server *Server
	app    *app.App
	signer *servicetoken.Signer
}

func newTestEnv(t *testing.T, withAuth bool, limit int) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redisSrv := miniredis.RunT(t)
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{Addr: redisSrv.Addr(), Stream: "test:extract", Logger: logger})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	core, err := app.New(app.Config{Queue: q, Store: store.NewMemoryStore(), Processor: stubProcessor{}, Logger: logger})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	env := testEnv{app: core}
	cfg := Config{App: core}
	if withAuth {
		privatePath, publicPath := writeKeyPair(t)
		env.signer, err = servicetoken.NewSigner(servicetoken.SignerOptions{PrivateKeyPath: privatePath, Issuer: "gateway"})
		if err != nil {
			t.Fatalf("new signer: %v", err)
		}
		cfg.Verifier, err = servicetoken.NewVerifier(servicetoken.VerifierOptions{
			PublicKeyPath:  publicPath,
			Audience:       "extract",
			AllowedIssuers: []string{"gateway"},
		})
		if err != nil {
			t.Fatalf("new verifier: %v", err)
		}
	}
	if limit > 0 {
		cfg.Limiter, err = ratelimit.NewFixedWindowLimiter(ratelimit.Config{Addr: redisSrv.Addr(), Limit: limit, Window: time.Minute})
		if err != nil {
			t.Fatalf("new limiter: %v", err)
		}
	}
	env.server = New(cfg)
	return env
}

func (e testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if e.signer != nil {
		token, err := e.signer.Sign("extract")
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false, 0)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing middleware headers: %v", rec.Header())
	}
}

func TestCreateAndGetJob(t *testing.T) {
	env := newTestEnv(t, true, 0)
	rec := env.do(t, http.MethodPost, "/extract/jobs", `{"locator":"https://example.com/a.pdf"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var job queue.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || job.Status != queue.StatusQueued || job.Locator != "https://example.com/a.pdf" {
		t.Fatalf("job = %+v", job)
	}

	rec = env.do(t, http.MethodGet, "/extract/jobs/"+job.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get job status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/extract/jobs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rec.Code)
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, false, 0)
	for _, body := range []string{`not json`, `{"locator":""}`, `{"locator":"/etc/passwd"}`} {
		rec := env.do(t, http.MethodPost, "/extract/jobs", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" || resp.RequestID == "" {
			t.Fatalf("error body = %s", rec.Body.String())
		}
	}
}

func TestRoutesRequireInternalToken(t *testing.T) {
	env := newTestEnv(t, true, 0)
	req := httptest.NewRequest(http.MethodPost, "/extract/jobs", bytes.NewBufferString(`{"locator":"https://example.com/a.pdf"}`))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateJobRateLimited(t *testing.T) {
	env := newTestEnv(t, false, 1)
	body := `{"locator":"https://example.com/a.pdf"}`
	if rec := env.do(t, http.MethodPost, "/extract/jobs", body); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/extract/jobs", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestDocumentRoutes(t *testing.T) {
	env := newTestEnv(t, false, 0)
	if err := env.app.Process(context.Background(), queue.Job{ID: "doc-1", Locator: "https://example.com/a.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/extract/documents/doc-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get document status = %d", rec.Code)
	}
	var doc struct {
		Status string `json:"status"`
		Pages  []struct {
			Text   string `json:"text"`
			Source string `json:"source"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Status != "ready" || len(doc.Pages) != 1 || doc.Pages[0].Text != "hello" || doc.Pages[0].Source != "extracted" {
		t.Fatalf("document = %+v", doc)
	}

	rec = env.do(t, http.MethodGet, "/extract/documents?limit=10", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("list status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/extract/documents?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/extract/documents/doc-1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/extract/documents/doc-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/extract/documents/doc-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, false, 0)
	if rec := env.do(t, http.MethodPut, "/extract/jobs", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func writeKeyPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	if err := os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}), 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}
