package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appocr "github.com/bryanwahyu/rx-ocr/internal/application/ocr"
	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/infra/ai/gemini"
	"github.com/bryanwahyu/rx-ocr/internal/infra/fetch"
	"github.com/bryanwahyu/rx-ocr/internal/middleware"
)

var prescriptionBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 'R', 'x', 0x00, 0x10}

// newOrigin serves the image the relay fetches.
func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(prescriptionBytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newGemini fakes generateContent and records the inline image it received.
func newGemini(t *testing.T, status int, body string, gotImage *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Contents []struct {
				Parts []struct {
					InlineData *struct {
						Data string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("upstream got invalid json: %v", err)
		}
		if gotImage != nil && len(payload.Contents) == 1 && len(payload.Contents[0].Parts) == 2 && payload.Contents[0].Parts[1].InlineData != nil {
			*gotImage = payload.Contents[0].Parts[1].InlineData.Data
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(upstreamURL string, opts Options) http.Handler {
	svc := &appocr.Service{
		Fetcher:   fetch.NewHTTPFetcher(0),
		Extractor: gemini.NewClient("test-key", "gemini-2.0-flash", upstreamURL),
		Logger:    zap.NewNop(),
	}
	return NewRouter(svc, opts)
}

func postOCR(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v (%q)", err, rec.Body.String())
	}
	return out
}

func TestOCRSuccessTrimsText(t *testing.T) {
	origin := newOrigin(t)
	var sent string
	upstream := newGemini(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"  Amoxicillin 500mg  "}]}}]}`, &sent)
	h := newTestRouter(upstream.URL, Options{})

	rec := postOCR(t, h, `{"image_url": "`+origin.URL+`/rx.jpg"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec); got["extracted_text"] != "Amoxicillin 500mg" || len(got) != 1 {
		t.Fatalf("unexpected body: %v", got)
	}
	if rec.Header().Get(OutcomeHeader) != "extracted" {
		t.Fatalf("unexpected outcome header: %q", rec.Header().Get(OutcomeHeader))
	}

	decoded, err := base64.StdEncoding.DecodeString(sent)
	if err != nil || string(decoded) != string(prescriptionBytes) {
		t.Fatalf("upstream image does not round trip: %v %v", decoded, err)
	}
}

func TestOCRMissingImageURL(t *testing.T) {
	h := newTestRouter("http://unused.invalid", Options{})

	for _, body := range []string{`{}`, `{"imageUrl": "https://example.com/rx.jpg"}`, `{"url": null}`} {
		rec := postOCR(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if got := decodeBody(t, rec); got["error"] != "image_url missing" || len(got) != 1 {
			t.Fatalf("%s: unexpected body: %v", body, got)
		}
	}
}

func TestOCRInvalidBody(t *testing.T) {
	h := newTestRouter("http://unused.invalid", Options{})

	for _, body := range []string{``, `not json`, `null`, `["image_url"]`} {
		rec := postOCR(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", body, rec.Code)
		}
		if got := decodeBody(t, rec); got["error"] != "invalid request body" {
			t.Fatalf("%q: unexpected body: %v", body, got)
		}
	}
}

func TestOCRUpstreamErrorIsWrappedIn200(t *testing.T) {
	origin := newOrigin(t)
	upstream := newGemini(t, http.StatusForbidden, "Invalid API key", nil)
	h := newTestRouter(upstream.URL, Options{})

	rec := postOCR(t, h, `{"image_url": "`+origin.URL+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec); got["extracted_text"] != "Gemini Error: Invalid API key" {
		t.Fatalf("unexpected body: %v", got)
	}
	if rec.Header().Get(OutcomeHeader) != "upstream_error" {
		t.Fatalf("unexpected outcome header: %q", rec.Header().Get(OutcomeHeader))
	}
}

func TestOCRUnexpectedShapeFallsBack(t *testing.T) {
	origin := newOrigin(t)
	upstream := newGemini(t, http.StatusOK, `{"candidates":[]}`, nil)
	h := newTestRouter(upstream.URL, Options{})

	rec := postOCR(t, h, `{"image_url": "`+origin.URL+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec); got["extracted_text"] != "No text extracted." {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestOCRFetchFailureIs500(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()
	upstream := newGemini(t, http.StatusOK, `{}`, nil)
	h := newTestRouter(upstream.URL, Options{})

	rec := postOCR(t, h, `{"image_url": "`+deadURL+`/rx.jpg"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestOCRUpstreamTransportFailureHidesDetails(t *testing.T) {
	origin := newOrigin(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	core, logs := observer.New(zap.DebugLevel)
	svc := &appocr.Service{
		Fetcher:   fetch.NewHTTPFetcher(0),
		Extractor: gemini.NewClient("SECRET-KEY-123", "gemini-2.0-flash", deadURL),
		Logger:    zap.New(core),
	}
	h := NewRouter(svc, Options{Logger: zap.New(core)})

	rec := postOCR(t, h, `{"image_url": "`+origin.URL+`"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected generic 500 body, got %q", body)
	}

	var sawFailure bool
	for _, entry := range logs.All() {
		line := fmt.Sprintf("%s %v", entry.Message, entry.ContextMap())
		if strings.Contains(line, "SECRET-KEY-123") {
			t.Fatalf("log entry leaks api key: %s", line)
		}
		if entry.Message == "request failed" {
			sawFailure = true
			if !strings.Contains(line, "call gemini") {
				t.Fatalf("expected failure detail in log, got %s", line)
			}
		}
	}
	if !sawFailure {
		t.Fatal("expected the failure to be logged")
	}
}

func TestOCREmptyImageURLReachesFetcher(t *testing.T) {
	upstream := newGemini(t, http.StatusOK, `{}`, nil)
	h := newTestRouter(upstream.URL, Options{})

	rec := postOCR(t, h, `{"image_url": ""}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected fetch of empty url to fail with 500, got %d", rec.Code)
	}
}

type memRepo struct{ items []*domain.Extraction }

func (m *memRepo) Save(ctx context.Context, e *domain.Extraction) error {
	m.items = append([]*domain.Extraction{e}, m.items...)
	return nil
}

func (m *memRepo) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Extraction, error) {
	start := (page - 1) * pageSize
	if start >= len(m.items) {
		return nil, nil
	}
	end := min(start+pageSize, len(m.items))
	return m.items[start:end], nil
}

func TestHistoryEndpoint(t *testing.T) {
	origin := newOrigin(t)
	upstream := newGemini(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Paracetamol"}]}}]}`, nil)
	repo := &memRepo{}
	svc := &appocr.Service{
		Fetcher:   fetch.NewHTTPFetcher(0),
		Extractor: gemini.NewClient("k", "", upstream.URL),
		Audit:     repo,
	}
	h := NewRouter(svc, Options{HistoryEnabled: true})

	if rec := postOCR(t, h, `{"image_url": "`+origin.URL+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("ocr failed: %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ocr/extractions?page=1&page_size=500", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Page     int                  `json:"page"`
		PageSize int                  `json:"page_size"`
		Items    []*domain.Extraction `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if page.PageSize != 100 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Text != "Paracetamol" || page.Items[0].Outcome != "extracted" || page.Items[0].Provider != "Gemini" {
		t.Fatalf("unexpected item: %+v", page.Items[0])
	}
}

func TestHistoryNotMountedByDefault(t *testing.T) {
	h := newTestRouter("http://unused.invalid", Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ocr/extractions", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected history to be unavailable, got %d", rec.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestRouter("http://unused.invalid", Options{
		CORSOrigins: []string{"https://zobot.example"},
		HealthCheckers: map[string]middleware.HealthChecker{
			"archive": middleware.CheckerFunc(func(ctx context.Context) error { return nil }),
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/ocr", nil)
	req.Header.Set("Origin", "https://zobot.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://zobot.example" {
		t.Fatalf("expected CORS allow origin, got %v", rec.Header())
	}
}

func TestRateLimitedRouter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestRouter("http://unused.invalid", Options{RateLimiter: middleware.NewRateLimiter(ctx, 1, 0)})

	postOCR(t, h, `{}`)
	rec := postOCR(t, h, `{}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestServerRoundTrip(t *testing.T) {
	origin := newOrigin(t)
	upstream := newGemini(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Metformin\n"}]}}]}`, nil)
	srv := httptest.NewServer(newTestRouter(upstream.URL, Options{}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(srv.URL+"/ocr", "application/json", strings.NewReader(`{"image_url":"`+origin.URL+`"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if out["extracted_text"] != "Metformin" {
		t.Fatalf("unexpected body: %v", out)
	}
}
