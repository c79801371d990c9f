package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appocr "github.com/bryanwahyu/rx-ocr/internal/application/ocr"
	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/middleware"
)

// OutcomeHeader tells callers which branch produced extracted_text.
const OutcomeHeader = "X-OCR-Outcome"

type Options struct {
	Logger         *zap.Logger
	CORSOrigins    []string
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	HealthCheckers map[string]middleware.HealthChecker
	// HistoryEnabled mounts GET /ocr/extractions.
	HistoryEnabled bool
}

type Router struct {
	ocrSvc *appocr.Service
	logger *zap.Logger
}

func NewRouter(ocrSvc *appocr.Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{ocrSvc: ocrSvc, logger: logger}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(middleware.Logging(logger))
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{OutcomeHeader},
		MaxAge:         300,
	}))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimit(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler)

	mux.Post("/ocr", r.wrap(r.handleOCR))
	if opts.HistoryEnabled {
		mux.Get("/ocr/extractions", r.wrap(r.handleHistory))
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, domain.ErrBadRequest) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": badRequestMessage(err)})
				return
			}
			r.logger.Error("request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// badRequest carries the client-facing message for a 400.
type badRequest struct{ msg string }

func (e badRequest) Error() string        { return e.msg }
func (e badRequest) Is(target error) bool { return target == domain.ErrBadRequest }

func badRequestMessage(err error) string {
	var br badRequest
	if errors.As(err, &br) {
		return br.msg
	}
	return err.Error()
}

// POST /ocr
// Body: {"image_url": "<url>"}
// Only the key's presence is checked; the URL itself is handed to the fetcher as is.
func (r *Router) handleOCR(w http.ResponseWriter, req *http.Request) error {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body == nil {
		return badRequest{msg: "invalid request body"}
	}
	raw, ok := body["image_url"]
	if !ok {
		return badRequest{msg: "image_url missing"}
	}
	imageURL, err := decodeImageURL(raw)
	if err != nil {
		return badRequest{msg: "image_url must be a string"}
	}

	res, err := r.ocrSvc.Extract(req.Context(), chimw.GetReqID(req.Context()), imageURL)
	if err != nil {
		return err
	}

	w.Header().Set(OutcomeHeader, res.Outcome.String())
	writeJSON(w, http.StatusOK, map[string]string{"extracted_text": res.WireText()})
	return nil
}

// decodeImageURL accepts a JSON string; null is treated as an empty URL so
// the fetch fails downstream like any other unusable address.
func decodeImageURL(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decode image_url: %w", err)
	}
	return s, nil
}

// GET /ocr/extractions?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	page, size := middleware.Pagination(req)
	list, err := r.ocrSvc.History(req.Context(), page, size)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Extraction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": size,
		"items":     list,
	})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
