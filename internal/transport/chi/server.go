package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/domain/detail"
	"github.com/pathology-bites/slidedex/internal/domain/slide"
	logpkg "github.com/pathology-bites/slidedex/internal/logger"
	cataloguc "github.com/pathology-bites/slidedex/internal/usecase/catalog"
	healthuc "github.com/pathology-bites/slidedex/internal/usecase/health"
)

// Route paths.
const (
	SearchIndexPath = "/api/virtual-slides/search-index"
	DetailsPath     = "/api/virtual-slides/details"
	HealthPath      = "/health"
	MetricsPath     = "/metrics"
)

// Client-facing failure messages.
const (
	msgIndexFailed   = "Failed to fetch virtual slides metadata"
	msgDetailsFailed = "Failed to fetch slide details"
	msgInvalidJSON   = "Invalid JSON body"
	msgInvalidParams = "Invalid query parameters"
)

const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
// failMsg is the endpoint-level message used for upstream failures.
type errorHandler func(w http.ResponseWriter, err error, failMsg string) bool

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// IndexResponse is the search-index body.
type IndexResponse struct {
	Data     []slide.IndexEntry      `json:"data"`
	Metadata cataloguc.IndexMetadata `json:"metadata"`
}

// DetailsMetadata summarizes a detail lookup.
type DetailsMetadata struct {
	Requested   int      `json:"requested"`
	Found       int      `json:"found"`
	NotFound    int      `json:"notFound"`
	NotFoundIDs []string `json:"notFoundIds,omitempty"`
}

// DetailsResponse is the details body.
type DetailsResponse struct {
	Data     []slide.Slide   `json:"data"`
	Metadata DetailsMetadata `json:"metadata"`
}

// DetailsRequest is the POST details body.
type DetailsRequest struct {
	IDs []string `json:"ids"`
}

// HealthResponse is the health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Options tunes response headers and batch caps.
type Options struct {
	CacheControl string
	MaxGetIDs    int
	MaxPostIDs   int
}

// DefaultOptions mirrors the canonical deployment: 24h max-age, 30min stale-while-revalidate.
func DefaultOptions() Options {
	return Options{
		CacheControl: CacheControl(86400, 1800),
		MaxGetIDs:    detail.MaxGetIDs,
		MaxPostIDs:   detail.MaxPostIDs,
	}
}

// CacheControl formats a public Cache-Control header value.
func CacheControl(maxAgeSec, staleWhileRevalidateSec int) string {
	v := fmt.Sprintf("public, max-age=%d", maxAgeSec)
	if staleWhileRevalidateSec > 0 {
		v += fmt.Sprintf(", stale-while-revalidate=%d", staleWhileRevalidateSec)
	}
	return v
}

// Server serves the slide index, slide details, health and metrics.
type Server struct {
	catalog       *cataloguc.Service
	health        *healthuc.Service
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	catalog *cataloguc.Service,
	health *healthuc.Service,
	opts Options,
	logger *zap.Logger,
) *Server {
	def := DefaultOptions()
	if opts.CacheControl == "" {
		opts.CacheControl = def.CacheControl
	}
	if opts.MaxGetIDs <= 0 {
		opts.MaxGetIDs = def.MaxGetIDs
	}
	if opts.MaxPostIDs <= 0 {
		opts.MaxPostIDs = def.MaxPostIDs
	}

	s := &Server{
		catalog: catalog,
		health:  health,
		opts:    opts,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		invalidRequestHandler,
		sentinelHandler(domain.ErrStorageUnavailable, http.StatusInternalServerError),
		sentinelHandler(domain.ErrMalformedDataset, http.StatusInternalServerError),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound),
	}
	return s
}

// Register mounts every route on r.
func (s *Server) Register(r chi.Router) {
	r.Get(SearchIndexPath, s.GetSearchIndex)
	r.Get(DetailsPath, s.GetDetails)
	r.Post(DetailsPath, s.PostDetails)
	r.Get(HealthPath, s.HealthCheck)
	r.Method(http.MethodGet, MetricsPath, promhttp.Handler())
}

// GetSearchIndex handles GET /api/virtual-slides/search-index.
func (s *Server) GetSearchIndex(w http.ResponseWriter, r *http.Request) {
	var c slide.Criteria
	q := r.URL.Query()
	for name, dest := range map[string]*string{
		"search":     &c.Search,
		"repository": &c.Repository,
		"category":   &c.Category,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidParams, err.Error())
			return
		}
	}

	res, err := s.catalog.SearchIndex(r.Context(), c)
	if err != nil {
		s.handleDomainError(w, r, err, msgIndexFailed)
		return
	}

	logpkg.FromContext(r.Context()).Debug("Search index served",
		zap.Int("total_slides", res.Metadata.TotalSlides),
		zap.String("size_reduction", res.Metadata.SizeReduction),
		zap.Int64("total_ms", res.Metadata.Performance.TotalMs),
	)

	w.Header().Set("Cache-Control", s.opts.CacheControl)
	writeJSON(w, http.StatusOK, IndexResponse{Data: res.Entries, Metadata: res.Metadata})
}

// GetDetails handles GET /api/virtual-slides/details?id=…|ids=….
func (s *Server) GetDetails(w http.ResponseWriter, r *http.Request) {
	var (
		id  string
		ids []string
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "id", q, &id); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidParams, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", false, false, "ids", q, &ids); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidParams, err.Error())
		return
	}

	s.serveDetails(w, r, id, ids, s.opts.MaxGetIDs)
}

// PostDetails handles POST /api/virtual-slides/details.
func (s *Server) PostDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON, err.Error())
		return
	}

	s.serveDetails(w, r, "", req.IDs, s.opts.MaxPostIDs)
}

func (s *Server) serveDetails(w http.ResponseWriter, r *http.Request, id string, ids []string, limit int) {
	req, err := detail.ParseRequest(id, ids, limit)
	if err != nil {
		s.handleDomainError(w, r, err, msgDetailsFailed)
		return
	}

	res, err := s.catalog.Details(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err, msgDetailsFailed)
		return
	}

	w.Header().Set("Cache-Control", s.opts.CacheControl)
	writeJSON(w, http.StatusOK, DetailsResponse{
		Data: res.Found,
		Metadata: DetailsMetadata{
			Requested:   req.Len(),
			Found:       len(res.Found),
			NotFound:    len(res.NotFoundIDs),
			NotFoundIDs: res.NotFoundIDs,
		},
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// invalidRequestHandler returns the client-facing message of an InvalidRequestError.
func invalidRequestHandler(w http.ResponseWriter, err error, _ string) bool {
	var ire *domain.InvalidRequestError
	if errors.As(err, &ire) {
		writeError(w, http.StatusBadRequest, ire.Message, "")
		return true
	}
	if errors.Is(err, domain.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error(), "")
		return true
	}
	return false
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, failMsg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, failMsg, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, failMsg string) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err, failMsg) {
			log.Warn("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, failMsg, "internal error")
}
