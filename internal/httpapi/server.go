// Package httpapi serves the client operations over HTTP with chi.
package httpapi

import (
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clientcore/internal/core"
	"clientcore/internal/csvcodec"
	"clientcore/internal/errs"
	"clientcore/pkg/domain"
)

const (
	maxJSONBodySize   = 1 << 20  // 1MB
	maxImportBodySize = 16 << 20 // 16MB
)

// Deps are the collaborators of the handler. Gatherer and Logger are optional.
type Deps struct {
	Service  *core.Service
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewHandler returns the API router.
func NewHandler(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: deps.Service, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", h.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/clients", h.listClients)
		r.Post("/clients", h.createClient)
		r.Get("/clients.csv", h.exportCSV)
		r.Post("/clients/import", h.importCSV)
		r.Get("/clients/{id}", h.getClient)
		r.Put("/clients/{id}", h.replaceClient)
		r.Delete("/clients/{id}", h.deleteClient)
		r.Post("/clients/{id}/stage", h.moveClient)
		r.Get("/pipeline", h.pipeline)
		r.Get("/exports", h.listExports)
		r.Post("/exports", h.createExport)
		r.Get("/exports/{name}", h.getExport)
		r.Get("/exports/{name}/link", h.exportLink)
		r.Delete("/exports/{name}", h.deleteExport)
	})
	return r
}

type handlers struct {
	svc *core.Service
	log *zap.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": h.svc.Store().Len()})
}

func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	stage := domain.Stage("")
	if raw := r.URL.Query().Get("stage"); raw != "" {
		st, ok := domain.ParseStage(raw)
		if !ok {
			httpError(w, http.StatusBadRequest, errs.InvalidArgument, "unknown stage %q", raw)
			return
		}
		stage = st
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": h.svc.List(stage, r.URL.Query().Get("q"))})
}

func (h *handlers) createClient(w http.ResponseWriter, r *http.Request) {
	var draft domain.ClientDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	rec, err := h.svc.Create(r.Context(), draft)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/clients/%d", rec.ID))
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handlers) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) replaceClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var draft domain.ClientDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	rec, err := h.svc.Replace(r.Context(), draft.WithID(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Stage string `json:"stage"`
}

func (h *handlers) moveClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.svc.Move(r.Context(), id, req.Stage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) exportCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="clients.csv"`)
	if err := h.svc.ExportCSV(w); err != nil {
		h.log.Warn("write csv export", zap.Error(err))
	}
}

type rowFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type importResponse struct {
	BatchID  string                `json:"batch_id"`
	Inserted []domain.ClientRecord `json:"inserted"`
	Failed   []rowFailure          `json:"failed"`
}

func newImportResponse(s csvcodec.ImportSummary) importResponse {
	resp := importResponse{
		BatchID:  s.BatchID.String(),
		Inserted: s.Inserted,
		Failed:   make([]rowFailure, 0, len(s.Failed)),
	}
	if resp.Inserted == nil {
		resp.Inserted = []domain.ClientRecord{}
	}
	for _, f := range s.Failed {
		resp.Failed = append(resp.Failed, rowFailure{Line: f.Line, Error: f.Err.Error()})
	}
	return resp
}

func (h *handlers) importCSV(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBodySize))
	if err != nil {
		httpError(w, http.StatusRequestEntityTooLarge, errs.InvalidArgument, "read body: %v", err)
		return
	}
	summary, err := h.svc.ImportCSV(r.Context(), string(body))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newImportResponse(summary))
}

func (h *handlers) pipeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Pipeline())
}

func (h *handlers) listExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Exports(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": infos})
}

func (h *handlers) createExport(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ExportToBlob(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *handlers) getExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, rc, err := h.svc.OpenExport(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(info.Key)))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("stream export", zap.String("key", info.Key), zap.Error(err))
	}
}

type linkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// exportLink issues a download URL; ?expiry=10m overrides the default lifetime.
func (h *handlers) exportLink(w http.ResponseWriter, r *http.Request) {
	expiry := core.DefaultExportLinkExpiry
	if raw := r.URL.Query().Get("expiry"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpError(w, http.StatusBadRequest, errs.InvalidArgument, "invalid expiry %q", raw)
			return
		}
		expiry = d
	}
	u, err := h.svc.ExportLink(r.Context(), chi.URLParam(r, "name"), expiry)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{URL: u, ExpiresAt: time.Now().UTC().Add(expiry)})
}

func (h *handlers) deleteExport(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExport(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, errs.InvalidArgument, "invalid client id %q", raw)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, errs.InvalidArgument, "invalid request body: %v", err)
		return false
	}
	return true
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("code", string(code)), zap.Error(err))
	}
	httpError(w, status, code, "%s", errs.MessageOf(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, code errs.Code, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
