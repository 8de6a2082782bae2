package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"retail-insights/internal/analytics"
	"retail-insights/internal/errors"
	"retail-insights/internal/models"
	"retail-insights/internal/observability"
	"retail-insights/internal/services"
)

const (
	defaultUploadName = "upload.csv"
	uploadField       = "file"
	reportCache       = "private, max-age=300"
)

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	maxUpload int64
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger, maxUpload int64) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

// HandleUpload accepts a CSV either as the "file" part of a multipart form or
// as the raw request body.
func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.analytics.Upload(r.Context(), name, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/datasets/"+info.ID)
	errors.WriteSuccessStatus(w, http.StatusCreated, info)
}

func (h *APIHandlers) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			return "", nil, uploadError(err, fmt.Sprintf("multipart upload needs a %q part", uploadField))
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, uploadError(err, "failed to read upload")
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, uploadError(err, "failed to read upload")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultUploadName
	}
	return name, data, nil
}

func uploadError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.TooLarge(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	}
	return errors.BadRequestWrap(err, message)
}

func (h *APIHandlers) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.List())
}

type datasetResponse struct {
	Dataset *services.DatasetInfo `json:"dataset"`
	Report  *models.Report        `json:"report"`
}

func (h *APIHandlers) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := h.analytics.Info(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.analytics.Report(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, datasetResponse{Dataset: info, Report: report}, map[string]string{
		"Cache-Control": reportCache,
	})
}

func (h *APIHandlers) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.analytics.Delete(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	payload, err := h.analytics.View(r.Context(), r.PathValue("id"), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, models.NamedView{Name: name, Payload: payload}, map[string]string{
		"Cache-Control": reportCache,
	})
}

// HandleFilter reads a FilterRequest body. An empty body selects everything.
func (h *APIHandlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var req services.FilterRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		h.fail(w, r, errors.BadRequestWrap(err, "invalid filter body"))
		return
	}

	report, err := h.analytics.Filter(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, report)
}

type catalogEntry struct {
	Name     string   `json:"name"`
	Required []string `json:"required_columns"`
}

// HandleCatalog lists every registered view with the columns it needs.
func (h *APIHandlers) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	views := analytics.Catalog()
	out := make([]catalogEntry, len(views))
	for i, v := range views {
		out[i] = catalogEntry{Name: v.Name, Required: v.Required}
	}

	errors.WriteSuccessWithHeaders(w, out, map[string]string{
		"Cache-Control": "public, max-age=3600",
	})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}
