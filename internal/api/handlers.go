package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/sentinel-pipeline/internal/engine"
	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/services"
)

// Handler exposes the pipeline over the dashboard-facing HTTP surface.
type Handler struct {
	logger  *slog.Logger
	service *services.PipelineService
}

// NewRouter wires the HTTP routes onto a chi router.
func NewRouter(logger *slog.Logger, service *services.PipelineService) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports", h.submitReport)
		r.Get("/incidents", h.listIncidents)
		r.Patch("/incidents/{id}/status", h.updateStatus)
		r.Patch("/incidents/{id}/analysis", h.attachAnalysis)
		r.Get("/stats", h.stats)
		r.Get("/health", h.health)
		r.Post("/diagnostics", h.runDiagnostics)
		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.putPreferences)
	})
	return r
}

type submitRequest struct {
	Text         string `json:"text"`
	UseGrounding bool   `json:"use_grounding"`
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with a text field")
		return
	}

	incident, err := h.service.Submit(r.Context(), req.Text, req.UseGrounding)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidReport) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("submission failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, incident)
}

func (h *Handler) listIncidents(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Incidents())
}

type statusRequest struct {
	Status models.Status `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with a status field")
		return
	}
	switch req.Status {
	case models.StatusActive, models.StatusDispatched, models.StatusSolved, models.StatusError:
	default:
		h.writeError(w, http.StatusBadRequest, "unknown status value")
		return
	}

	// Unknown ids are a deliberate no-op in the pipeline contract.
	h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	w.WriteHeader(http.StatusNoContent)
}

type analysisRequest struct {
	Analysis string `json:"analysis"`
}

func (h *Handler) attachAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Analysis == "" {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with an analysis field")
		return
	}

	h.service.AttachAnalysis(r.Context(), chi.URLParam(r, "id"), req.Analysis)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Stats())
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Health())
}

func (h *Handler) runDiagnostics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.RunDiagnostics(r.Context()))
}

func (h *Handler) getPreferences(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Preferences())
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be a JSON preferences record")
		return
	}
	h.service.SavePreferences(prefs)
	h.writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
