package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
	"github.com/sqlforge/sqlforge/internal/service"
)

// GenerationHandler exposes the SQL generation lifecycle: create
// (synchronous or streaming), read, replay, metadata patch.
type GenerationHandler struct {
	svc        *service.SQLGenerationService
	rowCeiling int
}

func NewGenerationHandler(svc *service.SQLGenerationService, rowCeiling int) *GenerationHandler {
	return &GenerationHandler{svc: svc, rowCeiling: rowCeiling}
}

// Create handles POST /api/v1/prompts/{prompt_id}/sql-generations.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "prompt_id")

	var req models.SQLGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	gen, err := h.svc.Create(r.Context(), promptID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, gen)
}

// Stream handles POST /api/v1/prompts/{prompt_id}/sql-generations/stream.
// Chunks are relayed as server-sent events; the stream ends with the done
// sentinel as its own event.
func (h *GenerationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "prompt_id")

	var req models.SQLGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		models.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.svc.StartStreaming(r.Context(), promptID, &req, out)
	}()

	enc := json.NewEncoder(w)
	for chunk := range out {
		// Each chunk is one SSE data event; the JSON encoder escapes
		// embedded newlines so the frame stays intact.
		w.Write([]byte("data: "))
		enc.Encode(chunk)
		w.Write([]byte("\n"))
		flusher.Flush()
	}

	if err := <-errCh; err != nil {
		log.Warn().Err(err).Str("prompt_id", promptID).Msg("streaming generation ended with error")
	}
}

// List handles GET /api/v1/sql-generations with optional prompt_id and
// status filters.
func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.GenerationFilter{
		PromptID: r.URL.Query().Get("prompt_id"),
		Status:   models.GenerationStatus(r.URL.Query().Get("status")),
	}

	gens, err := h.svc.Get(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if gens == nil {
		gens = []*models.SQLGeneration{}
	}
	models.WriteJSON(w, http.StatusOK, gens)
}

// Get handles GET /api/v1/sql-generations/{generation_id}.
func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	gen, err := h.svc.FindByID(r.Context(), chi.URLParam(r, "generation_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, gen)
}

// Execute handles POST /api/v1/sql-generations/{generation_id}/execute.
func (h *GenerationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	generationID := chi.URLParam(r, "generation_id")

	var req models.ExecuteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	req.SetDefaults(h.rowCeiling)

	result, err := h.svc.Execute(r.Context(), generationID, req.MaxRows)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	models.WriteJSON(w, http.StatusOK, models.ExecuteResponse{
		Status:   "success",
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
	})
}

// UpdateMetadata handles PUT /api/v1/sql-generations/{generation_id}/metadata.
func (h *GenerationHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	generationID := chi.URLParam(r, "generation_id")

	var req models.MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	gen, err := h.svc.UpdateMetadata(r.Context(), generationID, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, gen)
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case models.IsNotFound(err):
		models.WriteError(w, http.StatusNotFound, err.Error())
	case models.IsSQLInjection(err):
		models.WriteError(w, http.StatusBadRequest, err.Error())
	case models.IsEngineLimit(err):
		models.WriteError(w, http.StatusRequestTimeout, err.Error())
	default:
		models.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
