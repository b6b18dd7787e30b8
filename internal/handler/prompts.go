package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
)

type PromptHandler struct {
	prompts     repository.PromptRepository
	connections repository.ConnectionRepository
}

func NewPromptHandler(prompts repository.PromptRepository, connections repository.ConnectionRepository) *PromptHandler {
	return &PromptHandler{prompts: prompts, connections: connections}
}

// Create handles POST /api/v1/prompts.
func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		models.WriteError(w, http.StatusBadRequest, "prompt text is required")
		return
	}
	if req.ConnectionID == "" {
		models.WriteError(w, http.StatusBadRequest, "db_connection_id is required")
		return
	}

	// Reject dangling references up front rather than at generation time.
	if _, err := h.connections.FindByID(r.Context(), req.ConnectionID); err != nil {
		writeServiceError(w, err)
		return
	}

	prompt := &models.Prompt{
		ID:           uuid.NewString(),
		Text:         req.Text,
		ConnectionID: req.ConnectionID,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now(),
	}
	if err := h.prompts.Insert(r.Context(), prompt); err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, prompt)
}

// Get handles GET /api/v1/prompts/{prompt_id}.
func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.prompts.FindByID(r.Context(), chi.URLParam(r, "prompt_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, prompt)
}
